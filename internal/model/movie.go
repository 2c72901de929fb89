package model

import "time"

// Movie is a title that can be scheduled into showtimes.  Genres are kept
// as a list here and flattened to a comma separated column in storage.
type Movie struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	PosterURL   string     `json:"poster_url"`
	BackdropURL string     `json:"backdrop_url"`
	Rating      float64    `json:"rating"`
	DurationMin uint32     `json:"duration_min"`
	Duration    string     `json:"duration"` // formatted, e.g. "2h 15m"
	Genres      []string   `json:"genres"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
