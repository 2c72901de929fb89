package model

import "time"

const (
	FoodCategoryFood  = "FOOD"
	FoodCategoryDrink = "DRINK"
	FoodCategoryCombo = "COMBO"
)

// FoodItem is a concession sold alongside tickets.
type FoodItem struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	PriceCents  int64     `json:"price_cents"`
	ImageURL    string    `json:"image_url"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
