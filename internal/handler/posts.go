package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

// PostHandler serves news and promotion posts.  Drafts are visible to
// admins only.
type PostHandler struct {
	Posts *repository.PostRepo
}

func NewPostHandler(p *repository.PostRepo) *PostHandler { return &PostHandler{Posts: p} }

type postReq struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	ImageURL  string `json:"image_url"`
	Published *bool  `json:"published"`
}

func (h *PostHandler) List(c echo.Context) error {
	p := pageFrom(c)
	ctx, cancel := dbCtx(c)
	defer cancel()
	posts, total, err := h.Posts.List(ctx, isAdmin(c), p)
	if err != nil {
		return dbError(c, err)
	}
	return paged(c, posts, total, p)
}

func (h *PostHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid post id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	post, err := h.Posts.GetByID(ctx, id, isAdmin(c))
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return fail(c, http.StatusNotFound, "post not found", nil)
		}
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

// Create handles POST /api/v1/posts.  The author is the calling admin.
func (h *PostHandler) Create(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req postReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	post := &model.Post{
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		ImageURL:  strings.TrimSpace(req.ImageURL),
		AuthorID:  uid,
		Published: req.Published == nil || *req.Published,
	}
	if post.Title == "" {
		return badRequest(c, "title is required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Posts.Create(ctx, post); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusCreated, post)
}

// Update applies the non-empty fields of the request.
func (h *PostHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid post id")
	}
	var req postReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	post, err := h.Posts.GetByID(ctx, id, true)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return fail(c, http.StatusNotFound, "post not found", nil)
		}
		return dbError(c, err)
	}
	if t := strings.TrimSpace(req.Title); t != "" {
		post.Title = t
	}
	if req.Content != "" {
		post.Content = req.Content
	}
	if u := strings.TrimSpace(req.ImageURL); u != "" {
		post.ImageURL = u
	}
	if req.Published != nil {
		post.Published = *req.Published
	}
	if err := h.Posts.Update(ctx, post); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, post)
}

func (h *PostHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid post id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Posts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return fail(c, http.StatusNotFound, "post not found", nil)
		}
		return dbError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
