package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticket-booking/internal/model"
	"github.com/iliyamo/cinema-ticket-booking/internal/repository"
)

var foodCategories = map[string]bool{
	model.FoodCategoryFood:  true,
	model.FoodCategoryDrink: true,
	model.FoodCategoryCombo: true,
}

// FoodHandler serves the concession menu.
type FoodHandler struct {
	Food *repository.FoodRepo
}

func NewFoodHandler(f *repository.FoodRepo) *FoodHandler { return &FoodHandler{Food: f} }

type foodReq struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	PriceCents  *int64 `json:"price_cents"`
	ImageURL    string `json:"image_url"`
	IsAvailable *bool  `json:"is_available"`
}

// List handles GET /food-and-drinks.  Customers see available items,
// optionally filtered by ?category=; admins can pass ?all=true.
func (h *FoodHandler) List(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	var (
		items []*model.FoodItem
		err   error
	)
	if isAdmin(c) && c.QueryParam("all") == "true" {
		items, err = h.Food.List(ctx)
	} else {
		items, err = h.Food.ListAvailable(ctx, strings.ToUpper(strings.TrimSpace(c.QueryParam("category"))))
	}
	if err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *FoodHandler) Create(c echo.Context) error {
	var req foodReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	f := &model.FoodItem{
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.ToUpper(strings.TrimSpace(req.Category)),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		IsAvailable: req.IsAvailable == nil || *req.IsAvailable,
	}
	if req.PriceCents != nil {
		f.PriceCents = *req.PriceCents
	}
	if f.Name == "" {
		return badRequest(c, "name is required")
	}
	if !foodCategories[f.Category] {
		return badRequest(c, "category must be FOOD, DRINK or COMBO")
	}
	if f.PriceCents <= 0 {
		return badRequest(c, "price_cents must be positive")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Food.Create(ctx, f); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *FoodHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid food id")
	}
	var req foodReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	f, err := h.Food.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrFoodNotFound) {
			return fail(c, http.StatusNotFound, "food item not found", nil)
		}
		return dbError(c, err)
	}
	if n := strings.TrimSpace(req.Name); n != "" {
		f.Name = n
	}
	if cat := strings.ToUpper(strings.TrimSpace(req.Category)); cat != "" {
		if !foodCategories[cat] {
			return badRequest(c, "category must be FOOD, DRINK or COMBO")
		}
		f.Category = cat
	}
	if req.PriceCents != nil {
		if *req.PriceCents <= 0 {
			return badRequest(c, "price_cents must be positive")
		}
		f.PriceCents = *req.PriceCents
	}
	if u := strings.TrimSpace(req.ImageURL); u != "" {
		f.ImageURL = u
	}
	if req.IsAvailable != nil {
		f.IsAvailable = *req.IsAvailable
	}
	if err := h.Food.Update(ctx, f); err != nil {
		return dbError(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *FoodHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid food id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Food.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrFoodNotFound):
			return fail(c, http.StatusNotFound, "food item not found", nil)
		case errors.Is(err, repository.ErrConflict):
			return fail(c, http.StatusConflict, "item has been ordered; mark it unavailable instead", nil)
		}
		return dbError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
