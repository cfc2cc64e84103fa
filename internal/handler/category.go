package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Catalog is the part of service.ReservationService used by
// CategoryHandler.
type Catalog interface {
	Categories(ctx context.Context, eventID uuid.UUID) ([]model.Category, error)
	ProvisionCategory(ctx context.Context, c model.Category) error
}

// CategoryHandler lists categories publicly and lets organizers create
// them.
type CategoryHandler struct {
	Svc Catalog
}

func NewCategoryHandler(svc Catalog) *CategoryHandler {
	if svc == nil {
		panic("nil service passed to NewCategoryHandler")
	}
	return &CategoryHandler{Svc: svc}
}

type categoryRequest struct {
	Name        string       `json:"category_name"`
	Layout      model.Layout `json:"layout"`
	PriceCents  uint32       `json:"price_cents"`
	StartRow    int          `json:"start_row"`
	EndRow      int          `json:"end_row"`
	StartColumn int          `json:"start_column"`
	EndColumn   int          `json:"end_column"`
	PoolSize    int          `json:"pool_size"`
}

// Create handles POST /v1/events/:event_id/categories (ORGANIZER only).
// An ASSIGNED category creates one FREE seat per row and column in the
// inclusive ranges; a POOL category creates pool_size FREE tickets.  An
// existing category name or an overlapping seat position is 409.
func (h *CategoryHandler) Create(c echo.Context) error {
	eventID, ok := eventParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body categoryRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	cat := model.Category{
		EventID:     eventID,
		Name:        body.Name,
		Layout:      body.Layout,
		PriceCents:  body.PriceCents,
		StartRow:    body.StartRow,
		EndRow:      body.EndRow,
		StartColumn: body.StartColumn,
		EndColumn:   body.EndColumn,
		PoolSize:    body.PoolSize,
	}
	if err := h.Svc.ProvisionCategory(c.Request().Context(), cat); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"category": cat, "capacity": cat.Capacity()})
}

// List handles GET /v1/events/:event_id/categories.
func (h *CategoryHandler) List(c echo.Context) error {
	eventID, ok := eventParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	cats, err := h.Svc.Categories(c.Request().Context(), eventID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "categories": cats})
}
