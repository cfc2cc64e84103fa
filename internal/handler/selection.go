package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Reservations is the part of service.ReservationService used by
// SelectionHandler.
type Reservations interface {
	ReserveSeat(ctx context.Context, eventID uuid.UUID, ref model.SeatRef, requester uuid.UUID) (model.Outcome, error)
	AllocateFromPool(ctx context.Context, eventID uuid.UUID, category string, requester uuid.UUID, n int) ([]uint64, error)
	ReleaseHolds(ctx context.Context, eventID, requester uuid.UUID, category string, cartID uuid.UUID) ([]uint64, error)
	ReleasePoolHolds(ctx context.Context, eventID, requester uuid.UUID, category string, cartID uuid.UUID) ([]uint64, error)
	FinalizePurchase(ctx context.Context, eventID, requester uuid.UUID, ticketIDs []uint64) ([]uint64, error)
	SeatMap(ctx context.Context, eventID uuid.UUID, category string) ([]model.Seat, error)
}

// SelectionHandler exposes seat selection to buyers.  Every route except
// the seat map requires JWTAuth; the requester is the token subject.
type SelectionHandler struct {
	Svc Reservations
}

// NewSelectionHandler panics on a nil service.
func NewSelectionHandler(svc Reservations) *SelectionHandler {
	if svc == nil {
		panic("nil service passed to NewSelectionHandler")
	}
	return &SelectionHandler{Svc: svc}
}

type toggleRequest struct {
	Row      *int   `json:"row_number"`
	Column   *int   `json:"column_number"`
	TicketID uint64 `json:"ticket_id"`
}

// ref accepts either a position or a ticket id, never both.
func (r toggleRequest) ref() (model.SeatRef, bool) {
	switch {
	case r.TicketID != 0 && r.Row == nil && r.Column == nil:
		return model.ByTicket(r.TicketID), true
	case r.TicketID == 0 && r.Row != nil && r.Column != nil:
		ref := model.ByPosition(*r.Row, *r.Column)
		return ref, ref.Valid()
	}
	return model.SeatRef{}, false
}

// ToggleSeat handles POST /v1/events/:event_id/seats/toggle.
//
// The route is a toggle, not a plain reserve: posting the same seat twice
// selects it and then deselects it.  The response carries the outcome:
// "reserved", "unreserved", "occupied" (held by another buyer) or "sold".
// All four are 200; only a missing seat or a store failure is an error.
func (h *SelectionHandler) ToggleSeat(c echo.Context) error {
	uid, ok := requester(c)
	if !ok {
		return unauthorized(c)
	}
	eventID, ok := eventParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body toggleRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ref, ok := body.ref()
	if !ok {
		return badRequest(c, "give either row_number and column_number (1-based) or ticket_id")
	}

	outcome, err := h.Svc.ReserveSeat(c.Request().Context(), eventID, ref, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"outcome": outcome})
}

// Allocate handles POST /v1/events/:event_id/categories/:category/allocate
// with body {"count": n}.  It returns 201 with the granted ticket ids, or
// 409 when fewer than n tickets are free; nothing is held in that case.
func (h *SelectionHandler) Allocate(c echo.Context) error {
	uid, ok := requester(c)
	if !ok {
		return unauthorized(c)
	}
	eventID, ok := eventParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	category, ok := categoryParam(c)
	if !ok {
		return badRequest(c, "invalid category")
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Count < 1 {
		return badRequest(c, "count must be at least 1")
	}

	ids, err := h.Svc.AllocateFromPool(c.Request().Context(), eventID, category, uid, body.Count)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ticket_ids": ids})
}

type releaseRequest struct {
	CartID string `json:"cart_id"`
}

func (r releaseRequest) cart() (uuid.UUID, bool) {
	if r.CartID == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(r.CartID)
	return id, err == nil
}

// ReleaseHolds handles POST /v1/events/:event_id/categories/:category/release.
// It drops every assigned seat the requester holds in the category except
// those already purchased or carted under cart_id.
func (h *SelectionHandler) ReleaseHolds(c echo.Context) error {
	return h.release(c, h.Svc.ReleaseHolds)
}

// ReleasePoolHolds handles
// POST /v1/events/:event_id/categories/:category/release-pool, the same
// sweep over pool tickets.
func (h *SelectionHandler) ReleasePoolHolds(c echo.Context) error {
	return h.release(c, h.Svc.ReleasePoolHolds)
}

type sweepFunc func(ctx context.Context, eventID, requester uuid.UUID, category string, cartID uuid.UUID) ([]uint64, error)

func (h *SelectionHandler) release(c echo.Context, sweep sweepFunc) error {
	uid, ok := requester(c)
	if !ok {
		return unauthorized(c)
	}
	eventID, ok := eventParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	category, ok := categoryParam(c)
	if !ok {
		return badRequest(c, "invalid category")
	}
	var body releaseRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	cartID, ok := body.cart()
	if !ok {
		return badRequest(c, "invalid cart_id")
	}

	released, err := sweep(c.Request().Context(), eventID, uid, category, cartID)
	if err != nil {
		return writeError(c, err)
	}
	if released == nil {
		released = []uint64{}
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Purchase handles POST /v1/events/:event_id/purchase with body
// {"ticket_ids": [...]}.  Every ticket must be held by the requester;
// otherwise nothing is sold and 409 is returned.
func (h *SelectionHandler) Purchase(c echo.Context) error {
	uid, ok := requester(c)
	if !ok {
		return unauthorized(c)
	}
	eventID, ok := eventParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var body struct {
		TicketIDs []uint64 `json:"ticket_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(body.TicketIDs) == 0 {
		return badRequest(c, "ticket_ids is required")
	}

	sold, err := h.Svc.FinalizePurchase(c.Request().Context(), eventID, uid, body.TicketIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket_ids": sold})
}

// seatView is a seat as shown to buyers: the holder is reduced to whether
// it is the caller.
type seatView struct {
	TicketID uint64 `json:"ticket_id"`
	Row      *int   `json:"row_number,omitempty"`
	Column   *int   `json:"column_number,omitempty"`
	Status   string `json:"status"`
}

// SeatMap handles GET /v1/events/:event_id/categories/:category/seats.
// Status is FREE, HELD or SOLD; HELD_BY_SELF is reported when the caller
// is authenticated and holds the seat.
func (h *SelectionHandler) SeatMap(c echo.Context) error {
	eventID, ok := eventParam(c)
	if !ok {
		return badRequest(c, "invalid event id")
	}
	category, ok := categoryParam(c)
	if !ok {
		return badRequest(c, "invalid category")
	}
	seats, err := h.Svc.SeatMap(c.Request().Context(), eventID, category)
	if err != nil {
		return writeError(c, err)
	}

	uid, _ := requester(c)
	out := make([]seatView, 0, len(seats))
	for _, s := range seats {
		v := seatView{TicketID: s.TicketID, Row: s.Row, Column: s.Column}
		switch model.Classify(s.Flags, uid) {
		case model.StateSold:
			v.Status = "SOLD"
		case model.StateFree:
			v.Status = "FREE"
		case model.StateHeldBySelf:
			v.Status = "HELD_BY_SELF"
		default:
			v.Status = "HELD"
		}
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": eventID, "category_name": category, "seats": out})
}
