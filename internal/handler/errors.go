package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/middleware"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// writeError maps service errors to HTTP statuses.  Store failures are
// logged by the service and not described to the client; they were rolled
// back and the request may be retried.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientInventory):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotHeld), errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation store unavailable, retry the request"})
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func eventParam(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("event_id"))
	return id, err == nil && id != uuid.Nil
}

func categoryParam(c echo.Context) (string, bool) {
	name, err := url.PathUnescape(c.Param("category"))
	return name, err == nil && name != ""
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func requester(c echo.Context) (uuid.UUID, bool) {
	return middleware.RequesterID(c)
}
