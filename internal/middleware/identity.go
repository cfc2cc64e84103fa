package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxRequesterID = "requester_id"
	ctxRole        = "role"
)

// RequesterID returns the authenticated requester.  ok is false on routes
// that are not behind JWTAuth.
func RequesterID(c echo.Context) (id uuid.UUID, ok bool) {
	id, ok = c.Get(ctxRequesterID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// requesterKey is the requester id as used in Redis keys, "anon" when the
// request is unauthenticated.
func requesterKey(c echo.Context) string {
	if id, ok := RequesterID(c); ok {
		return id.String()
	}
	return "anon"
}
