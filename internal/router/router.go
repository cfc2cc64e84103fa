// Package router registers the API routes and their middleware chains.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
)

// Deps carries what the routes need.  RateLimit, Cache and Invalidate may
// be pass-through middlewares when Redis is unavailable.
type Deps struct {
	Selection  *handler.SelectionHandler
	Category   *handler.CategoryHandler
	Ready      echo.HandlerFunc
	JWTSecret  string
	RateLimit  echo.MiddlewareFunc
	Cache      echo.MiddlewareFunc
	Invalidate echo.MiddlewareFunc // clears the cached listing after Create
}

// RegisterRoutes registers the health checks, which need no
// authentication.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)
	if d.Ready != nil {
		e.GET("/readyz", d.Ready)
	}
}

// RegisterPublic registers the read-only browse routes.  The seat map
// accepts an optional bearer token so the caller can see its own holds.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1/events/:event_id")
	g.GET("/categories", d.Category.List, orPass(d.Cache))
	g.GET("/categories/:category/seats", d.Selection.SeatMap, optionalAuth(d.JWTSecret))
}

// RegisterReservations registers the mutating buyer routes behind JWTAuth
// and the rate limiter.  Organizer-only provisioning lives on the same
// prefix with RequireRole.
func RegisterReservations(e *echo.Echo, d Deps) {
	g := e.Group("/v1/events/:event_id", middleware.JWTAuth(d.JWTSecret), orPass(d.RateLimit))

	// Toggle: a second call by the holder releases the seat.
	g.POST("/seats/toggle", d.Selection.ToggleSeat)
	g.POST("/categories/:category/allocate", d.Selection.Allocate)
	g.POST("/categories/:category/release", d.Selection.ReleaseHolds)
	g.POST("/categories/:category/release-pool", d.Selection.ReleasePoolHolds)
	g.POST("/purchase", d.Selection.Purchase)

	g.POST("/categories", d.Category.Create, middleware.RequireRole(middleware.RoleOrganizer), orPass(d.Invalidate))
}

// optionalAuth runs JWTAuth only when an Authorization header is present.
// A present but invalid token is still rejected.
func optionalAuth(secret string) echo.MiddlewareFunc {
	auth := middleware.JWTAuth(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		authed := auth(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				return next(c)
			}
			return authed(c)
		}
	}
}

func orPass(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return m
}
