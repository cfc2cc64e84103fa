// Package middleware holds the echo middlewares shared by the routes:
// bearer identity, role checks, rate limiting, response caching and
// request logging.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// JWTAuth returns an Echo middleware that verifies a Bearer access token
// signed with secret (HMAC) and injects the requester into the context.
// The "sub" claim must be a UUID; it becomes the requester id every
// reservation is recorded under.  The optional "role" claim is stored for
// RequireRole.  Tokens are issued elsewhere; this service only verifies.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg(),
	}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			requester, err := uuid.Parse(sub)
			if err != nil || requester == uuid.Nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "subject is not a requester id"})
			}

			c.Set(ctxRequesterID, requester)
			if role, ok := claims["role"].(string); ok {
				c.Set(ctxRole, role)
			}
			return next(c)
		}
	}
}
