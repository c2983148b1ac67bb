package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/clinicflow/identity-service/internal/utils"
)

// TokenParser verifies an access token and returns its claims.
type TokenParser interface {
	Parse(raw string) (*utils.Claims, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects its subject, email and role claims into the request context.
// Handlers read them back with UserID, Email and Role.
func JWTAuth(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Parse checks the HMAC method, signature, issuer, audience and expiry.
			claims, err := parser.Parse(raw)
			if err != nil || claims.Subject == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(ctxClaims, claims)
			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxEmail, claims.Email)
			c.Set(ctxRole, claims.Role)
			return next(c)
		}
	}
}
