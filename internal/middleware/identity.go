package middleware

// identity.go defines the accessors for the identity JWTAuth stores in the
// Echo context. Each returns the zero value when no token was verified.

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/identity-service/internal/model"
	"github.com/clinicflow/identity-service/internal/utils"
)

const (
	ctxClaims = "claims"
	ctxUserID = "user_id"
	ctxEmail  = "email"
	ctxRole   = "role"
)

// UserID returns the sub claim of the verified token.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Email returns the email claim of the verified token.
func Email(c echo.Context) string {
	s, _ := c.Get(ctxEmail).(string)
	return s
}

// Role returns the role claim of the verified token.
func Role(c echo.Context) model.Role {
	s, _ := c.Get(ctxRole).(string)
	return model.Role(s)
}

// Claims returns the full verified claim set, or nil.
func Claims(c echo.Context) *utils.Claims {
	cl, _ := c.Get(ctxClaims).(*utils.Claims)
	return cl
}

// subjectOrGuest identifies the caller for rate-limit keys.
func subjectOrGuest(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "guest"
}
