package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicflow/identity-service/internal/handler"
	"github.com/clinicflow/identity-service/internal/middleware"
	"github.com/clinicflow/identity-service/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// the health check and, when gatherer is non-nil, the Prometheus scrape.
func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers the identity endpoints. parser verifies bearer
// tokens; limiter wraps the endpoints that accept a guessable secret
// (password or email).
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, parser middleware.TokenParser, limiter echo.MiddlewareFunc) {
	if limiter == nil {
		limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	jwtAuth := middleware.JWTAuth(parser)

	// No session required.
	e.POST("/register", a.Register)
	e.POST("/login", a.Login, limiter)
	e.POST("/refresh", a.Refresh)
	e.POST("/forgot-password", a.ForgotPassword, limiter)
	e.POST("/reset-password", a.ResetPassword, limiter)

	// Bearer required; the handlers check the bearer owns the account.
	e.POST("/logout", a.Logout, jwtAuth)
	e.POST("/change-password", a.ChangePassword, jwtAuth, limiter)

	// Administration.
	admin := e.Group("/users", jwtAuth, middleware.RequireRole(model.RoleSuperAdmin, model.RoleClinicAdmin))
	admin.GET("", a.ListUsers)
	admin.PUT("/:id/role", a.ChangeUserRole)
	admin.DELETE("/:id", a.DeleteUser)
}
