package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health answers liveness checks on /healthz. It does not touch the
// credential store, so a slow database never fails the probe.
func Health(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.String(http.StatusOK, "ok")
}
