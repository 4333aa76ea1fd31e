// Package router wires HTTP routes to their handlers and per-group
// middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check for load balancers and monitoring.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}
