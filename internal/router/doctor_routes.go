package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/handler"
	"github.com/iliyamo/hospital-registration/internal/middleware"
)

// RegisterDoctor registers the consultation-desk endpoints under /v1.  All
// routes require a valid JWT with the DOCTOR role.
func RegisterDoctor(e *echo.Echo, h *handler.ConsultationHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("DOCTOR"),
	)

	g.GET("/schedules/:id/queue", h.Queue)
	g.POST("/schedules/:id/queue/call-next", h.CallNext)
	g.POST("/queue/orders/:id/pass", h.Pass)
	g.POST("/queue/orders/:id/complete", h.Complete)
}
