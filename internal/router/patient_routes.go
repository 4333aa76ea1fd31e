package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/handler"
	"github.com/iliyamo/hospital-registration/internal/middleware"
)

// RegisterPatient registers patient-scoped endpoints under /v1.  All routes
// require a valid JWT with the PATIENT role.  The optional rate limiter is
// applied only to the two capacity-claiming endpoints, guarding them against
// scripted booking.
func RegisterPatient(e *echo.Echo, b *handler.BookingHandler, w *handler.WaitlistHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("PATIENT"),
	)

	var claiming []echo.MiddlewareFunc
	if limiter != nil {
		claiming = append(claiming, limiter)
	}
	g.POST("/appointments", b.Create, claiming...)
	g.POST("/schedules/:id/waitlist", w.Join, claiming...)

	g.GET("/my-appointments", b.List)
	g.GET("/appointments/:id", b.Get)
	g.POST("/appointments/:id/pay", b.Pay)
	g.DELETE("/appointments/:id", b.Cancel)
	g.POST("/appointments/:id/reschedule", b.Reschedule)
	g.DELETE("/appointments/:id/waitlist", w.Leave)
}
