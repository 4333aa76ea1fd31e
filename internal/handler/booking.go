package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/service"
)

// BookingHandler exposes the order lifecycle to patients.  All methods assume
// JWT authentication and the PATIENT role check ran in middleware.
type BookingHandler struct {
	Booking *service.Booking
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(booking *service.Booking) *BookingHandler {
	if booking == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{Booking: booking}
}

// Create handles POST /v1/appointments.  The body names the patient (owned by
// the caller's account), the schedule and optional symptoms.  On a full
// schedule it returns 409 with a waitlist hint rather than queueing silently.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		PatientID  uint64 `json:"patient_id"`
		ScheduleID uint64 `json:"schedule_id"`
		Symptoms   string `json:"symptoms"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.PatientID == 0 || body.ScheduleID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "patient_id and schedule_id are required"})
	}
	order, err := h.Booking.Create(c.Request().Context(), userID, body.PatientID, body.ScheduleID, body.Symptoms)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, orderJSON(order))
}

// Pay handles POST /v1/appointments/:id/pay.
func (h *BookingHandler) Pay(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.Booking.Pay(c.Request().Context(), userID, orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orderJSON(order))
}

// Cancel handles DELETE /v1/appointments/:id.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.Booking.Cancel(c.Request().Context(), userID, orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orderJSON(order))
}

// Reschedule handles POST /v1/appointments/:id/reschedule with the target
// schedule in the body.
func (h *BookingHandler) Reschedule(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var body struct {
		ScheduleID uint64 `json:"schedule_id"`
	}
	if err := c.Bind(&body); err != nil || body.ScheduleID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "schedule_id is required"})
	}
	order, err := h.Booking.Reschedule(c.Request().Context(), userID, orderID, body.ScheduleID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orderJSON(order))
}

// Get handles GET /v1/appointments/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.Booking.Get(c.Request().Context(), userID, orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orderJSON(order))
}

// List handles GET /v1/my-appointments.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orders, err := h.Booking.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]echo.Map, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON(o))
	}
	return c.JSON(http.StatusOK, echo.Map{"appointments": out})
}
