package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/service"
)

// WaitlistHandler exposes waitlist joining and leaving to patients.
type WaitlistHandler struct {
	Waitlist *service.Waitlist
}

// NewWaitlistHandler constructs a WaitlistHandler.
func NewWaitlistHandler(waitlist *service.Waitlist) *WaitlistHandler {
	if waitlist == nil {
		panic("nil waitlist service passed to NewWaitlistHandler")
	}
	return &WaitlistHandler{Waitlist: waitlist}
}

// Join handles POST /v1/schedules/:id/waitlist.  Only exhausted schedules
// accept joins; the response carries the 1-based queue position.
func (h *WaitlistHandler) Join(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
	}
	var body struct {
		PatientID uint64 `json:"patient_id"`
	}
	if err := c.Bind(&body); err != nil || body.PatientID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "patient_id is required"})
	}
	order, err := h.Waitlist.Join(c.Request().Context(), userID, body.PatientID, scheduleID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, orderJSON(order))
}

// Leave handles DELETE /v1/appointments/:id/waitlist.
func (h *WaitlistHandler) Leave(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.Waitlist.Leave(c.Request().Context(), userID, orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orderJSON(order))
}
