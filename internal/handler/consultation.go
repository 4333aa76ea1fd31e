package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/service"
)

// ConsultationHandler exposes the live session queue to doctors and desk
// staff.  The DOCTOR role check runs in middleware.
type ConsultationHandler struct {
	Consultation *service.Consultation
}

// NewConsultationHandler constructs a ConsultationHandler.
func NewConsultationHandler(consultation *service.Consultation) *ConsultationHandler {
	if consultation == nil {
		panic("nil consultation service passed to NewConsultationHandler")
	}
	return &ConsultationHandler{Consultation: consultation}
}

// Queue handles GET /v1/schedules/:id/queue: a snapshot of the session with
// display numbers, the patient being called and the trailing waitlist.
func (h *ConsultationHandler) Queue(c echo.Context) error {
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
	}
	snap, err := h.Consultation.Queue(c.Request().Context(), scheduleID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// CallNext handles POST /v1/schedules/:id/queue/call-next.  Returns 200 with
// the called order, or 200 with a null order when nobody is waiting.
func (h *ConsultationHandler) CallNext(c echo.Context) error {
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid schedule id"})
	}
	order, err := h.Consultation.CallNext(c.Request().Context(), scheduleID)
	if err != nil {
		return respondError(c, err)
	}
	if order == nil {
		return c.JSON(http.StatusOK, echo.Map{"order": nil, "message": "queue is empty"})
	}
	return c.JSON(http.StatusOK, echo.Map{"order": orderJSON(order)})
}

// Pass handles POST /v1/queue/orders/:id/pass.  An optional body field
// max_pass_count overrides the configured no-show limit for this call.
func (h *ConsultationHandler) Pass(c echo.Context) error {
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var body struct {
		MaxPassCount *int `json:"max_pass_count"`
	}
	// The body is optional; binding failures on an empty body are ignored.
	_ = c.Bind(&body)
	passed, next, err := h.Consultation.Pass(c.Request().Context(), orderID, body.MaxPassCount)
	if err != nil {
		return respondError(c, err)
	}
	resp := echo.Map{"passed": orderJSON(passed)}
	if next != nil {
		resp["next"] = orderJSON(next)
	}
	return c.JSON(http.StatusOK, resp)
}

// Complete handles POST /v1/queue/orders/:id/complete.
func (h *ConsultationHandler) Complete(c echo.Context) error {
	orderID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.Consultation.Complete(c.Request().Context(), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, orderJSON(order))
}
