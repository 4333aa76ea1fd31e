package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hospital-registration/internal/model"
	"github.com/iliyamo/hospital-registration/internal/repository"
)

// getUserID extracts the authenticated account ID injected by the JWT
// middleware.  JWT numeric claims arrive as float64, string subjects come
// from other issuers, so several representations are accepted.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("user id missing from context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// respondError maps service-layer sentinel errors onto HTTP statuses.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not your resource"})
	case errors.Is(err, repository.ErrExhausted):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":              "no slots remaining",
			"waitlist_available": true,
		})
	case errors.Is(err, repository.ErrDuplicateBooking):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "patient already booked on this schedule"})
	case errors.Is(err, repository.ErrAlreadyWaitlisted):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "patient already waitlisted on this schedule"})
	case errors.Is(err, repository.ErrQuotaExceeded):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "booking quota exceeded"})
	case errors.Is(err, repository.ErrCutoffPassed):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "cancellation window has closed"})
	case errors.Is(err, repository.ErrCategoryMismatch):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "target schedule has a different category"})
	case errors.Is(err, repository.ErrPriceMismatch):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "paid orders can only move to an equally priced schedule"})
	case errors.Is(err, repository.ErrScheduleOpen):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "schedule still has open slots, book directly"})
	case errors.Is(err, repository.ErrInvalidTransition), errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "order state does not allow this operation"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// orderJSON shapes an order for API responses.
func orderJSON(o *model.Order) echo.Map {
	m := echo.Map{
		"id":             o.ID,
		"order_no":       o.OrderNo,
		"patient_id":     o.PatientID,
		"schedule_id":    o.ScheduleID,
		"doctor_id":      o.DoctorID,
		"clinic_id":      o.ClinicID,
		"price_cents":    o.PriceCents,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"pass_count":     o.PassCount,
		"is_calling":     o.IsCalling,
		"created_at":     o.CreatedAt,
	}
	if o.WaitlistPosition != nil {
		m["waitlist_position"] = *o.WaitlistPosition
	}
	if o.CallTime != nil {
		m["call_time"] = *o.CallTime
	}
	if o.VisitTime != nil {
		m["visit_time"] = *o.VisitTime
	}
	if o.Symptoms != "" {
		m["symptoms"] = o.Symptoms
	}
	return m
}
