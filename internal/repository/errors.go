// Package repository defines error types that are reused across multiple
// repositories and by the service layer. These sentinel values allow
// higher layers such as handlers to distinguish between different
// failure scenarios with errors.Is and translate each one to a stable
// HTTP status. Validation and authorization failures are raised before
// the slot ledger is ever touched; ErrExhausted routes the caller to
// the waitlist rather than to a retry.
package repository

import "errors"

// ErrNotFound is returned when the requested order, schedule or patient
// does not exist. Handlers should translate this into an HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a consultation-queue invariant would be
// violated, such as calling the next patient while another one is
// already being called. The operation is retryable after re-reading
// state. Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrExhausted is returned by the slot ledger when a schedule has no
// remaining capacity. Callers must offer the waitlist instead of
// retrying the booking.
var ErrExhausted = errors.New("schedule capacity exhausted")

// ErrDuplicateBooking is returned when the patient already has an active
// (pending, confirmed or waitlisted) order on the same schedule.
var ErrDuplicateBooking = errors.New("duplicate booking")

// ErrQuotaExceeded is returned when the patient's active-order count in
// the rolling booking window is at its limit.
var ErrQuotaExceeded = errors.New("booking quota exceeded")

// ErrCutoffPassed is returned when a cancellation arrives inside the
// configured cutoff before the session starts.
var ErrCutoffPassed = errors.New("cancellation cutoff passed")

// ErrCategoryMismatch is returned when a reschedule targets a schedule
// with a different doctor, clinic or slot type.
var ErrCategoryMismatch = errors.New("schedule category mismatch")

// ErrPriceMismatch is returned when a paid order is rescheduled to a
// schedule whose resolved price differs from the amount already paid.
var ErrPriceMismatch = errors.New("resolved price differs")

// ErrAlreadyWaitlisted is returned when the patient is already queued on
// the schedule they are trying to join.
var ErrAlreadyWaitlisted = errors.New("already waitlisted")

// ErrScheduleOpen is returned when a waitlist join is attempted on a
// schedule that still has remaining capacity; the caller should book
// normally instead.
var ErrScheduleOpen = errors.New("schedule still has capacity")

// ErrInvalidTransition is returned when an operation is applied to an
// order whose current status does not permit it, e.g. paying a
// cancelled order or cancelling twice.
var ErrInvalidTransition = errors.New("invalid order status transition")
