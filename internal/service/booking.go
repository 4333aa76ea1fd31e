package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/hospital-registration/internal/model"
	"github.com/iliyamo/hospital-registration/internal/queue"
	"github.com/iliyamo/hospital-registration/internal/repository"
)

// sweepBatchSize caps how many expired orders one sweeper pass will cancel.
const sweepBatchSize = 100

// Cascader triggers waitlist promotion after capacity is released.  Implemented
// by the Waitlist service; split out so Booking can be tested without it.
type Cascader interface {
	CascadeConvert(ctx context.Context, scheduleID uint64) (int, error)
}

// BookingDeps collects the collaborators of the booking service.
type BookingDeps struct {
	Tx             TxRunner
	Orders         OrderStore
	Schedules      ScheduleStore
	Patients       PatientStore
	Ledger         SlotLedger
	Pricer         *Pricer
	Policy         PolicySource
	Gateway        PaymentGateway
	Cascade        Cascader
	Notifier       Notifier
	PaymentTimeout time.Duration
	Now            func() time.Time
}

// Booking owns the order lifecycle: creation against live capacity, payment
// confirmation, cancellation with refund, rescheduling and the payment
// timeout sweep.  Every transition that touches capacity pairs the ledger
// mutation and the order write in one transaction.
type Booking struct {
	txr            TxRunner
	orders         OrderStore
	schedules      ScheduleStore
	patients       PatientStore
	ledger         SlotLedger
	pricer         *Pricer
	policy         PolicySource
	gateway        PaymentGateway
	cascade        Cascader
	notifier       Notifier
	paymentTimeout time.Duration
	now            func() time.Time
}

// NewBooking builds a Booking from its dependency set.
func NewBooking(d BookingDeps) *Booking {
	b := &Booking{
		txr:            d.Tx,
		orders:         d.Orders,
		schedules:      d.Schedules,
		patients:       d.Patients,
		ledger:         d.Ledger,
		pricer:         d.Pricer,
		policy:         d.Policy,
		gateway:        d.Gateway,
		cascade:        d.Cascade,
		notifier:       d.Notifier,
		paymentTimeout: d.PaymentTimeout,
		now:            d.Now,
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	if b.paymentTimeout <= 0 {
		b.paymentTimeout = 30 * time.Minute
	}
	return b
}

// Create books the patient onto the schedule.  The slot is reserved and the
// PENDING order written in one transaction; with capacity gone the call fails
// with ErrExhausted and the caller may offer the waitlist instead; Create
// never silently waitlists.
func (s *Booking) Create(ctx context.Context, userID, patientID, scheduleID uint64, symptoms string) (*model.Order, error) {
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.UserID != userID {
		return nil, repository.ErrForbidden
	}
	sched, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sched.Status != model.ScheduleNormal {
		return nil, repository.ErrConflict
	}
	fee, err := s.pricer.ResolveFee(ctx, sched, patient.Identity)
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.txr.RunTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.orders.GetActiveOnScheduleTx(ctx, tx, patientID, scheduleID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == model.OrderWaitlist {
				return repository.ErrAlreadyWaitlisted
			}
			return repository.ErrDuplicateBooking
		}
		if err := s.checkQuotaTx(ctx, tx, patientID); err != nil {
			return err
		}
		if err := s.ledger.ReserveTx(ctx, tx, scheduleID); err != nil {
			return err
		}
		order = &model.Order{
			OrderNo:       uuid.NewString(),
			PatientID:     patientID,
			UserID:        userID,
			DoctorID:      sched.DoctorID,
			ClinicID:      sched.ClinicID,
			ScheduleID:    scheduleID,
			PriceCents:    fee,
			Status:        model.OrderPending,
			PaymentStatus: model.PaymentPending,
			Symptoms:      symptoms,
			CreatedAt:     s.now(),
		}
		return s.orders.CreateTx(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(newEvent(userID, queue.TemplateBookingCreated, map[string]string{
		"order_no":    order.OrderNo,
		"price_cents": strconv.FormatInt(order.PriceCents, 10),
	}))
	return order, nil
}

// checkQuotaTx enforces the rolling booking quota: at most N active orders
// whose session day falls inside the configured window starting today.
func (s *Booking) checkQuotaTx(ctx context.Context, tx *sql.Tx, patientID uint64) error {
	windowDays, err := s.policy.QuotaWindowDays(ctx)
	if err != nil {
		return err
	}
	maxOrders, err := s.policy.QuotaMaxOrders(ctx)
	if err != nil {
		return err
	}
	from := startOfDay(s.now())
	to := from.AddDate(0, 0, windowDays)
	n, err := s.orders.CountActiveInWindowTx(ctx, tx, patientID, from, to)
	if err != nil {
		return err
	}
	if n >= maxOrders {
		return repository.ErrQuotaExceeded
	}
	return nil
}

// Pay charges the order through the payment gateway and confirms it.  The
// charge happens before the transaction so broker latency never sits inside a
// row lock; the transition is then re-validated under the lock.
func (s *Booking) Pay(ctx context.Context, userID, orderID uint64) (*model.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, repository.ErrForbidden
	}
	if o.Status != model.OrderPending || o.PaymentStatus != model.PaymentPending {
		return nil, repository.ErrInvalidTransition
	}
	if err := s.gateway.Charge(ctx, o.OrderNo, o.PriceCents); err != nil {
		return nil, err
	}

	var paid *model.Order
	err = s.txr.RunTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.orders.GetTx(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if cur.Status != model.OrderPending || cur.PaymentStatus != model.PaymentPending {
			// Timed out or cancelled between the charge and the lock.
			return repository.ErrInvalidTransition
		}
		cur.Status = model.OrderConfirmed
		cur.PaymentStatus = model.PaymentPaid
		if err := s.orders.UpdateTx(ctx, tx, cur); err != nil {
			return err
		}
		paid = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(newEvent(userID, queue.TemplateBookingPaid, map[string]string{
		"order_no":    paid.OrderNo,
		"price_cents": strconv.FormatInt(paid.PriceCents, 10),
	}))
	return paid, nil
}

// Cancel voids a PENDING or CONFIRMED order before the clinic's cutoff,
// refunds a paid fee, releases the slot and promotes from the waitlist.
// Waitlisted orders are not cancellable here; use Waitlist.Leave.
func (s *Booking) Cancel(ctx context.Context, userID, orderID uint64) (*model.Order, error) {
	var cancelled *model.Order
	err := s.txr.RunTx(ctx, func(tx *sql.Tx) error {
		o, err := s.orders.GetTx(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return repository.ErrForbidden
		}
		if o.Status != model.OrderPending && o.Status != model.OrderConfirmed {
			return repository.ErrInvalidTransition
		}
		sched, err := s.schedules.GetTx(ctx, tx, o.ScheduleID, false)
		if err != nil {
			return err
		}
		hours, err := s.policy.CancelHoursBefore(ctx, sched.ClinicID)
		if err != nil {
			return err
		}
		cutoff := sched.StartsAt().Add(-time.Duration(hours) * time.Hour)
		if !s.now().Before(cutoff) {
			return repository.ErrCutoffPassed
		}
		o.Status = model.OrderCancelled
		if o.PaymentStatus == model.PaymentPaid {
			o.PaymentStatus = model.PaymentRefunded
		} else {
			o.PaymentStatus = model.PaymentCancelled
		}
		if err := s.ledger.ReleaseTx(ctx, tx, o.ScheduleID); err != nil {
			return err
		}
		if err := s.orders.UpdateTx(ctx, tx, o); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]string{"order_no": cancelled.OrderNo}
	if cancelled.PaymentStatus == model.PaymentRefunded {
		fields["refund_cents"] = strconv.FormatInt(cancelled.PriceCents, 10)
	}
	s.notifier.Notify(newEvent(userID, queue.TemplateBookingCancelled, fields))
	s.runCascade(ctx, cancelled.ScheduleID)
	return cancelled, nil
}

// Reschedule moves a live order to another schedule of the same doctor,
// clinic and slot type.  The new slot is reserved before the old one is
// released, in the same transaction, so the patient never ends up with
// neither.  A paid order may only move to an equally priced schedule.
func (s *Booking) Reschedule(ctx context.Context, userID, orderID, newScheduleID uint64) (*model.Order, error) {
	var moved *model.Order
	var oldScheduleID uint64
	err := s.txr.RunTx(ctx, func(tx *sql.Tx) error {
		o, err := s.orders.GetTx(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return repository.ErrForbidden
		}
		if o.Status != model.OrderPending && o.Status != model.OrderConfirmed {
			return repository.ErrInvalidTransition
		}
		if o.ScheduleID == newScheduleID {
			return repository.ErrConflict
		}
		oldSched, err := s.schedules.GetTx(ctx, tx, o.ScheduleID, false)
		if err != nil {
			return err
		}
		newSched, err := s.schedules.GetTx(ctx, tx, newScheduleID, false)
		if err != nil {
			return err
		}
		if newSched.Status != model.ScheduleNormal {
			return repository.ErrConflict
		}
		if !oldSched.SameWindowAs(newSched) {
			return repository.ErrCategoryMismatch
		}
		patient, err := s.patients.Get(ctx, o.PatientID)
		if err != nil {
			return err
		}
		fee, err := s.pricer.ResolveFee(ctx, newSched, patient.Identity)
		if err != nil {
			return err
		}
		if o.PaymentStatus == model.PaymentPaid && fee != o.PriceCents {
			return repository.ErrPriceMismatch
		}
		if err := s.ledger.ReserveTx(ctx, tx, newScheduleID); err != nil {
			return err
		}
		if err := s.ledger.ReleaseTx(ctx, tx, o.ScheduleID); err != nil {
			return err
		}
		oldScheduleID = o.ScheduleID
		o.ScheduleID = newScheduleID
		o.DoctorID = newSched.DoctorID
		o.ClinicID = newSched.ClinicID
		if o.PaymentStatus != model.PaymentPaid {
			o.PriceCents = fee
		}
		if err := s.orders.UpdateTx(ctx, tx, o); err != nil {
			return err
		}
		moved = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(newEvent(userID, queue.TemplateBookingCreated, map[string]string{
		"order_no":    moved.OrderNo,
		"schedule_id": strconv.FormatUint(moved.ScheduleID, 10),
	}))
	s.runCascade(ctx, oldScheduleID)
	return moved, nil
}

// CancelTimedOut cancels PENDING orders whose payment window elapsed and
// returns how many it voided.  Each candidate is re-validated under its row
// lock, so a payment racing the sweep wins or loses cleanly.
func (s *Booking) CancelTimedOut(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.paymentTimeout)
	ids, err := s.orders.ListTimedOutIDs(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	released := make(map[uint64]bool)
	for _, id := range ids {
		var voided *model.Order
		err := s.txr.RunTx(ctx, func(tx *sql.Tx) error {
			cur, err := s.orders.GetTx(ctx, tx, id, true)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil
				}
				return err
			}
			if cur.Status != model.OrderPending || cur.PaymentStatus != model.PaymentPending || cur.CreatedAt.After(cutoff) {
				return nil
			}
			cur.Status = model.OrderTimeout
			cur.PaymentStatus = model.PaymentFailed
			if err := s.ledger.ReleaseTx(ctx, tx, cur.ScheduleID); err != nil {
				return err
			}
			if err := s.orders.UpdateTx(ctx, tx, cur); err != nil {
				return err
			}
			voided = cur
			return nil
		})
		if err != nil {
			log.Printf("booking: timeout sweep of order %d failed: %v", id, err)
			continue
		}
		if voided == nil {
			continue
		}
		count++
		released[voided.ScheduleID] = true
		s.notifier.Notify(newEvent(voided.UserID, queue.TemplateBookingTimeout, map[string]string{
			"order_no": voided.OrderNo,
		}))
	}
	for scheduleID := range released {
		s.runCascade(ctx, scheduleID)
	}
	return count, nil
}

// Get returns one order after an ownership check.
func (s *Booking) Get(ctx context.Context, userID, orderID uint64) (*model.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, repository.ErrForbidden
	}
	return o, nil
}

// ListForUser returns every order booked from the account, newest first.
func (s *Booking) ListForUser(ctx context.Context, userID uint64) ([]*model.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// runCascade promotes waitlisted patients after a release.  Failures are
// logged and swallowed: the release already committed and the sync job will
// retry promotion on the next capacity event.
func (s *Booking) runCascade(ctx context.Context, scheduleID uint64) {
	if s.cascade == nil {
		return
	}
	if _, err := s.cascade.CascadeConvert(ctx, scheduleID); err != nil {
		log.Printf("booking: waitlist cascade on schedule %d failed: %v", scheduleID, err)
	}
}

// startOfDay truncates t to midnight in its location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
