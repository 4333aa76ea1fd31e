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

// cascadeLimit bounds how many promotions one capacity event may trigger.
// Anything beyond the bound is picked up by the next release.
const cascadeLimit = 10

// WaitlistDeps collects the collaborators of the waitlist coordinator.
type WaitlistDeps struct {
	Tx        TxRunner
	Orders    OrderStore
	Schedules ScheduleStore
	Patients  PatientStore
	Ledger    SlotLedger
	Pricer    *Pricer
	Queue     WaitQueue
	Notifier  Notifier
	Now       func() time.Time
}

// Waitlist manages queued claims against exhausted schedules: joining,
// leaving, promotion when capacity frees up, and mirroring queue positions
// into the durable store.  Redis orders the queue; MySQL remains the record
// of every order's status.
type Waitlist struct {
	txr       TxRunner
	orders    OrderStore
	schedules ScheduleStore
	patients  PatientStore
	ledger    SlotLedger
	pricer    *Pricer
	queue     WaitQueue
	notifier  Notifier
	now       func() time.Time
}

// NewWaitlist builds a Waitlist from its dependency set.
func NewWaitlist(d WaitlistDeps) *Waitlist {
	w := &Waitlist{
		txr:       d.Tx,
		orders:    d.Orders,
		schedules: d.Schedules,
		patients:  d.Patients,
		ledger:    d.Ledger,
		pricer:    d.Pricer,
		queue:     d.Queue,
		notifier:  d.Notifier,
		now:       d.Now,
	}
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}
	return w
}

// Join queues the patient on an exhausted schedule and returns the WAITLIST
// order with its 1-based queue position.  A schedule that still has capacity
// rejects the join; the patient should book normally instead.
func (w *Waitlist) Join(ctx context.Context, userID, patientID, scheduleID uint64) (*model.Order, error) {
	patient, err := w.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.UserID != userID {
		return nil, repository.ErrForbidden
	}

	var order *model.Order
	err = w.txr.RunTx(ctx, func(tx *sql.Tx) error {
		// The schedule lock keeps the remaining-capacity check stable against
		// a concurrent release.
		sched, err := w.schedules.GetTx(ctx, tx, scheduleID, true)
		if err != nil {
			return err
		}
		if sched.Status != model.ScheduleNormal {
			return repository.ErrConflict
		}
		if sched.RemainingSlots > 0 {
			return repository.ErrScheduleOpen
		}
		existing, err := w.orders.GetActiveOnScheduleTx(ctx, tx, patientID, scheduleID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == model.OrderWaitlist {
				return repository.ErrAlreadyWaitlisted
			}
			return repository.ErrDuplicateBooking
		}
		fee, err := w.pricer.ResolveFee(ctx, sched, patient.Identity)
		if err != nil {
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
			Status:        model.OrderWaitlist,
			PaymentStatus: model.PaymentPending,
			CreatedAt:     w.now(),
		}
		return w.orders.CreateTx(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	position, err := w.queue.Append(ctx, scheduleID, repository.WaitEntry{
		OrderID:   order.ID,
		PatientID: patientID,
		JoinedAt:  order.CreatedAt,
	})
	if err != nil {
		if !errors.Is(err, repository.ErrQueueUnavailable) {
			log.Printf("waitlist: queue append for order %d failed: %v", order.ID, err)
		}
		// Degrade to the durable mirror: FIFO position by join time.
		position, err = w.orders.CountBySchedule(ctx, scheduleID, model.OrderWaitlist)
		if err != nil {
			return nil, err
		}
	}
	if err := w.orders.SetWaitlistPosition(ctx, order.ID, position); err != nil {
		log.Printf("waitlist: position mirror for order %d failed: %v", order.ID, err)
	}
	order.WaitlistPosition = &position
	return order, nil
}

// Leave cancels a WAITLIST order and drops its queue entry.  No capacity is
// involved; waitlisted orders never hold a slot.
func (w *Waitlist) Leave(ctx context.Context, userID, orderID uint64) (*model.Order, error) {
	var left *model.Order
	err := w.txr.RunTx(ctx, func(tx *sql.Tx) error {
		o, err := w.orders.GetTx(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return repository.ErrForbidden
		}
		if o.Status != model.OrderWaitlist {
			return repository.ErrInvalidTransition
		}
		o.Status = model.OrderCancelled
		o.PaymentStatus = model.PaymentCancelled
		o.WaitlistPosition = nil
		if err := w.orders.UpdateTx(ctx, tx, o); err != nil {
			return err
		}
		left = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := w.queue.Remove(ctx, left.ScheduleID, left.PatientID); err != nil && !errors.Is(err, repository.ErrQueueUnavailable) {
		log.Printf("waitlist: queue removal for order %d failed: %v", left.ID, err)
	}
	return left, nil
}

// promotion outcomes inside the cascade loop.
type cascadeOutcome int

const (
	cascadePromoted cascadeOutcome = iota
	cascadeSkipped                 // entry no longer WAITLIST, discard
	cascadeStopped                 // capacity gone, put the entry back
)

// CascadeConvert promotes waitlisted patients into PENDING orders while the
// schedule has capacity, in queue order, at most cascadeLimit per call.  Every
// popped entry is re-validated under a row lock before any state changes; a
// claim that lost the capacity race goes back to the head of the queue.
func (w *Waitlist) CascadeConvert(ctx context.Context, scheduleID uint64) (int, error) {
	useQueue := w.queue.Available()
	var fallback []*model.Order
	if !useQueue {
		var err error
		fallback, err = w.orders.ListWaitlistBySchedule(ctx, scheduleID)
		if err != nil {
			return 0, err
		}
	}

	promoted := 0
	fallbackIdx := 0
	for promoted < cascadeLimit {
		var entry repository.WaitEntry
		if useQueue {
			head, err := w.queue.PopHead(ctx, scheduleID)
			if err != nil {
				return promoted, err
			}
			if head == nil {
				break
			}
			entry = *head
		} else {
			if fallbackIdx >= len(fallback) {
				break
			}
			o := fallback[fallbackIdx]
			fallbackIdx++
			entry = repository.WaitEntry{OrderID: o.ID, PatientID: o.PatientID, JoinedAt: o.CreatedAt}
		}

		outcome, order, err := w.promoteOne(ctx, scheduleID, entry.OrderID)
		if err != nil {
			if useQueue {
				if pushErr := w.queue.PushFront(ctx, scheduleID, entry); pushErr != nil {
					log.Printf("waitlist: returning entry for order %d failed: %v", entry.OrderID, pushErr)
				}
			}
			return promoted, err
		}
		switch outcome {
		case cascadePromoted:
			promoted++
			w.notifier.Notify(newEvent(order.UserID, queue.TemplateWaitlistPromoted, map[string]string{
				"order_no":    order.OrderNo,
				"schedule_id": strconv.FormatUint(scheduleID, 10),
			}))
		case cascadeSkipped:
			// Cancelled or already promoted elsewhere; consume no capacity.
		case cascadeStopped:
			if useQueue {
				if err := w.queue.PushFront(ctx, scheduleID, entry); err != nil {
					log.Printf("waitlist: returning entry for order %d failed: %v", entry.OrderID, err)
				}
			}
			return promoted, nil
		}
	}
	return promoted, nil
}

// promoteOne attempts one WAITLIST to PENDING promotion in its own
// transaction.
func (w *Waitlist) promoteOne(ctx context.Context, scheduleID, orderID uint64) (cascadeOutcome, *model.Order, error) {
	outcome := cascadeSkipped
	var promoted *model.Order
	err := w.txr.RunTx(ctx, func(tx *sql.Tx) error {
		o, err := w.orders.GetTx(ctx, tx, orderID, true)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if o.Status != model.OrderWaitlist {
			return nil
		}
		if err := w.ledger.ReserveTx(ctx, tx, scheduleID); err != nil {
			if errors.Is(err, repository.ErrExhausted) {
				outcome = cascadeStopped
				return nil
			}
			return err
		}
		o.Status = model.OrderPending
		o.PaymentStatus = model.PaymentPending
		o.WaitlistPosition = nil
		// Restart the payment window; the timeout sweeper keys on created_at.
		o.CreatedAt = w.now()
		if err := w.orders.UpdateTx(ctx, tx, o); err != nil {
			return err
		}
		outcome = cascadePromoted
		promoted = o
		return nil
	})
	if err != nil {
		return cascadeSkipped, nil, err
	}
	return outcome, promoted, nil
}

// SyncPositions mirrors every live queue's positions into the orders table and
// returns how many rows it touched.  The durable copy keeps positions visible
// through a Redis restart and feeds the fallback ordering.
func (w *Waitlist) SyncPositions(ctx context.Context) (int, error) {
	if !w.queue.Available() {
		return 0, nil
	}
	scheduleIDs, err := w.queue.QueuedScheduleIDs(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, scheduleID := range scheduleIDs {
		entries, err := w.queue.Entries(ctx, scheduleID)
		if err != nil {
			log.Printf("waitlist: reading queue for schedule %d failed: %v", scheduleID, err)
			continue
		}
		for i, e := range entries {
			if err := w.orders.SetWaitlistPosition(ctx, e.OrderID, i+1); err != nil {
				log.Printf("waitlist: position sync for order %d failed: %v", e.OrderID, err)
				continue
			}
			updated++
		}
	}
	return updated, nil
}

// Entries returns the queue for a schedule in FIFO order from the durable
// mirror, which is always available and good enough for display.
func (w *Waitlist) Entries(ctx context.Context, scheduleID uint64) ([]*model.Order, error) {
	return w.orders.ListWaitlistBySchedule(ctx, scheduleID)
}
