package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/hospital-registration/internal/model"
	"github.com/iliyamo/hospital-registration/internal/queue"
	"github.com/iliyamo/hospital-registration/internal/repository"
)

// ConsultationDeps collects the collaborators of the consultation service.
type ConsultationDeps struct {
	Tx        TxRunner
	Orders    OrderStore
	Schedules ScheduleStore
	Policy    PolicySource
	Notifier  Notifier
	Now       func() time.Time
}

// Consultation runs the in-session call queue for a schedule: who is up, who
// is next, passing over absentees and completing visits.  All arbitration
// happens under the schedule's row lock so two desks can never call two
// patients at once.
type Consultation struct {
	txr       TxRunner
	orders    OrderStore
	schedules ScheduleStore
	policy    PolicySource
	notifier  Notifier
	now       func() time.Time
}

// NewConsultation builds a Consultation from its dependency set.
func NewConsultation(d ConsultationDeps) *Consultation {
	c := &Consultation{
		txr:       d.Tx,
		orders:    d.Orders,
		schedules: d.Schedules,
		policy:    d.Policy,
		notifier:  d.Notifier,
		now:       d.Now,
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// QueueNumber formats a 1-based call-order index for display boards.
func QueueNumber(index int) string {
	return fmt.Sprintf("A%03d", index)
}

// QueueStats summarises a schedule's session at a glance.
type QueueStats struct {
	Confirmed int `json:"confirmed"`
	Waiting   int `json:"waiting"`
	Completed int `json:"completed"`
	NoShow    int `json:"no_show"`
	Waitlist  int `json:"waitlist"`
}

// QueueEntry is one order in the snapshot with its display number.
type QueueEntry struct {
	Order       *model.Order `json:"order"`
	QueueNumber string       `json:"queue_number"`
}

// QueueSnapshot is a point-in-time view of the consultation queue.  It is a
// plain read; CallNext, Pass and Complete do their own locking and never
// trust a snapshot.
type QueueSnapshot struct {
	ScheduleID uint64         `json:"schedule_id"`
	Stats      QueueStats     `json:"stats"`
	Current    *QueueEntry    `json:"current"`
	Next       *QueueEntry    `json:"next"`
	Waiting    []QueueEntry   `json:"waiting"`
	Waitlist   []*model.Order `json:"waitlist"`
}

// Queue builds a snapshot of the schedule's session: the patient being
// called, the waiting line in call order with display numbers, and the
// waitlist trailing behind.
func (c *Consultation) Queue(ctx context.Context, scheduleID uint64) (*QueueSnapshot, error) {
	if _, err := c.schedules.Get(ctx, scheduleID); err != nil {
		return nil, err
	}
	confirmed, err := c.orders.ListConfirmedBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	waitlist, err := c.orders.ListWaitlistBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	completed, err := c.orders.CountBySchedule(ctx, scheduleID, model.OrderCompleted)
	if err != nil {
		return nil, err
	}
	noShow, err := c.orders.CountBySchedule(ctx, scheduleID, model.OrderNoShow)
	if err != nil {
		return nil, err
	}

	snap := &QueueSnapshot{
		ScheduleID: scheduleID,
		Waiting:    make([]QueueEntry, 0, len(confirmed)),
		Waitlist:   waitlist,
		Stats: QueueStats{
			Confirmed: len(confirmed),
			Completed: completed,
			NoShow:    noShow,
			Waitlist:  len(waitlist),
		},
	}
	for i, o := range confirmed {
		entry := QueueEntry{Order: o, QueueNumber: QueueNumber(i + 1)}
		if o.IsCalling {
			snap.Current = &entry
			continue
		}
		snap.Waiting = append(snap.Waiting, entry)
	}
	snap.Stats.Waiting = len(snap.Waiting)
	if len(snap.Waiting) > 0 {
		snap.Next = &snap.Waiting[0]
	}
	return snap, nil
}

// CallNext calls the next waiting patient.  At most one order per schedule
// may be in the calling state; a second call while someone is already being
// called is a conflict.  Returns nil when nobody is waiting.
func (c *Consultation) CallNext(ctx context.Context, scheduleID uint64) (*model.Order, error) {
	var called *model.Order
	err := c.txr.RunTx(ctx, func(tx *sql.Tx) error {
		if _, err := c.schedules.GetTx(ctx, tx, scheduleID, true); err != nil {
			return err
		}
		busy, err := c.orders.CallingExistsTx(ctx, tx, scheduleID)
		if err != nil {
			return err
		}
		if busy {
			return repository.ErrConflict
		}
		next, err := c.callNextLockedTx(ctx, tx, scheduleID)
		if err != nil {
			return err
		}
		called = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if called != nil {
		c.notifyCalled(called)
	}
	return called, nil
}

// callNextLockedTx selects and marks the next order under an already held
// schedule lock.  Returns nil when the waiting line is empty.
func (c *Consultation) callNextLockedTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (*model.Order, error) {
	next, err := c.orders.SelectNextForCallTx(ctx, tx, scheduleID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	now := c.now()
	next.IsCalling = true
	next.CallTime = &now
	if err := c.orders.UpdateTx(ctx, tx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Pass records that the called patient did not show up.  The pass count
// increments and the patient re-enters the waiting line behind patients with
// fewer passes; at the doctor's pass limit the order becomes NO_SHOW instead.
// The next patient is called in the same transaction, so the desk never sits
// idle after a pass.  maxOverride, when non-nil, replaces the configured
// limit for this call.
func (c *Consultation) Pass(ctx context.Context, orderID uint64, maxOverride *int) (*model.Order, *model.Order, error) {
	var passed, next *model.Order
	err := c.txr.RunTx(ctx, func(tx *sql.Tx) error {
		// Read without a lock first: the schedule lock must come before the
		// order lock to agree with CallNext's lock order.
		peek, err := c.orders.GetTx(ctx, tx, orderID, false)
		if err != nil {
			return err
		}
		if _, err := c.schedules.GetTx(ctx, tx, peek.ScheduleID, true); err != nil {
			return err
		}
		o, err := c.orders.GetTx(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.Status != model.OrderConfirmed || !o.IsCalling {
			return repository.ErrConflict
		}
		limit := 0
		if maxOverride != nil {
			limit = *maxOverride
		} else {
			limit, err = c.policy.MaxPassCount(ctx, o.DoctorID)
			if err != nil {
				return err
			}
		}
		o.PassCount++
		o.IsCalling = false
		if o.PassCount >= limit {
			o.Status = model.OrderNoShow
		}
		if err := c.orders.UpdateTx(ctx, tx, o); err != nil {
			return err
		}
		passed = o
		next, err = c.callNextLockedTx(ctx, tx, o.ScheduleID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	fields := map[string]string{
		"order_no":   passed.OrderNo,
		"pass_count": strconv.Itoa(passed.PassCount),
	}
	if passed.Status == model.OrderNoShow {
		fields["no_show"] = "true"
	}
	c.notifier.Notify(newEvent(passed.UserID, queue.TemplateQueuePassed, fields))
	if next != nil {
		c.notifyCalled(next)
	}
	return passed, next, nil
}

// Complete finishes the consultation of the patient currently being called.
func (c *Consultation) Complete(ctx context.Context, orderID uint64) (*model.Order, error) {
	var done *model.Order
	err := c.txr.RunTx(ctx, func(tx *sql.Tx) error {
		o, err := c.orders.GetTx(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.Status != model.OrderConfirmed || !o.IsCalling {
			return repository.ErrConflict
		}
		now := c.now()
		o.Status = model.OrderCompleted
		o.IsCalling = false
		o.VisitTime = &now
		if err := c.orders.UpdateTx(ctx, tx, o); err != nil {
			return err
		}
		done = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.notifier.Notify(newEvent(done.UserID, queue.TemplateQueueCompleted, map[string]string{
		"order_no": done.OrderNo,
	}))
	return done, nil
}

func (c *Consultation) notifyCalled(o *model.Order) {
	c.notifier.Notify(newEvent(o.UserID, queue.TemplateQueueCalled, map[string]string{
		"order_no":    o.OrderNo,
		"schedule_id": strconv.FormatUint(o.ScheduleID, 10),
	}))
}
