package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SlotLedger is the only path in the codebase allowed to mutate
// schedules.remaining_slots.  Both mutations are single guarded UPDATE
// statements, so the counter can never go below zero or above the
// configured total no matter how many requests race on one schedule.
// Every call must run inside the same transaction as the order write
// that depends on it.
type SlotLedger struct {
	db *sql.DB
}

// NewSlotLedger returns a SlotLedger bound to the given database.
func NewSlotLedger(db *sql.DB) *SlotLedger { return &SlotLedger{db: db} }

// ReserveTx takes one unit of capacity from the schedule.  It fails closed
// with ErrExhausted when remaining_slots is already zero (or the schedule is
// suspended); callers must route the patient to the waitlist, not retry.
func (r *SlotLedger) ReserveTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) error {
	const q = `UPDATE schedules
               SET remaining_slots = remaining_slots - 1
               WHERE id = ? AND remaining_slots > 0 AND status = 'NORMAL'`
	res, err := tx.ExecContext(ctx, q, scheduleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExhausted
	}
	return nil
}

// ReleaseTx returns one unit of capacity to the schedule.  It is tied to
// exactly one order transition; callers must never invoke it twice for the
// same transition.  A release that would push remaining_slots past
// total_slots indicates a double release and fails the enclosing
// transaction instead of corrupting the counter.
func (r *SlotLedger) ReleaseTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) error {
	const q = `UPDATE schedules
               SET remaining_slots = remaining_slots + 1
               WHERE id = ? AND remaining_slots < total_slots`
	res, err := tx.ExecContext(ctx, q, scheduleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("release on schedule %d would exceed total capacity", scheduleID)
	}
	return nil
}
