package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hospital-registration/internal/model"
)

// OrderRepo provides data access for registration orders.  Reads that feed a
// state transition take place inside the caller's transaction via the ...Tx
// variants, optionally with a row lock; plain reads for listings go through
// the pooled database handle.  All timestamps are stored in UTC.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, order_no, patient_id, user_id, doctor_id, clinic_id, schedule_id,
       price_cents, status, payment_status, waitlist_position, pass_count,
       is_calling, call_time, visit_time, priority, symptoms, created_at, updated_at`

// scanOrder reads one order row from any row scanner (sql.Row or sql.Rows).
func scanOrder(scan func(dest ...any) error) (*model.Order, error) {
	var o model.Order
	var waitPos sql.NullInt64
	var callTime, visitTime sql.NullTime
	err := scan(
		&o.ID, &o.OrderNo, &o.PatientID, &o.UserID, &o.DoctorID, &o.ClinicID, &o.ScheduleID,
		&o.PriceCents, &o.Status, &o.PaymentStatus, &waitPos, &o.PassCount,
		&o.IsCalling, &callTime, &visitTime, &o.Priority, &o.Symptoms, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if waitPos.Valid {
		p := int(waitPos.Int64)
		o.WaitlistPosition = &p
	}
	if callTime.Valid {
		t := callTime.Time
		o.CallTime = &t
	}
	if visitTime.Valid {
		t := visitTime.Time
		o.VisitTime = &t
	}
	return &o, nil
}

// CreateTx inserts a new order within the scope of an existing transaction
// and populates the generated ID on the provided model.  The caller must
// commit or roll back the transaction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `INSERT INTO orders
               (order_no, patient_id, user_id, doctor_id, clinic_id, schedule_id,
                price_cents, status, payment_status, waitlist_position, pass_count,
                is_calling, priority, symptoms, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, FALSE, ?, ?, ?, ?)`
	var waitPos any
	if o.WaitlistPosition != nil {
		waitPos = *o.WaitlistPosition
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	res, err := tx.ExecContext(ctx, q,
		o.OrderNo, o.PatientID, o.UserID, o.DoctorID, o.ClinicID, o.ScheduleID,
		o.PriceCents, o.Status, o.PaymentStatus, waitPos,
		o.Priority, o.Symptoms, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// GetTx loads one order inside the transaction.  With forUpdate set the row
// is locked until the transaction ends, serialising concurrent transitions
// on the same order.  Returns ErrNotFound when no such order exists.
func (r *OrderRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	o, err := scanOrder(tx.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// Get loads one order outside any transaction.
func (r *OrderRepo) Get(ctx context.Context, id uint64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	o, err := scanOrder(r.db.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// UpdateTx writes back every mutable order field.  The caller is expected to
// have loaded the row FOR UPDATE in the same transaction.
func (r *OrderRepo) UpdateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `UPDATE orders SET
               doctor_id = ?, clinic_id = ?, schedule_id = ?, price_cents = ?,
               status = ?, payment_status = ?, waitlist_position = ?, pass_count = ?,
               is_calling = ?, call_time = ?, visit_time = ?, priority = ?, updated_at = ?
               WHERE id = ?`
	var waitPos any
	if o.WaitlistPosition != nil {
		waitPos = *o.WaitlistPosition
	}
	var callTime, visitTime any
	if o.CallTime != nil {
		callTime = o.CallTime.UTC()
	}
	if o.VisitTime != nil {
		visitTime = o.VisitTime.UTC()
	}
	o.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, q,
		o.DoctorID, o.ClinicID, o.ScheduleID, o.PriceCents,
		o.Status, o.PaymentStatus, waitPos, o.PassCount,
		o.IsCalling, callTime, visitTime, o.Priority, o.UpdatedAt, o.ID,
	)
	return err
}

// GetActiveOnScheduleTx returns the patient's PENDING, CONFIRMED or WAITLIST
// order on the schedule, or nil when there is none.  Used to reject duplicate
// bookings and duplicate waitlist joins before the ledger is touched; the
// caller inspects the status to pick the right rejection.
func (r *OrderRepo) GetActiveOnScheduleTx(ctx context.Context, tx *sql.Tx, patientID, scheduleID uint64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
          WHERE patient_id = ? AND schedule_id = ?
            AND status IN ('PENDING', 'CONFIRMED', 'WAITLIST')
          LIMIT 1`
	o, err := scanOrder(tx.QueryRowContext(ctx, q, patientID, scheduleID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// CallingExistsTx reports whether some order on the schedule is already in the
// CALLING state.  Checked under the schedule row lock so at most one patient
// can be called at a time.
func (r *OrderRepo) CallingExistsTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (bool, error) {
	const q = `SELECT COUNT(*) FROM orders
               WHERE schedule_id = ? AND status = 'CONFIRMED' AND is_calling = TRUE`
	var n int
	if err := tx.QueryRowContext(ctx, q, scheduleID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SelectNextForCallTx picks the next waiting order under the consultation
// ordering (priority, pass count, arrival) and locks its row.  Returns nil
// when nobody is waiting.
func (r *OrderRepo) SelectNextForCallTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
          WHERE schedule_id = ? AND status = 'CONFIRMED' AND is_calling = FALSE
          ORDER BY priority ASC, pass_count ASC, created_at ASC
          LIMIT 1
          FOR UPDATE`
	o, err := scanOrder(tx.QueryRowContext(ctx, q, scheduleID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// CountActiveInWindowTx counts the patient's active orders whose session day
// falls inside [from, to].  Backs the rolling booking quota.
func (r *OrderRepo) CountActiveInWindowTx(ctx context.Context, tx *sql.Tx, patientID uint64, from, to time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM orders o
               JOIN schedules s ON s.id = o.schedule_id
               WHERE o.patient_id = ?
                 AND o.status IN ('PENDING', 'CONFIRMED', 'WAITLIST')
                 AND s.date BETWEEN ? AND ?`
	var n int
	err := tx.QueryRowContext(ctx, q, patientID, from.UTC(), to.UTC()).Scan(&n)
	return n, err
}

// listBySchedule runs a filtered order query and scans the result set.
func (r *OrderRepo) listBySchedule(ctx context.Context, q string, args ...any) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := make([]*model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListConfirmedBySchedule returns the schedule's CONFIRMED orders in call
// order: priority first, then pass count, then arrival time.
func (r *OrderRepo) ListConfirmedBySchedule(ctx context.Context, scheduleID uint64) ([]*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
          WHERE schedule_id = ? AND status = 'CONFIRMED'
          ORDER BY priority ASC, pass_count ASC, created_at ASC`
	return r.listBySchedule(ctx, q, scheduleID)
}

// ListWaitlistBySchedule returns the schedule's WAITLIST orders FIFO by join
// time.  This is the durable mirror of the Redis queue, used for display and
// as the fallback ordering source when Redis is unreachable.
func (r *OrderRepo) ListWaitlistBySchedule(ctx context.Context, scheduleID uint64) ([]*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
          WHERE schedule_id = ? AND status = 'WAITLIST'
          ORDER BY created_at ASC`
	return r.listBySchedule(ctx, q, scheduleID)
}

// CountBySchedule counts the schedule's orders in the given status.
func (r *OrderRepo) CountBySchedule(ctx context.Context, scheduleID uint64, status model.OrderStatus) (int, error) {
	const q = `SELECT COUNT(*) FROM orders WHERE schedule_id = ? AND status = ?`
	var n int
	err := r.db.QueryRowContext(ctx, q, scheduleID, status).Scan(&n)
	return n, err
}

// ListTimedOutIDs returns IDs of PENDING orders whose payment window closed
// before the cutoff.  The sweeper re-validates each order under a row lock
// before cancelling it, so a plain read is sufficient here.
func (r *OrderRepo) ListTimedOutIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	const q = `SELECT id FROM orders
               WHERE status = 'PENDING' AND payment_status = 'PENDING' AND created_at <= ?
               ORDER BY created_at ASC
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetWaitlistPosition mirrors a Redis queue index onto the durable order row.
// The update is idempotent and touches only WAITLIST orders, so a stale sync
// job run can never clobber an order that was promoted in the meantime.
func (r *OrderRepo) SetWaitlistPosition(ctx context.Context, orderID uint64, position int) error {
	const q = `UPDATE orders SET waitlist_position = ?, updated_at = ?
               WHERE id = ? AND status = 'WAITLIST'`
	_, err := r.db.ExecContext(ctx, q, position, time.Now().UTC(), orderID)
	return err
}

// ListByUser returns every order created by the account, newest first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
          WHERE user_id = ? ORDER BY created_at DESC`
	return r.listBySchedule(ctx, q, userID)
}
