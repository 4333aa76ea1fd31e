package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/hospital-registration/internal/model"
)

// ScheduleRepo provides read access to schedules.  Capacity mutations do not
// live here; they go through SlotLedger exclusively.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo returns a new ScheduleRepo bound to the given database.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleColumns = `id, doctor_id, clinic_id, department_id, date, time_section,
       slot_type, total_slots, remaining_slots, price_cents, status, created_at`

func scanSchedule(scan func(dest ...any) error) (*model.Schedule, error) {
	var s model.Schedule
	var price sql.NullInt64
	err := scan(
		&s.ID, &s.DoctorID, &s.ClinicID, &s.DepartmentID, &s.Date, &s.TimeSection,
		&s.SlotType, &s.TotalSlots, &s.RemainingSlots, &price, &s.Status, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Int64
		s.PriceCents = &p
	}
	return &s, nil
}

// GetTx loads one schedule inside the transaction.  With forUpdate set the
// schedule row is locked until commit; the consultation queue uses this as
// the per-schedule mutex so that "who is being called" stays single-valued.
// Returns ErrNotFound when no such schedule exists.
func (r *ScheduleRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (*model.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	s, err := scanSchedule(tx.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Get loads one schedule outside any transaction.
func (r *ScheduleRepo) Get(ctx context.Context, id uint64) (*model.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	s, err := scanSchedule(r.db.QueryRowContext(ctx, q, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}
