package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/hospital-registration/internal/model"
)

// PatientRepo provides read access to patients.  Patient CRUD belongs to the
// org-data service; the booking core only needs lookups for ownership checks
// and discount classification.
type PatientRepo struct {
	db *sql.DB
}

// NewPatientRepo returns a new PatientRepo bound to the given database.
func NewPatientRepo(db *sql.DB) *PatientRepo { return &PatientRepo{db: db} }

// Get loads one patient.  Returns ErrNotFound when no such patient exists.
func (r *PatientRepo) Get(ctx context.Context, id uint64) (*model.Patient, error) {
	const q = `SELECT id, user_id, name, identity, created_at FROM patients WHERE id = ?`
	var p model.Patient
	err := r.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.UserID, &p.Name, &p.Identity, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
