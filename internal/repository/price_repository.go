package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/hospital-registration/internal/model"
)

// PriceRepo walks the doctor, clinic, department price chain for a slot
// type.  Each level stores three nullable per-category default fees; the
// first non-null value wins.  When every level is null the service applies
// its hardcoded global fallback table.
type PriceRepo struct {
	db *sql.DB
}

// NewPriceRepo returns a new PriceRepo bound to the given database.
func NewPriceRepo(db *sql.DB) *PriceRepo { return &PriceRepo{db: db} }

// priceColumn maps a slot type to the fee column used at every level of the
// chain.  The column name is interpolated, never caller input.
func priceColumn(slotType model.SlotType) string {
	switch slotType {
	case model.SlotExpert:
		return "price_expert_cents"
	case model.SlotSpecial:
		return "price_special_cents"
	default:
		return "price_normal_cents"
	}
}

// Resolve returns the base fee in cents for the slot type, or nil when no
// level of the chain defines one.
func (r *PriceRepo) Resolve(ctx context.Context, slotType model.SlotType, doctorID, clinicID, departmentID uint64) (*int64, error) {
	col := priceColumn(slotType)
	lookups := []struct {
		table string
		id    uint64
	}{
		{"doctors", doctorID},
		{"clinics", clinicID},
		{"departments", departmentID},
	}
	for _, l := range lookups {
		if l.id == 0 {
			continue
		}
		var price sql.NullInt64
		q := `SELECT ` + col + ` FROM ` + l.table + ` WHERE id = ?`
		err := r.db.QueryRowContext(ctx, q, l.id).Scan(&price)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if price.Valid {
			p := price.Int64
			return &p, nil
		}
	}
	return nil, nil
}
