package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

// Config scope types, broadest to narrowest.
const (
	ScopeGlobal = "GLOBAL"
	ScopeClinic = "CLINIC"
	ScopeDoctor = "DOCTOR"
)

// Config keys consumed by the booking core.
const (
	KeyMaxPassCount      = "consultation.max_pass_count"
	KeyCancelHoursBefore = "registration.cancel_hours_before"
	KeyQuotaWindowDays   = "registration.quota_window_days"
	KeyQuotaMaxOrders    = "registration.quota_max_orders"
)

// Hardcoded defaults used when neither a scoped nor a global row exists.
const (
	DefaultMaxPassCount      = 3
	DefaultCancelHoursBefore = 2
	DefaultQuotaWindowDays   = 8
	DefaultQuotaMaxOrders    = 10
)

// ConfigRepo reads operator-tunable policy from the system_configs table.
// Values resolve narrowest scope first (e.g. a per-doctor pass-over limit)
// and fall back to the GLOBAL row, then to the hardcoded default.
type ConfigRepo struct {
	db *sql.DB
}

// NewConfigRepo returns a new ConfigRepo bound to the given database.
func NewConfigRepo(db *sql.DB) *ConfigRepo { return &ConfigRepo{db: db} }

// value returns the raw config string for (key, scope, scopeID), falling back
// to the GLOBAL scope.  The second return reports whether a row was found.
func (r *ConfigRepo) value(ctx context.Context, key, scopeType string, scopeID uint64) (string, bool, error) {
	const scoped = `SELECT config_value FROM system_configs
                    WHERE config_key = ? AND scope_type = ? AND scope_id = ? AND is_active = TRUE`
	const global = `SELECT config_value FROM system_configs
                    WHERE config_key = ? AND scope_type = 'GLOBAL' AND is_active = TRUE`
	var v string
	if scopeType != ScopeGlobal && scopeID != 0 {
		err := r.db.QueryRowContext(ctx, scoped, key, scopeType, scopeID).Scan(&v)
		if err == nil {
			return v, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, err
		}
	}
	err := r.db.QueryRowContext(ctx, global, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// intValue resolves an integer config with scope fallback and a default.
// Malformed rows fall through to the default rather than failing the request.
func (r *ConfigRepo) intValue(ctx context.Context, key, scopeType string, scopeID uint64, def int) (int, error) {
	raw, ok, err := r.value(ctx, key, scopeType, scopeID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	n, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return def, nil
	}
	return n, nil
}

// MaxPassCount resolves the pass-over limit: doctor override, then global,
// then the default of 3.
func (r *ConfigRepo) MaxPassCount(ctx context.Context, doctorID uint64) (int, error) {
	return r.intValue(ctx, KeyMaxPassCount, ScopeDoctor, doctorID, DefaultMaxPassCount)
}

// CancelHoursBefore resolves how many hours before the session start a
// cancellation is still accepted.
func (r *ConfigRepo) CancelHoursBefore(ctx context.Context, clinicID uint64) (int, error) {
	return r.intValue(ctx, KeyCancelHoursBefore, ScopeClinic, clinicID, DefaultCancelHoursBefore)
}

// QuotaWindowDays resolves the length of the rolling booking window in days.
func (r *ConfigRepo) QuotaWindowDays(ctx context.Context) (int, error) {
	return r.intValue(ctx, KeyQuotaWindowDays, ScopeGlobal, 0, DefaultQuotaWindowDays)
}

// QuotaMaxOrders resolves the maximum active orders per patient inside the
// rolling window.
func (r *ConfigRepo) QuotaMaxOrders(ctx context.Context) (int, error) {
	return r.intValue(ctx, KeyQuotaMaxOrders, ScopeGlobal, 0, DefaultQuotaMaxOrders)
}
