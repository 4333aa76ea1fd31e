// Package service implements the booking core: slot accounting, order
// lifecycle policy, waitlist promotion and the live consultation queue.
// Services depend on narrow store interfaces so the arbitration logic can be
// exercised against in-memory fakes; the repository package provides the
// MySQL and Redis implementations.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/hospital-registration/internal/model"
	"github.com/iliyamo/hospital-registration/internal/queue"
	"github.com/iliyamo/hospital-registration/internal/repository"
)

// TxRunner runs a function inside one database transaction.  Operations that
// pair a ledger mutation with an order write use it so that both commit or
// roll back together.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// SlotLedger is the only mutation path for a schedule's remaining capacity.
// Reserve fails closed with repository.ErrExhausted at zero; a failed Release
// must abort the enclosing transaction.
type SlotLedger interface {
	ReserveTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) error
	ReleaseTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) error
}

// OrderStore is the order persistence surface consumed by the services.
type OrderStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error
	GetTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (*model.Order, error)
	Get(ctx context.Context, id uint64) (*model.Order, error)
	UpdateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error
	GetActiveOnScheduleTx(ctx context.Context, tx *sql.Tx, patientID, scheduleID uint64) (*model.Order, error)
	CountActiveInWindowTx(ctx context.Context, tx *sql.Tx, patientID uint64, from, to time.Time) (int, error)
	CallingExistsTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (bool, error)
	SelectNextForCallTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (*model.Order, error)
	ListConfirmedBySchedule(ctx context.Context, scheduleID uint64) ([]*model.Order, error)
	ListWaitlistBySchedule(ctx context.Context, scheduleID uint64) ([]*model.Order, error)
	CountBySchedule(ctx context.Context, scheduleID uint64, status model.OrderStatus) (int, error)
	ListTimedOutIDs(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
	SetWaitlistPosition(ctx context.Context, orderID uint64, position int) error
	ListByUser(ctx context.Context, userID uint64) ([]*model.Order, error)
}

// ScheduleStore reads schedules.  GetTx with forUpdate doubles as the
// per-schedule mutex for consultation-queue arbitration.
type ScheduleStore interface {
	GetTx(ctx context.Context, tx *sql.Tx, id uint64, forUpdate bool) (*model.Schedule, error)
	Get(ctx context.Context, id uint64) (*model.Schedule, error)
}

// PatientStore reads patients for ownership checks and discount class.
type PatientStore interface {
	Get(ctx context.Context, id uint64) (*model.Patient, error)
}

// PriceSource walks the doctor, clinic, department fee chain; nil means no
// level defines a fee and the hardcoded fallback applies.
type PriceSource interface {
	Resolve(ctx context.Context, slotType model.SlotType, doctorID, clinicID, departmentID uint64) (*int64, error)
}

// PolicySource resolves operator-tunable limits with scope fallback.
type PolicySource interface {
	MaxPassCount(ctx context.Context, doctorID uint64) (int, error)
	CancelHoursBefore(ctx context.Context, clinicID uint64) (int, error)
	QuotaWindowDays(ctx context.Context) (int, error)
	QuotaMaxOrders(ctx context.Context) (int, error)
}

// WaitQueue is the ephemeral FIFO per schedule.  It is authoritative for
// ordering while reachable; repository.ErrQueueUnavailable signals callers to
// fall back to the durable mirror.
type WaitQueue interface {
	Available() bool
	Append(ctx context.Context, scheduleID uint64, e repository.WaitEntry) (int, error)
	PopHead(ctx context.Context, scheduleID uint64) (*repository.WaitEntry, error)
	PushFront(ctx context.Context, scheduleID uint64, e repository.WaitEntry) error
	Remove(ctx context.Context, scheduleID, patientID uint64) (bool, error)
	Entries(ctx context.Context, scheduleID uint64) ([]repository.WaitEntry, error)
	QueuedScheduleIDs(ctx context.Context) ([]uint64, error)
}

// Notifier delivers a notification event on a best-effort basis.  It must
// never block the caller on broker I/O and never surface an error; state
// transitions commit with or without their notification.
type Notifier interface {
	Notify(event queue.NotificationEvent)
}

// PaymentGateway is the single opaque call into the external payment system.
type PaymentGateway interface {
	Charge(ctx context.Context, orderNo string, amountCents int64) error
}

// GatewayFunc adapts a function to the PaymentGateway interface.
type GatewayFunc func(ctx context.Context, orderNo string, amountCents int64) error

// Charge implements PaymentGateway.
func (f GatewayFunc) Charge(ctx context.Context, orderNo string, amountCents int64) error {
	return f(ctx, orderNo, amountCents)
}
