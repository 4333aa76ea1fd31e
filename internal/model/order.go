package model

import "time"

// OrderStatus enumerates the lifecycle states of a registration order.
// The set is closed: every operation checks the transition table below
// before persisting a new status, so illegal jumps are rejected instead
// of silently written.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"   // slot reserved, awaiting payment
	OrderConfirmed OrderStatus = "CONFIRMED" // paid, will enter the consultation queue
	OrderWaitlist  OrderStatus = "WAITLIST"  // queued for an exhausted schedule, no slot held
	OrderCancelled OrderStatus = "CANCELLED" // cancelled by patient or staff
	OrderTimeout   OrderStatus = "TIMEOUT"   // payment window elapsed, cancelled by the sweeper
	OrderCompleted OrderStatus = "COMPLETED" // consultation finished
	OrderNoShow    OrderStatus = "NO_SHOW"   // passed over too many times during the session
)

// PaymentStatus enumerates payment states tracked alongside the order status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// orderTransitions lists the allowed successor states for each order status.
// Statuses missing from the map are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled, OrderTimeout},
	OrderConfirmed: {OrderCancelled, OrderCompleted, OrderNoShow},
	OrderWaitlist:  {OrderPending, OrderCancelled},
}

// CanTransition reports whether an order may move from its current status to
// the given one.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no allowed successors.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// ConsumesSlot reports whether an order in this status occupies one unit of
// schedule capacity.  WAITLIST orders never do; they only hold a queue place.
func (s OrderStatus) ConsumesSlot() bool {
	return s == OrderPending || s == OrderConfirmed
}

// Order records a patient's claim against one schedule.  It corresponds to a
// row in the `orders` table.
//
// Fields:
//  ID              : primary key identifier.
//  OrderNo         : opaque order number shown to the patient.
//  PatientID       : the person attending the appointment.
//  UserID          : the account that created the order (self or guardian).
//  DoctorID        : doctor of the booked schedule (denormalised for queries).
//  ClinicID        : clinic of the booked schedule (denormalised).
//  ScheduleID      : schedule this order claims capacity on.
//  PriceCents      : resolved registration fee in cents after discount.
//  Status          : order lifecycle status (see OrderStatus).
//  PaymentStatus   : payment lifecycle status.
//  WaitlistPosition: durable mirror of the Redis queue position (1 = head).
//  PassCount       : times the patient was called and did not show.
//  IsCalling       : the patient is currently being called in the session.
//  CallTime        : last time the patient was called.
//  VisitTime       : when the consultation completed.
//  Priority        : queue priority; lower is called earlier (walk-in add-ons
//                     use negative values).
//  Symptoms        : free-text complaint captured at booking time.
//  CreatedAt       : creation timestamp; also the waitlist join time.
//  UpdatedAt       : last update timestamp.
type Order struct {
	ID               uint64        // orders.id
	OrderNo          string        // orders.order_no
	PatientID        uint64        // orders.patient_id
	UserID           uint64        // orders.user_id
	DoctorID         uint64        // orders.doctor_id
	ClinicID         uint64        // orders.clinic_id
	ScheduleID       uint64        // orders.schedule_id
	PriceCents       int64         // orders.price_cents
	Status           OrderStatus   // orders.status
	PaymentStatus    PaymentStatus // orders.payment_status
	WaitlistPosition *int          // orders.waitlist_position (nullable)
	PassCount        int           // orders.pass_count
	IsCalling        bool          // orders.is_calling
	CallTime         *time.Time    // orders.call_time (nullable)
	VisitTime        *time.Time    // orders.visit_time (nullable)
	Priority         int           // orders.priority
	Symptoms         string        // orders.symptoms
	CreatedAt        time.Time     // orders.created_at
	UpdatedAt        time.Time     // orders.updated_at
}

// Active reports whether the order still claims demand against its schedule:
// either holding a slot or waiting for one.  Used by the duplicate-booking
// and quota checks.
func (o *Order) Active() bool {
	return o.Status.ConsumesSlot() || o.Status == OrderWaitlist
}

// QueueLess orders two CONFIRMED orders for the consultation call sequence.
// The key is (priority, pass_count, created_at): passed-over patients sort
// behind fresh arrivals, priority overrides everything.
func QueueLess(a, b *Order) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.PassCount != b.PassCount {
		return a.PassCount < b.PassCount
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
