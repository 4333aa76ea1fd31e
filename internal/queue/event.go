// Package queue defines message payloads exchanged over the message broker
// and the publisher/consumer pair that moves them.
package queue

// Template keys for notification events.  Downstream delivery (email, IM)
// picks the channel and renders the template; the booking core only states
// what happened.
const (
	TemplateBookingCreated   = "booking.created"
	TemplateBookingPaid      = "booking.paid"
	TemplateBookingCancelled = "booking.cancelled"
	TemplateBookingTimeout   = "booking.timeout"
	TemplateWaitlistPromoted = "waitlist.promoted"
	TemplateQueueCalled      = "queue.called"
	TemplateQueuePassed      = "queue.passed"
	TemplateQueueCompleted   = "queue.completed"
)

// NotificationEvent is published after a booking, waitlist or consultation
// transition commits.  It contains enough information for the notification
// worker to render and deliver a message without querying the primary
// database.  Delivery is best effort: publishing happens post-commit and a
// failure never rolls back the transition that produced the event.
type NotificationEvent struct {
	TargetUser  uint64            `json:"target_user"`
	TemplateKey string            `json:"template_key"`
	Fields      map[string]string `json:"fields"`
	OccurredAt  string            `json:"occurred_at"`
}
