package service

import (
	"context"
	"time"

	"github.com/iliyamo/hospital-registration/internal/queue"
)

// BrokerNotifier publishes notification events to RabbitMQ in a background
// goroutine.  Callers fire it after their transaction commits; a broker
// outage costs the notification, never the transition.
type BrokerNotifier struct {
	Timeout time.Duration
}

// NewBrokerNotifier returns a notifier with a sane publish timeout.
func NewBrokerNotifier() *BrokerNotifier {
	return &BrokerNotifier{Timeout: 5 * time.Second}
}

// Notify implements Notifier.
func (n *BrokerNotifier) Notify(event queue.NotificationEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
		defer cancel()
		// Publish errors are logged inside the queue package.
		_ = queue.PublishNotification(ctx, event)
	}()
}

// newEvent assembles a NotificationEvent with the occurrence time stamped in.
func newEvent(targetUser uint64, templateKey string, fields map[string]string) queue.NotificationEvent {
	return queue.NotificationEvent{
		TargetUser:  targetUser,
		TemplateKey: templateKey,
		Fields:      fields,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}
}
