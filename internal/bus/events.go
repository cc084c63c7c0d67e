// Package bus is the in-process event distribution system used for three
// concerns: the usage-record write path, user-visible notifications
// emitted by the failover executor, and async-job delivery outcomes
// published by the delivery queue. All are plain pub/sub; no publisher
// depends on a subscriber's existence.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a topic on the bus.
type EventType string

const (
	// EventUsageRecorded carries a routing.UsageRecord (as Blackboard["usage"])
	// from the failover executor to the usage queue's background drain.
	EventUsageRecorded EventType = "usage.recorded"

	// EventNotificationChainExhausted fires when every entry in a resolved
	// chain failed.
	EventNotificationChainExhausted EventType = "notification.chain_exhausted"
	// EventNotificationPayment fires on a payment/credit-class failure.
	EventNotificationPayment EventType = "notification.payment"
	// EventNotificationRateLimit fires on a rate-limit-class failure.
	EventNotificationRateLimit EventType = "notification.rate_limit"

	// EventAsyncJobDelivered fires when an async CLI job's output has been
	// handed to the delivery channel.
	EventAsyncJobDelivered EventType = "async_job.delivered"
	// EventAsyncJobFailed fires when an async CLI job terminates in error
	// or is force-killed for staleness.
	EventAsyncJobFailed EventType = "async_job.failed"
)

// Event is a single message flowing through the bus.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	RequestID string `json:"requestId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Provider  string `json:"provider,omitempty"`

	Message string `json:"message,omitempty"`

	// Blackboard carries the type-specific payload (a routing.UsageRecord,
	// a DeliveryResult, etc.) so subscribers that care about a given topic
	// can type-assert the one key they expect without the bus package
	// depending on every payload type.
	Blackboard map[string]any `json:"blackboard,omitempty"`
}

// NewEvent creates an Event of the given type with a fresh ID and the
// current timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}
