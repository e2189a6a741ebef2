package secondary

import (
	"context"
	"time"
)

// Record event types.
const (
	EventRecordCreated   = "record.created"
	EventRecordActivated = "record.activated"
	EventRecordUpdated   = "record.updated"
)

// RecordEvent announces a change to an operational record.
// Handlers reload the record, so the event carries identity only.
type RecordEvent struct {
	Type       string    `json:"type"`
	RecordID   string    `json:"record_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers record events to the trigger handlers.
type EventPublisher interface {
	Publish(ctx context.Context, event RecordEvent) error
}
