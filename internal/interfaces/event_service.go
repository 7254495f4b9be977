package interfaces

import "context"

// EventType names a topic on the job event bus
type EventType string

const (
	// EventJobStatus carries job_id, status, start_url, updated_at and, when set, error and result
	EventJobStatus EventType = "job_status"
	// EventJobProgress carries job_id, status and the partial progress map just merged
	EventJobProgress EventType = "job_progress"
)

// Event is one message on the bus. Payloads are JSON-ready maps.
type Event struct {
	Type    EventType
	Payload interface{}
}

type EventHandler func(ctx context.Context, event Event) error

// EventService delivers job events to subscribers in publish order
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish queues the event and returns without waiting for handlers
	Publish(ctx context.Context, event Event) error
	// PublishSync runs every handler and joins their errors
	PublishSync(ctx context.Context, event Event) error

	Close() error
}
