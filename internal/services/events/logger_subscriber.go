package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs job events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["job_id"].(string); ok {
				logEvent = logEvent.Str("job_id", id)
			}
			if status, ok := payload["status"].(string); ok {
				logEvent = logEvent.Str("status", status)
			}
			if progress, ok := payload["progress"].(map[string]interface{}); ok {
				if phase, ok := progress["phase"].(string); ok {
					logEvent = logEvent.Str("phase", phase)
				}
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every job event type
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventJobStatus,
		interfaces.EventJobProgress,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to job events")

	return nil
}
