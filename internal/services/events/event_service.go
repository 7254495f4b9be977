package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
)

// ErrClosed is returned by Publish after Close
var ErrClosed = errors.New("event service closed")

const defaultBacklog = 1024

type queuedEvent struct {
	ctx   context.Context
	event interfaces.Event
}

// Service is an in-process pub/sub bus. Publish hands events to a single
// dispatcher goroutine so subscribers see them in publish order.
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	logger      arbor.ILogger

	queue     chan queuedEvent
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewService creates a new event service and starts its dispatcher
func NewService(logger arbor.ILogger) *Service {
	s := &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
		queue:       make(chan queuedEvent, defaultBacklog),
		done:        make(chan struct{}),
	}
	common.SafeGo(logger, "event-dispatcher", s.dispatch, nil)
	return s
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// Unsubscribe removes a handler from an event type. Handlers are matched by function identity.
func (s *Service) Unsubscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	target := reflect.ValueOf(handler).Pointer()

	s.mu.Lock()
	defer s.mu.Unlock()

	handlers := s.subscribers[eventType]
	for i, h := range handlers {
		if reflect.ValueOf(h).Pointer() == target {
			remaining := make([]interfaces.EventHandler, 0, len(handlers)-1)
			remaining = append(remaining, handlers[:i]...)
			remaining = append(remaining, handlers[i+1:]...)
			s.subscribers[eventType] = remaining
			s.logger.Debug().
				Str("event_type", string(eventType)).
				Msg("Event handler unsubscribed")
			return nil
		}
	}

	return fmt.Errorf("handler not found for event type: %s", eventType)
}

// Publish queues an event for delivery and returns without waiting for handlers
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		s.logger.Warn().
			Str("event_type", string(event.Type)).
			Msg("Event backlog full, dropping event")
		return fmt.Errorf("event backlog full, dropped %s", event.Type)
	}
}

// PublishSync delivers an event to every subscriber and waits for them
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers := s.handlersFor(event.Type)
	if len(handlers) == 0 {
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := s.invoke(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %w", errors.Join(errs...))
	}
	return nil
}

// Close stops accepting events, delivers what is queued and drops all subscribers
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		<-s.done

		s.mu.Lock()
		s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
		s.mu.Unlock()
		s.logger.Info().Msg("Event service closed")
	})
	return nil
}

func (s *Service) dispatch() {
	defer close(s.done)
	for q := range s.queue {
		for _, h := range s.handlersFor(q.event.Type) {
			if err := s.invoke(q.ctx, h, q.event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(q.event.Type)).
					Msg("Event handler failed")
			}
		}
	}
}

func (s *Service) handlersFor(eventType interfaces.EventType) []interfaces.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]interfaces.EventHandler(nil), s.subscribers[eventType]...)
}

// invoke shields the bus from a panicking handler
func (s *Service) invoke(ctx context.Context, h interfaces.EventHandler, event interfaces.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}
