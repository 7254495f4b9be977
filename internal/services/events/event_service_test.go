package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/interfaces"
)

type collector struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (c *collector) handle(ctx context.Context, event interfaces.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestService_PublishPreservesOrder(t *testing.T) {
	s := NewService(arbor.NewLogger())
	c := &collector{}
	require.NoError(t, s.Subscribe(interfaces.EventJobProgress, c.handle))

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Publish(context.Background(), interfaces.Event{
			Type:    interfaces.EventJobProgress,
			Payload: map[string]interface{}{"seq": i},
		}))
	}
	require.NoError(t, s.Close())

	require.Equal(t, 50, c.count())
	for i, ev := range c.events {
		assert.Equal(t, i, ev.Payload.(map[string]interface{})["seq"])
	}
}

func TestService_OnlyMatchingTypeDelivered(t *testing.T) {
	s := NewService(arbor.NewLogger())
	defer s.Close()

	status := &collector{}
	require.NoError(t, s.Subscribe(interfaces.EventJobStatus, status.handle))

	require.NoError(t, s.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobProgress}))
	require.NoError(t, s.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobStatus}))

	assert.Equal(t, 1, status.count())
}

func TestService_Unsubscribe(t *testing.T) {
	s := NewService(arbor.NewLogger())
	defer s.Close()

	c := &collector{}
	handler := interfaces.EventHandler(c.handle)
	require.NoError(t, s.Subscribe(interfaces.EventJobStatus, handler))
	require.NoError(t, s.Unsubscribe(interfaces.EventJobStatus, handler))
	assert.Error(t, s.Unsubscribe(interfaces.EventJobStatus, handler))

	require.NoError(t, s.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobStatus}))
	assert.Equal(t, 0, c.count())
}

func TestService_PublishSyncCollectsErrors(t *testing.T) {
	s := NewService(arbor.NewLogger())
	defer s.Close()

	boom := errors.New("boom")
	c := &collector{}
	require.NoError(t, s.Subscribe(interfaces.EventJobStatus, func(ctx context.Context, event interfaces.Event) error {
		return boom
	}))
	require.NoError(t, s.Subscribe(interfaces.EventJobStatus, func(ctx context.Context, event interfaces.Event) error {
		panic("handler exploded")
	}))
	require.NoError(t, s.Subscribe(interfaces.EventJobStatus, c.handle))

	err := s.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobStatus})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "handler exploded")
	assert.Equal(t, 1, c.count())
}

func TestService_PanickingHandlerDoesNotStopDispatch(t *testing.T) {
	s := NewService(arbor.NewLogger())
	c := &collector{}
	require.NoError(t, s.Subscribe(interfaces.EventJobStatus, func(ctx context.Context, event interfaces.Event) error {
		panic("handler exploded")
	}))
	require.NoError(t, s.Subscribe(interfaces.EventJobStatus, c.handle))

	require.NoError(t, s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobStatus}))
	require.NoError(t, s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobStatus}))

	assert.Eventually(t, func() bool { return c.count() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
}

func TestService_PublishAfterClose(t *testing.T) {
	s := NewService(arbor.NewLogger())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobStatus})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestService_SubscribeNilHandler(t *testing.T) {
	s := NewService(arbor.NewLogger())
	defer s.Close()
	assert.Error(t, s.Subscribe(interfaces.EventJobStatus, nil))
}

func TestLoggerSubscriber(t *testing.T) {
	s := NewService(arbor.NewLogger())
	defer s.Close()

	require.NoError(t, SubscribeLoggerToAllEvents(s, arbor.NewLogger()))
	assert.NoError(t, s.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventJobProgress,
		Payload: map[string]interface{}{
			"job_id":   "job-1",
			"status":   "running",
			"progress": map[string]interface{}{"phase": "scraping"},
		},
	}))
}
