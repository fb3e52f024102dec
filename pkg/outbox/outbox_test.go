package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"contenthub/pkg/circuitbreaker"
	"contenthub/pkg/trace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu     sync.Mutex
	events []*Event
	sent   []int64
}

func (s *memStore) PendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.Status == StatusPending && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(ctx context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == eventID {
			e.Status = StatusSent
			s.sent = append(s.sent, eventID)
		}
	}
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, eventID int64, maxRetries int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == eventID {
			e.RetryCount++
			if e.RetryCount >= maxRetries {
				e.Status = StatusFailed
			}
			return e.Status, nil
		}
	}
	return "", ErrEventNotFound
}

type published struct {
	routingKey, messageID, traceID string
}

type fakePublisher struct {
	err  error
	msgs []published
}

func (p *fakePublisher) PublishRaw(ctx context.Context, routingKey, messageID string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{routingKey, messageID, trace.FromContext(ctx)})
	return nil
}

func newEvent(id int64, payload string) *Event {
	return &Event{ID: id, RoutingKey: "points.changed", Payload: []byte(payload), Status: StatusPending}
}

func TestDispatcher_PublishesAndMarksSent(t *testing.T) {
	store := &memStore{events: []*Event{
		newEvent(1, `{"trace_id":"abc"}`),
		newEvent(2, `{}`),
	}}
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, nil, DispatcherConfig{}, zap.NewNop())

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.sent)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "outbox-1", pub.msgs[0].messageID)
	assert.Equal(t, "abc", pub.msgs[0].traceID)
	assert.Empty(t, pub.msgs[1].traceID)
}

func TestDispatcher_FailureSchedulesRetryThenFails(t *testing.T) {
	store := &memStore{events: []*Event{newEvent(1, `{}`)}}
	pub := &fakePublisher{err: errors.New("broker down")}
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 100})
	d := NewDispatcher(store, pub, breaker, DispatcherConfig{MaxRetries: 2}, zap.NewNop())

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, store.events[0].Status)
	assert.Equal(t, 1, store.events[0].RetryCount)

	_, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, store.events[0].Status)
}

func TestDispatcher_StopsWhenBreakerOpens(t *testing.T) {
	store := &memStore{events: []*Event{newEvent(1, `{}`), newEvent(2, `{}`), newEvent(3, `{}`)}}
	pub := &fakePublisher{err: errors.New("broker down")}
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, OpenTimeout: time.Hour})
	d := NewDispatcher(store, pub, breaker, DispatcherConfig{}, zap.NewNop())

	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.events[0].RetryCount)
	assert.Equal(t, 0, store.events[1].RetryCount)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, store.events[1].RetryCount)
}

func TestDispatcher_StartStopsOnCancel(t *testing.T) {
	store := &memStore{events: []*Event{newEvent(1, `{}`)}}
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, nil, DispatcherConfig{Interval: 5 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Len(t, pub.msgs, 1)
}

func TestEventMessageIDStable(t *testing.T) {
	e := newEvent(42, `{}`)
	assert.Equal(t, e.MessageID(), e.MessageID())
	assert.Equal(t, "outbox-42", e.MessageID())
}

func TestWithPayloadTrace_InvalidJSON(t *testing.T) {
	ctx := withPayloadTrace(context.Background(), []byte(`not json`))
	assert.Empty(t, trace.FromContext(ctx))
}

type memReplayStore struct {
	failed map[int64]*Event
}

func (s *memReplayStore) GetEvent(ctx context.Context, tenantID, eventID int64) (*Event, error) {
	if e, ok := s.failed[eventID]; ok {
		return e, nil
	}
	return nil, ErrEventNotFound
}

func (s *memReplayStore) FailedEvents(ctx context.Context, tenantID int64, limit int) ([]*Event, error) {
	var out []*Event
	for _, e := range s.failed {
		if e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memReplayStore) Requeue(ctx context.Context, tenantID, eventID int64) error {
	e, ok := s.failed[eventID]
	if !ok || e.Status != StatusFailed {
		return ErrEventNotFound
	}
	e.Status = StatusPending
	e.RetryCount = 0
	return nil
}

func (s *memReplayStore) RequeueFailed(ctx context.Context, tenantID int64, limit int) (int64, error) {
	var n int64
	for id := range s.failed {
		if s.Requeue(ctx, tenantID, id) == nil {
			n++
		}
	}
	return n, nil
}

func TestReplayService(t *testing.T) {
	store := &memReplayStore{failed: map[int64]*Event{
		1: {ID: 1, Status: StatusFailed, RetryCount: 5},
		2: {ID: 2, Status: StatusFailed, RetryCount: 5},
	}}
	svc := NewReplayService(store)

	e, err := svc.Replay(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, e.Status)
	assert.Zero(t, e.RetryCount)

	_, err = svc.Replay(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrEventNotFound)

	n, err := svc.ReplayFailed(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 500, clampLimit(10000))
	assert.Equal(t, 7, clampLimit(7))
}
