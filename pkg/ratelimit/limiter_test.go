package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCounter struct {
	counts map[string]int64
	ttl    time.Duration
	err    error
}

func (m *memCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	m.counts[key]++
	return m.counts[key], m.ttl, nil
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	c := &memCounter{counts: map[string]int64{}, ttl: 1500 * time.Millisecond}
	l := NewLimiter(c, zap.NewNop())

	for i := 0; i < 3; i++ {
		res, err := l.Allow(context.Background(), ScopeUser, "7", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(context.Background(), ScopeUser, "7", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(4), res.CurrentCount)
	assert.Equal(t, int64(2), res.RetryAfterSeconds)
	assert.Contains(t, c.counts, "rate_limit:user:7")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	c := &memCounter{counts: map[string]int64{}}
	l := NewLimiter(c, zap.NewNop())

	_, _ = l.Allow(context.Background(), ScopeLogin, "1.1.1.1", 1, time.Minute)
	res, err := l.Allow(context.Background(), ScopeLogin, "2.2.2.2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_MissingTTLFallsBackToWindow(t *testing.T) {
	c := &memCounter{counts: map[string]int64{"rate_limit:global:all": 10}}
	l := NewLimiter(c, zap.NewNop())

	res, err := l.Allow(context.Background(), ScopeGlobal, "all", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(60), res.RetryAfterSeconds)
}

func TestLimiter_DisabledLimit(t *testing.T) {
	c := &memCounter{counts: map[string]int64{}, err: errors.New("should not be called")}
	l := NewLimiter(c, zap.NewNop())

	res, err := l.Allow(context.Background(), ScopeGlobal, "all", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiter_CounterError(t *testing.T) {
	l := NewLimiter(&memCounter{err: errors.New("redis down")}, zap.NewNop())
	_, err := l.Allow(context.Background(), ScopeGlobal, "all", 5, time.Minute)
	require.Error(t, err)
}
