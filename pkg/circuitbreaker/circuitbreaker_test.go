package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(cfg)
	b.now = func() time.Time { return now }
	return b, &now
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(fail), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2})

	_ = b.Execute(fail)
	require.NoError(t, b.Execute(succeed))
	_ = b.Execute(fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})

	var transitions []string
	b.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	_ = b.Execute(fail)
	assert.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(succeed))
	require.NoError(t, b.Execute(succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})

	_ = b.Execute(fail)
	*now = now.Add(time.Second)
	assert.ErrorIs(t, b.Execute(fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second, HalfOpenMaxRequests: 1})

	_ = b.Execute(fail)
	*now = now.Add(time.Second)

	err := b.Execute(func() error {
		return b.Execute(succeed)
	})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})
	_ = b.Execute(fail)
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(succeed))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unknown", State(9).String())
}
