package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	stopped int
}

func (f *fakeConsumer) Stop() { f.stopped++ }

func TestBuildConsumers_StopsBuiltOnFailure(t *testing.T) {
	var built []*fakeConsumer
	boom := errors.New("amqp dial failed")

	got, err := buildConsumers(3, func(i int) (*fakeConsumer, error) {
		if i == 2 {
			return nil, boom
		}
		c := &fakeConsumer{}
		built = append(built, c)
		return c, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
	require.Len(t, built, 2)
	for _, c := range built {
		assert.Equal(t, 1, c.stopped)
	}
}

func TestBuildConsumers_AllBuilt(t *testing.T) {
	got, err := buildConsumers(3, func(i int) (*fakeConsumer, error) {
		return &fakeConsumer{}, nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, c := range got {
		assert.Zero(t, c.stopped)
	}
}

func TestQueueName(t *testing.T) {
	assert.Equal(t, "contenthub.points.changed.q", queueName("points.changed"))
}
