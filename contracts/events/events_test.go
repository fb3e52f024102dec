package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/pkg/trace"
)

func TestNewEnvelopeCarriesTrace(t *testing.T) {
	ctx := trace.WithContext(context.Background(), "trace-1")
	env := NewEnvelope(ctx, 7)

	assert.Equal(t, int64(7), env.TenantID)
	assert.Equal(t, "trace-1", env.TraceID)
	assert.Len(t, env.EventID, 36)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestEnvelopeIsFlattened(t *testing.T) {
	p := PointsChangedPayload{
		Envelope: Envelope{EventID: "e1", TenantID: 1, TraceID: "t1"},
		UserID:   2,
		Delta:    10,
		Reason:   "checkin",
		NewLevel: 2,
		OldLevel: 1,
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "t1", m["trace_id"])
	assert.Equal(t, "checkin", m["reason"])
	assert.True(t, p.LevelUp())
}
