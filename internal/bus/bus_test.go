package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		Topic:            "ws.abc",
		Kind:             EventTransformationCompleted,
		Payload:          map[string]any{"id": "x", "tokens_used": float64(42)},
		OriginInstanceID: "inst-1",
		EmittedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env, decoded)
}

func TestTopicHelpers(t *testing.T) {
	workspaceID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	userID := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

	assert.Equal(t, "ws.11111111-2222-3333-4444-555555555555", WorkspaceTopic(workspaceID))
	assert.Equal(t,
		"ws.11111111-2222-3333-4444-555555555555.user.aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		UserTopic(workspaceID, userID))
	assert.Equal(t, "instance.i-42", InstanceTopic("i-42"))
}

func TestTerminalKinds(t *testing.T) {
	assert.True(t, EventTransformationCompleted.Terminal())
	assert.True(t, EventTransformationFailed.Terminal())
	assert.False(t, EventTransformationStarted.Terminal())
	assert.False(t, EventTransformationProgress.Terminal())
	assert.False(t, EventPresenceJoin.Terminal())
}
