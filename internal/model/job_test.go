package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/api/internal/model"
)

func TestRequestStatusTransitions(t *testing.T) {
	assert.True(t, model.RequestStatusPending.CanTransition(model.RequestStatusProcessing))
	assert.True(t, model.RequestStatusProcessing.CanTransition(model.RequestStatusCompleted))
	assert.True(t, model.RequestStatusProcessing.CanTransition(model.RequestStatusFailed))

	assert.False(t, model.RequestStatusPending.CanTransition(model.RequestStatusCompleted))
	assert.False(t, model.RequestStatusCompleted.CanTransition(model.RequestStatusProcessing))
	assert.False(t, model.RequestStatusFailed.CanTransition(model.RequestStatusPending))
}

func TestRequestStatusTerminal(t *testing.T) {
	assert.False(t, model.RequestStatusPending.IsTerminal())
	assert.False(t, model.RequestStatusProcessing.IsTerminal())
	assert.True(t, model.RequestStatusCompleted.IsTerminal())
	assert.True(t, model.RequestStatusFailed.IsTerminal())
}

func TestBatchStatusTransitions(t *testing.T) {
	assert.True(t, model.BatchStatusPending.CanTransition(model.BatchStatusProcessing))
	assert.True(t, model.BatchStatusProcessing.CanTransition(model.BatchStatusPaused))
	assert.True(t, model.BatchStatusPaused.CanTransition(model.BatchStatusProcessing))
	assert.True(t, model.BatchStatusProcessing.CanTransition(model.BatchStatusCompleted))
	assert.True(t, model.BatchStatusProcessing.CanTransition(model.BatchStatusFailed))

	// cancel is allowed from every non-terminal state
	assert.True(t, model.BatchStatusPending.CanTransition(model.BatchStatusCancelled))
	assert.True(t, model.BatchStatusProcessing.CanTransition(model.BatchStatusCancelled))
	assert.True(t, model.BatchStatusPaused.CanTransition(model.BatchStatusCancelled))

	// terminal states never move again
	for _, s := range []model.BatchStatus{model.BatchStatusCompleted, model.BatchStatusCancelled, model.BatchStatusFailed} {
		assert.False(t, s.CanTransition(model.BatchStatusProcessing), "from %s", s)
		assert.False(t, s.CanTransition(model.BatchStatusCancelled), "from %s", s)
		assert.True(t, s.IsTerminal(), "from %s", s)
	}

	// pause only makes sense while processing
	assert.False(t, model.BatchStatusPending.CanTransition(model.BatchStatusPaused))
	assert.False(t, model.BatchStatusPaused.CanTransition(model.BatchStatusCompleted))
}

func TestStringListRoundTrip(t *testing.T) {
	list := model.StringList{"a", "b", "c"}
	value, err := list.Value()
	require.NoError(t, err)

	var decoded model.StringList
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, list, decoded)

	var empty model.StringList
	value, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}
