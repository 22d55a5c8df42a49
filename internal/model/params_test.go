package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/api/internal/model"
)

func seedPtr(v int64) *int64 { return &v }

func TestHasExplicitSeed(t *testing.T) {
	p := model.GenerationParams{Prompt: "a cat"}
	assert.False(t, p.HasExplicitSeed())

	p.Seed = seedPtr(42)
	assert.True(t, p.HasExplicitSeed())

	p.Seed = seedPtr(0)
	assert.True(t, p.HasExplicitSeed())

	// negative seeds are outside the accepted range and count as unset
	p.Seed = seedPtr(-1)
	assert.False(t, p.HasExplicitSeed())
}

func TestNormalizedDefaultsSeed(t *testing.T) {
	p := model.GenerationParams{Prompt: "a cat"}
	n := p.Normalized()
	require.NotNil(t, n.Seed)
	assert.GreaterOrEqual(t, *n.Seed, int64(0))

	// the original is untouched
	assert.Nil(t, p.Seed)

	// an explicit seed passes through unchanged
	p.Seed = seedPtr(42)
	n = p.Normalized()
	require.NotNil(t, n.Seed)
	assert.Equal(t, int64(42), *n.Seed)
}

func TestForItemSeedSemantics(t *testing.T) {
	// an explicit template seed is locked across every item
	locked := model.GenerationParams{Prompt: "a cat", Seed: seedPtr(7)}
	for i := 0; i < 5; i++ {
		item := locked.ForItem()
		require.NotNil(t, item.Seed)
		assert.Equal(t, int64(7), *item.Seed)
	}

	// without one, every item draws its own seed
	free := model.GenerationParams{Prompt: "a cat"}
	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		item := free.ForItem()
		require.NotNil(t, item.Seed)
		assert.GreaterOrEqual(t, *item.Seed, int64(0))
		seen[*item.Seed] = true
	}
	assert.Greater(t, len(seen), 1, "per-item seeds should vary")
}

func TestParamsRoundTrip(t *testing.T) {
	p := model.GenerationParams{
		Prompt: "a cat in the rain",
		Model:  "flux",
		Width:  1024,
		Height: 768,
		Seed:   seedPtr(99),
		Safe:   true,
	}
	data, err := model.EncodeParams(p)
	require.NoError(t, err)

	decoded, err := model.DecodeParams(data)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}
