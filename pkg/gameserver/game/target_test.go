package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetTwoHits(t *testing.T) {
	f := newFixture(t)
	f.targets.Seed(1)
	target := f.targets.Spawn()
	require.NotNil(t, target)
	value := target.ScoreValue
	assert.GreaterOrEqual(t, value, int32(1))
	assert.LessOrEqual(t, value, int32(2))

	assert.True(t, f.targets.Hit(target.ID, 1))
	assert.Equal(t, float32(TargetScaleFactor), target.Scale)
	assert.Empty(t, f.ledger.Scores())

	state, ok := f.targets.state.Get(target.ID)
	require.True(t, ok)
	assert.Equal(t, uint8(1), state.Hits)

	assert.True(t, f.targets.Hit(target.ID, 1))
	assert.True(t, target.Destroyed)
	score, _ := f.ledger.Score(1)
	assert.Equal(t, value, score)

	_, ok = f.targets.Get(target.ID)
	assert.False(t, ok)
	_, ok = f.targets.state.Get(target.ID)
	assert.False(t, ok)

	// Gone targets can't pay out twice.
	assert.False(t, f.targets.Hit(target.ID, 0))
	_, ok = f.ledger.Score(0)
	assert.False(t, ok)
}

func TestWavesReplaceLeftovers(t *testing.T) {
	f := newFixture(t)
	f.targets.StartWaves()
	require.True(t, f.targets.Waving())
	assert.Equal(t, 3, f.targets.Len())

	first := f.targets.SpawnWave()
	require.Len(t, first, 3)
	assert.Equal(t, 3, f.targets.Len())
	assert.Equal(t, 3, f.targets.state.Len())
	for _, id := range first {
		_, ok := f.targets.Get(id)
		assert.True(t, ok)
	}

	f.targets.StopWaves()
	assert.False(t, f.targets.Waving())
	f.targets.Clear()
	assert.Zero(t, f.targets.state.Len())
}
