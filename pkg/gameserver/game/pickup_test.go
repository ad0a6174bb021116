package game

import (
	"testing"

	opt "github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickupHealsAndRespawns(t *testing.T) {
	f := newFixture(t)
	e := f.health.Spawn(1, KindPlayer, 0, 100)
	f.health.ApplyDamage(e.ID, 80, opt.None[Instigator]())

	pickup := f.pickups.Place(50, 30)
	require.NotNil(t, pickup)

	assert.True(t, f.pickups.Touch(50, e.ID))
	assert.Equal(t, int32(50), e.HP)
	assert.False(t, pickup.Available)
	assert.False(t, f.pickups.Touch(50, e.ID))

	available, _ := f.pickups.available.Get(50)
	assert.False(t, available)

	f.runTimer()
	assert.True(t, pickup.Available)
	assert.True(t, f.pickups.Touch(50, e.ID))
	assert.Equal(t, int32(80), e.HP)
}

func TestPickupHealsToFull(t *testing.T) {
	f := newFixture(t)
	e := f.health.Spawn(1, KindPlayer, 0, 100)
	f.health.ApplyDamage(e.ID, 99, opt.None[Instigator]())

	f.pickups.Place(50, 0)
	f.pickups.Touch(50, e.ID)
	assert.Equal(t, int32(100), e.HP)
}

func TestPickupIgnoresDead(t *testing.T) {
	f := newFixture(t)
	e := f.health.Spawn(1, KindPlayer, 0, 100)
	f.health.ApplyDamage(e.ID, 100, opt.None[Instigator]())

	f.pickups.Place(50, 10)
	assert.False(t, f.pickups.Touch(50, e.ID))
	assert.False(t, f.pickups.Touch(51, e.ID))
}

func TestPickupClear(t *testing.T) {
	f := newFixture(t)
	e := f.health.Spawn(1, KindPlayer, 0, 100)
	f.pickups.Place(50, 10)
	f.pickups.Touch(50, e.ID)
	f.pickups.Clear()

	f.runTimer()
	_, ok := f.pickups.Get(50)
	assert.False(t, ok)
	_, ok = f.pickups.available.Get(50)
	assert.False(t, ok)
}
