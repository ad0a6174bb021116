package game

import (
	"testing"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/timer"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhasesMoveForward(t *testing.T) {
	f := newFixture(t)
	var phases []Phase
	f.lifecycle.OnPhase(func(p Phase) { phases = append(phases, p) })

	assert.Equal(t, PhasePreGame, f.lifecycle.Phase())
	assert.True(t, f.lifecycle.InputLocked())

	previous := f.lifecycle.Phase()
	for i := 0; i < 100; i++ {
		f.lifecycle.Tick()
		current := f.lifecycle.Phase()
		assert.GreaterOrEqual(t, current, previous)
		assert.Equal(t, current == PhasePreGame, f.lifecycle.PreGameRemaining() > 0)
		previous = current
	}

	assert.Equal(t, PhaseGameOver, f.lifecycle.Phase())
	assert.True(t, f.lifecycle.GameOver())
	assert.True(t, f.lifecycle.InputLocked())
	assert.Zero(t, f.lifecycle.ActiveRemaining())
	assert.Equal(t, []Phase{PhaseActive, PhaseGameOver}, phases)
}

func TestCountdownValues(t *testing.T) {
	f := newFixture(t)
	outbox := f.hub.Subscribe(1, "pregame", "active", "phase")
	outbox.Drain()

	f.lifecycle.Tick()
	assert.Equal(t, int32(2), f.lifecycle.PreGameRemaining())
	f.lifecycle.Tick()
	f.lifecycle.Tick()
	assert.Equal(t, PhaseActive, f.lifecycle.Phase())
	assert.False(t, f.lifecycle.InputLocked())
	assert.Equal(t, int32(60), f.lifecycle.ActiveRemaining())

	mirror := replication.NewMirror()
	mirror.Apply(outbox.Drain())
	phase, _ := replication.Get[Phase](mirror, "phase")
	pregame, _ := replication.Get[int32](mirror, "pregame")
	assert.Equal(t, PhaseActive, phase)
	assert.Zero(t, pregame)

	f.lifecycle.Tick()
	assert.Equal(t, int32(59), f.lifecycle.ActiveRemaining())
}

func TestBerserkWindow(t *testing.T) {
	f := newFixture(t)
	f.activate()

	for f.lifecycle.ActiveRemaining() > 11 {
		f.lifecycle.Tick()
		assert.False(t, f.lifecycle.Berserk())
	}

	f.lifecycle.Tick()
	assert.Equal(t, int32(10), f.lifecycle.ActiveRemaining())
	assert.True(t, f.lifecycle.Berserk())

	for f.lifecycle.Phase() == PhaseActive {
		f.lifecycle.Tick()
	}
	assert.False(t, f.lifecycle.Berserk())
}

func TestResetReturnsToPreGame(t *testing.T) {
	f := newFixture(t)
	f.lifecycle.Start()
	for f.lifecycle.Phase() != PhaseGameOver {
		f.lifecycle.Tick()
	}

	f.lifecycle.Reset()
	assert.Equal(t, PhasePreGame, f.lifecycle.Phase())
	assert.Equal(t, int32(3), f.lifecycle.PreGameRemaining())
	assert.Equal(t, int32(60), f.lifecycle.ActiveRemaining())
	assert.False(t, f.lifecycle.GameOver())
	assert.False(t, f.lifecycle.Started())
}

func TestTimerDrivenMatch(t *testing.T) {
	fires := make(chan func(), 16)
	scheduler := timer.New(func(fn func()) { fires <- fn })
	defer scheduler.Close()

	hub := replication.NewHub(replication.RoleAuthority)
	auth := NewAuthority(replication.RoleAuthority, zerolog.Nop())
	lifecycle := NewLifecycle(auth, hub, scheduler.Scope(), NewEvents(), LifecycleConfig{
		PreGameSeconds: 1,
		GameSeconds:    2,
		Tick:           time.Millisecond,
	}, zerolog.Nop())

	lifecycle.Start()
	lifecycle.Start()

	deadline := time.After(2 * time.Second)
	for lifecycle.Phase() != PhaseGameOver {
		select {
		case fn := <-fires:
			fn()
		case <-deadline:
			t.Fatal("match never ended")
		}
	}

	require.Equal(t, 0, scheduler.Active())
}

func TestInvalidLengthsFallBack(t *testing.T) {
	hub := replication.NewHub(replication.RoleAuthority)
	auth := NewAuthority(replication.RoleAuthority, zerolog.Nop())
	lifecycle := NewLifecycle(auth, hub, timer.New(nil).Scope(), NewEvents(), LifecycleConfig{}, zerolog.Nop())

	assert.Equal(t, int32(DefaultPreGameSeconds), lifecycle.PreGameRemaining())
	assert.Equal(t, int32(DefaultGameSeconds), lifecycle.ActiveRemaining())
}
