package gameserver

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/replication"

	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, configure ...func(*Config)) *Server {
	t.Helper()

	conf := DefaultConfig()
	conf.Tick = time.Hour
	conf.Targets.WaveInterval = time.Hour
	conf.Targets.WaveSize = 2
	conf.RespawnDelay = time.Hour
	conf.SpawnPoints = []game.SpawnPoint{
		{Name: "red", Tag: "Team0"},
		{Name: "blue", Tag: "Team1"},
	}
	for _, fn := range configure {
		fn(&conf)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, &conf, nil, nil)
	go s.Poll(ctx)

	t.Cleanup(func() {
		s.Shutdown()
		cancel()
	})
	return s
}

// advance ticks the lifecycle until the active clock shows remaining.
func advance(t *testing.T, s *Server, remaining int32) {
	t.Helper()
	require.NoError(t, s.Call("advance", func() {
		for s.Lifecycle.Phase() == game.PhasePreGame {
			s.Lifecycle.Tick()
		}
		for s.Lifecycle.Phase() == game.PhaseActive && s.Lifecycle.ActiveRemaining() > remaining {
			s.Lifecycle.Tick()
		}
	}))
}

func TestLateJoinSnapshot(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())
	advance(t, s, 37)
	require.NoError(t, s.Call("score", func() {
		s.Ledger.Increment(0, 40)
		s.Ledger.Increment(1, 10)
	}))

	client, session, err := s.Connect(5, "127.0.0.1", "")
	require.NoError(t, err)
	assert.Equal(t, game.TeamID(0), session.Team)

	mirror := replication.NewMirror()
	mirror.Apply(client.Outbox.Drain())

	active, ok := replication.Get[int32](mirror, "active")
	require.True(t, ok)
	assert.Equal(t, int32(37), active)

	phase, _ := replication.Get[game.Phase](mirror, "phase")
	assert.Equal(t, game.PhaseActive, phase)

	assert.Equal(t,
		map[game.TeamID]int32{0: 40, 1: 10},
		replication.GetMap[game.TeamID, int32](mirror, "scores"),
	)

	players := replication.GetMap[game.ControllerID, game.PlayerInfo](mirror, "players")
	assert.Equal(t, game.PlayerInfo{Team: 0, Entity: session.Entity}, players[5])
}

func TestConnectAssignsTeams(t *testing.T) {
	s := newTestServer(t)

	client, first, err := s.Connect(1, "a", "")
	require.NoError(t, err)
	_, second, err := s.Connect(2, "b", "")
	require.NoError(t, err)

	assert.Equal(t, first.Team, client.Team)
	assert.Equal(t, first.Entity, client.Entity)
	assert.NotZero(t, client.Entity)

	assert.Equal(t, game.TeamID(0), first.Team)
	assert.Equal(t, "red", first.Spawn.Name)
	assert.Equal(t, game.TeamID(1), second.Team)
	assert.Equal(t, "blue", second.Spawn.Name)

	_, _, err = s.Connect(1, "a", "")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	_, _, err = s.Connect(LocalController, "a", "")
	assert.ErrorIs(t, err, ErrReserved)
}

func TestDisconnectReleasesEverything(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())

	client, first, err := s.Connect(1, "a", "")
	require.NoError(t, err)
	_, _, err = s.Connect(2, "b", "")
	require.NoError(t, err)

	// Leave a respawn pending on the entity.
	advance(t, s, 60)
	_, err = s.Damage(first.Entity, game.DefaultMaxHP, opt.None[game.Instigator]())
	require.NoError(t, err)

	require.NoError(t, s.Disconnect(1))
	assert.ErrorIs(t, s.Disconnect(1), ErrUnknownClient)

	select {
	case <-client.Outbox.Done():
	default:
		t.Fatal("outbox still open")
	}

	require.NoError(t, s.Call("check", func() {
		_, ok := s.Health.Get(first.Entity)
		assert.False(t, ok)
		_, ok = s.Sessions.Get(1)
		assert.False(t, ok)
		_, ok = s.Sessions.Teams().Team(1)
		assert.False(t, ok)
		_, ok = s.players.Get(1)
		assert.False(t, ok)
	}))
	assert.Equal(t, 1, s.Hub.Subscribers())
	assert.Equal(t, 1, s.Clients.Len())

	// Round robin carries on from where it was.
	_, third, err := s.Connect(3, "c", "")
	require.NoError(t, err)
	assert.Equal(t, game.TeamID(0), third.Team)
}

func TestSubmitGoesThroughGate(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())
	_, _, err := s.Connect(1, "a", "")
	require.NoError(t, err)

	// Still in pre-game.
	require.NoError(t, s.Submit(1, game.Request{Action: game.ActionStartFire}))
	require.NoError(t, s.Call("check", func() {
		session, _ := s.Sessions.Get(1)
		assert.False(t, session.Firing)
		assert.Equal(t, 1, s.Gate.Dropped())
	}))

	advance(t, s, 60)
	require.NoError(t, s.Submit(1, game.Request{Action: game.ActionStartFire}))
	require.NoError(t, s.Call("check", func() {
		session, _ := s.Sessions.Get(1)
		assert.True(t, session.Firing)
	}))

	assert.ErrorIs(t, s.Submit(9, game.Request{Action: game.ActionStopFire}), ErrUnknownClient)
}

func TestSubmitIsRateLimited(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RequestRate = 0.001
		c.RequestBurst = 1
	})
	_, _, err := s.Connect(1, "a", "")
	require.NoError(t, err)

	assert.NoError(t, s.Submit(1, game.Request{Action: game.ActionSetAim}))
	assert.ErrorIs(t, s.Submit(1, game.Request{Action: game.ActionSetAim}), ErrRateLimited)
	assert.Equal(t, 1, s.Clients.Limited(1))
}

func TestDeathStopsFiring(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())
	_, session, err := s.Connect(1, "a", "")
	require.NoError(t, err)
	advance(t, s, 60)

	require.NoError(t, s.SetAmmo(session.Entity, game.Ammo{Clip: 3, Reserve: 9}))
	require.NoError(t, s.Submit(1, game.Request{Action: game.ActionStartFire}))

	applied, err := s.Damage(session.Entity, game.DefaultMaxHP, opt.Some(game.Instigator{Entity: 99, Team: 1}))
	require.NoError(t, err)
	assert.Equal(t, int32(game.DefaultMaxHP), applied)

	require.NoError(t, s.Call("check", func() {
		current, _ := s.Sessions.Get(1)
		assert.False(t, current.Firing)
		ammo, _ := s.Arsenal.Ammo(session.Entity)
		assert.Equal(t, game.Ammo{}, ammo)
	}))
}

func TestGameOverAndRestart(t *testing.T) {
	s := newTestServer(t)
	events := s.Events.Subscribe()
	defer events.Done()

	require.NoError(t, s.Start())
	_, before, err := s.Connect(1, "a", "")
	require.NoError(t, err)
	advance(t, s, 0)

	require.NoError(t, s.Call("score", func() {
		assert.Equal(t, game.PhaseGameOver, s.Lifecycle.Phase())
		assert.False(t, s.Targets.Waving())
		assert.True(t, s.Ledger.Frozen())
	}))

	var ended game.MatchEnded
	require.Eventually(t, func() bool {
		select {
		case event := <-events.Recv():
			if e, ok := event.(game.MatchEnded); ok {
				ended = e
				return true
			}
		default:
		}
		return false
	}, time.Second, time.Millisecond)
	assert.Equal(t, s.MatchID(), ended.Match)
	assert.Equal(t, "arena", ended.Level)

	first := s.MatchID()
	require.NoError(t, s.Submit(1, game.Request{Action: game.ActionRestart}))
	require.NoError(t, s.Call("check", func() {
		assert.Equal(t, game.PhasePreGame, s.Lifecycle.Phase())
		assert.True(t, s.Lifecycle.Started())
		assert.Equal(t, map[game.TeamID]int32{0: 0, 1: 0}, s.Ledger.Scores())

		session, ok := s.Sessions.Get(1)
		require.True(t, ok)
		assert.Equal(t, before.Team, session.Team)
		assert.NotEqual(t, before.Entity, session.Entity)
		assert.True(t, s.Health.Alive(session.Entity))
	}))
	assert.NotEqual(t, first, s.MatchID())
}

func TestTransitionLevel(t *testing.T) {
	s := newTestServer(t)
	world := s.World.(*game.StaticWorld)
	require.NoError(t, s.Start())

	require.NoError(t, s.TransitionLevel(""))
	assert.Equal(t, 0, world.Loads)

	_, _, err := s.Connect(1, "a", "")
	require.NoError(t, err)

	require.NoError(t, s.TransitionLevel("dust"))
	assert.Equal(t, 1, world.Loads)
	assert.Equal(t, "dust", s.Level())
	assert.Equal(t, 1, s.Sessions.Len())
}

func TestTargetsAndPickups(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.Pickups = []PickupConfig{{HealAmount: 0}}
	})
	require.NoError(t, s.Start())
	_, session, err := s.Connect(1, "a", "")
	require.NoError(t, err)
	advance(t, s, 60)

	var targets []game.EntityID
	var pickup game.EntityID
	require.NoError(t, s.Call("find", func() {
		assert.True(t, s.Targets.Waving())
		for id := game.EntityID(1); id <= s.nextEntity; id++ {
			if _, ok := s.Targets.Get(id); ok {
				targets = append(targets, id)
			}
			if _, ok := s.Pickups.Get(id); ok {
				pickup = id
			}
		}
	}))
	require.Len(t, targets, 2)

	counted, err := s.HitTarget(targets[0], 1)
	require.NoError(t, err)
	assert.True(t, counted)
	counted, _ = s.HitTarget(targets[0], 1)
	assert.True(t, counted)

	_, err = s.Damage(session.Entity, 100, opt.None[game.Instigator]())
	require.NoError(t, err)
	taken, err := s.TouchPickup(pickup, session.Entity)
	require.NoError(t, err)
	assert.True(t, taken)

	require.NoError(t, s.Call("check", func() {
		score, _ := s.Ledger.Score(1)
		assert.GreaterOrEqual(t, score, int32(1))
		e, _ := s.Health.Get(session.Entity)
		assert.Equal(t, e.MaxHP, e.HP)
	}))
}

func TestLocalPlayer(t *testing.T) {
	s := newTestServer(t)
	session, err := s.JoinLocal(func() game.Vec3 { return game.Vec3{Y: 3} })
	require.NoError(t, err)
	assert.Equal(t, LocalController, session.Controller)
	assert.True(t, session.Local)

	require.NoError(t, s.Call("aim", func() {
		current, _ := s.Sessions.Get(LocalController)
		assert.Equal(t, game.Vec3{Y: 1}, s.Gate.AimRay(current).Direction)
	}))
}

func TestNPC(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.DestroyDelay = time.Millisecond
	})
	require.NoError(t, s.Start())

	id, err := s.SpawnNPC(1, 50)
	require.NoError(t, err)
	_, err = s.Damage(id, 50, opt.Some(game.Instigator{Entity: 1, Team: 0}))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		gone := false
		s.Call("check", func() {
			_, ok := s.Health.Get(id)
			gone = !ok
		})
		return gone
	}, time.Second, 5*time.Millisecond)

	status, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, int32(game.DefaultNPCKillBonus), status.Scores[0])
}

func TestShutdown(t *testing.T) {
	s := newTestServer(t)
	s.Shutdown()

	assert.ErrorIs(t, s.Call("noop", func() {}), ErrClosed)
	assert.ErrorIs(t, s.Start(), ErrClosed)
}

func TestGameOverIsFinal(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())

	_, a, err := s.Connect(1, "a", "")
	require.NoError(t, err)
	_, b, err := s.Connect(2, "b", "")
	require.NoError(t, err)
	require.NotEqual(t, a.Team, b.Team)

	advance(t, s, 30)
	var target game.EntityID
	require.NoError(t, s.Call("setup", func() {
		s.Ledger.Increment(b.Team, 40)
		target = s.Targets.IDs()[0]
	}))
	counted, err := s.HitTarget(target, a.Team)
	require.NoError(t, err)
	require.True(t, counted)

	advance(t, s, 0)
	final := map[game.TeamID]int32{a.Team: 0, b.Team: 40}

	applied, err := s.Damage(b.Entity, game.DefaultMaxHP*2, opt.Some(game.Instigator{Entity: a.Entity, Team: a.Team}))
	require.NoError(t, err)
	assert.Zero(t, applied)

	counted, err = s.HitTarget(target, a.Team)
	require.NoError(t, err)
	assert.False(t, counted)

	require.NoError(t, s.Call("check", func() {
		assert.True(t, s.Health.Alive(b.Entity))
		assert.Equal(t, final, s.Ledger.Scores())

		// Kills from other sources cannot move the score either.
		s.Health.ApplyDamage(b.Entity, game.DefaultMaxHP, opt.Some(game.Instigator{Entity: a.Entity, Team: a.Team}))
		assert.Equal(t, final, s.Ledger.Scores())
	}))
}

func TestIdentityReadsDuringRestart(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			assert.NoError(t, s.Restart())
		}
	}()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		seen[s.MatchID()] = true
		assert.Equal(t, "arena", s.Level())
	}
	<-done

	assert.NotEmpty(t, seen)
	var current string
	require.NoError(t, s.Call("id", func() { current = s.ID.String() }))
	assert.Equal(t, current, s.MatchID())
}

type logBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) lines(containing string) []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var out []string
	for _, line := range strings.Split(b.buf.String(), "\n") {
		if strings.Contains(line, containing) {
			out = append(out, line)
		}
	}
	return out
}

func TestLogsFollowRestart(t *testing.T) {
	output := &logBuffer{}
	previous := log.Logger
	log.Logger = zerolog.New(output)
	t.Cleanup(func() { log.Logger = previous })

	s := newTestServer(t)
	require.NoError(t, s.Start())
	first := s.MatchID()

	require.NoError(t, s.Restart())
	second := s.MatchID()
	require.NotEqual(t, first, second)

	_, _, err := s.Connect(1, "a", "")
	require.NoError(t, err)

	restarting := output.lines("match restarting")
	require.Len(t, restarting, 1)
	assert.Contains(t, restarting[0], second)

	for _, line := range output.lines("player joined") {
		assert.NotContains(t, line, first)
	}
}
