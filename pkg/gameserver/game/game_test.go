package game

import (
	"testing"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/timer"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
)

// fixture wires the components the way the server does, with a dispatcher
// that queues timer callbacks for the test to run.
type fixture struct {
	t         *testing.T
	hub       *replication.Hub
	auth      *Authority
	events    *Events
	fires     chan func()
	scheduler *timer.Scheduler
	ledger    *Ledger
	health    *Health
	lifecycle *Lifecycle
	sessions  *Registry
	arsenal   *Arsenal
	targets   *Targets
	pickups   *Pickups
	gate      *Gate
	restarts  int
	nextID    EntityID
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:      t,
		hub:    replication.NewHub(replication.RoleAuthority),
		events: NewEvents(),
		fires:  make(chan func(), 64),
	}
	log := zerolog.Nop()

	f.auth = NewAuthority(replication.RoleAuthority, log)
	f.scheduler = timer.New(func(fn func()) { f.fires <- fn })
	t.Cleanup(f.scheduler.Close)

	f.ledger = NewLedger(f.auth, f.hub, f.events, log)
	f.health = NewHealth(f.auth, f.hub, f.ledger, f.scheduler.Scope(), f.events, HealthConfig{
		MaxHP:        100,
		RespawnDelay: time.Millisecond,
		DestroyDelay: time.Millisecond,
		NPCKillBonus: DefaultNPCKillBonus,
	}, log)
	f.lifecycle = NewLifecycle(f.auth, f.hub, f.scheduler.Scope(), f.events, LifecycleConfig{
		PreGameSeconds: 3,
		GameSeconds:    60,
		BerserkSeconds: 10,
		Tick:           time.Hour,
	}, log)
	f.sessions = NewRegistry(NewAssignment(2))
	f.arsenal = NewArsenal(f.auth, f.hub, []string{"rifle", "launcher"}, log)
	f.targets = NewTargets(f.auth, f.hub, f.ledger, f.scheduler.Scope(), f.events, TargetConfig{
		WaveSize:     3,
		WaveInterval: time.Hour,
		MinScore:     1,
		MaxScore:     2,
	}, f.allocate, log)
	f.pickups = NewPickups(f.auth, f.hub, f.health, f.scheduler.Scope(), f.events, time.Millisecond, log)
	f.gate = NewGate(f.lifecycle, f.health, f.sessions, f.arsenal, f.events, func() { f.restarts++ }, log)
	return f
}

func (f *fixture) allocate() EntityID {
	f.nextID++
	return f.nextID
}

// runTimer waits for the next timer callback and runs it.
func (f *fixture) runTimer() {
	f.t.Helper()
	select {
	case fn := <-f.fires:
		fn()
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for timer")
	}
}

// join adds a player with an armed entity.
func (f *fixture) join(controller ControllerID) *PlayerSession {
	session, _ := f.sessions.Join(controller)
	session.Entity = f.allocate()
	f.health.Spawn(session.Entity, KindPlayer, session.Team, 0)
	f.arsenal.Equip(session.Entity)
	return session
}

// activate runs the pre-game countdown to completion.
func (f *fixture) activate() {
	for f.lifecycle.Phase() == PhasePreGame {
		f.lifecycle.Tick()
	}
}
