package game

import (
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/timer"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
)

type LifecycleConfig struct {
	PreGameSeconds int32
	GameSeconds    int32
	BerserkSeconds int32
	// Tick is the length of one countdown unit.
	Tick time.Duration
}

// Lifecycle drives a match through PreGame, Active and GameOver. Phases
// only move forward; Reset is the only way back to PreGame.
type Lifecycle struct {
	auth   *Authority
	hub    *replication.Hub
	timers *timer.Scope
	events *Events
	config LifecycleConfig
	log    zerolog.Logger

	phase    *replication.Property[Phase]
	preGame  *replication.Property[int32]
	active   *replication.Property[int32]
	gameOver *replication.Property[bool]
	berserk  *replication.Property[bool]

	ticker  timer.Handle
	started bool
	hooks   []func(Phase)
}

func NewLifecycle(
	auth *Authority,
	hub *replication.Hub,
	timers *timer.Scope,
	events *Events,
	config LifecycleConfig,
	logger zerolog.Logger,
) *Lifecycle {
	if config.PreGameSeconds < 1 {
		logger.Warn().Int32("seconds", config.PreGameSeconds).Msg("invalid pre-game length, using default")
		config.PreGameSeconds = DefaultPreGameSeconds
	}
	if config.GameSeconds < 1 {
		logger.Warn().Int32("seconds", config.GameSeconds).Msg("invalid game length, using default")
		config.GameSeconds = DefaultGameSeconds
	}
	if config.Tick <= 0 {
		config.Tick = time.Second
	}

	return &Lifecycle{
		auth:     auth,
		hub:      hub,
		timers:   timers,
		events:   events,
		config:   config,
		log:      logger,
		phase:    replication.NewProperty(hub, "phase", PhasePreGame),
		preGame:  replication.NewProperty(hub, "pregame", config.PreGameSeconds),
		active:   replication.NewProperty(hub, "active", config.GameSeconds),
		gameOver: replication.NewProperty(hub, "gameover", false),
		berserk:  replication.NewProperty(hub, "berserk", false),
	}
}

// OnPhase registers a hook that runs after every phase transition,
// including the reset back to PreGame.
func (l *Lifecycle) OnPhase(hook func(Phase)) {
	l.hooks = append(l.hooks, hook)
}

func (l *Lifecycle) Phase() Phase {
	return l.phase.Get()
}

func (l *Lifecycle) PreGameRemaining() int32 {
	return l.preGame.Get()
}

func (l *Lifecycle) ActiveRemaining() int32 {
	return l.active.Get()
}

func (l *Lifecycle) GameOver() bool {
	return l.gameOver.Get()
}

func (l *Lifecycle) Berserk() bool {
	return l.berserk.Get()
}

func (l *Lifecycle) Started() bool {
	return l.started
}

// InputLocked reports whether players and NPCs must not act.
func (l *Lifecycle) InputLocked() bool {
	return l.phase.Get() != PhaseActive
}

func (l *Lifecycle) set(name string, fn func() error) {
	if err := fn(); err != nil {
		l.log.Error().Err(err).Msgf("could not publish %s", name)
	}
}

// Start begins the pre-game countdown. The current value is published
// immediately so nobody waits a full tick for it.
func (l *Lifecycle) Start() {
	l.auth.Mutate("start match", func() { l.start() })
}

func (l *Lifecycle) start() {
	if l.started {
		return
	}

	l.started = true

	l.hub.Batch(func() {
		l.set("phase", func() error { return l.phase.Set(PhasePreGame) })
		l.set("pregame", func() error { return l.preGame.Set(l.config.PreGameSeconds) })
	})
	l.schedule()
	l.log.Info().
		Int32("pregame", l.config.PreGameSeconds).
		Int32("game", l.config.GameSeconds).
		Msg("match starting")
}

func (l *Lifecycle) schedule() {
	l.timers.Cancel(l.ticker)
	handle, err := l.timers.Repeating(l.config.Tick, l.Tick)
	if err != nil {
		l.log.Error().Err(err).Msg("could not schedule countdown")
		return
	}
	l.ticker = handle
}

// Tick advances the countdown of the current phase by one unit.
func (l *Lifecycle) Tick() {
	l.auth.Mutate("tick", func() { l.tick() })
}

func (l *Lifecycle) tick() {
	switch l.phase.Get() {
	case PhasePreGame:
		l.advancePreGame()
	case PhaseActive:
		l.advanceActive()
	}
}

func (l *Lifecycle) advancePreGame() {
	remaining := max(l.preGame.Get()-1, 0)

	entered := false
	l.hub.Batch(func() {
		l.set("pregame", func() error { return l.preGame.Set(remaining) })
		if remaining > 0 {
			return
		}

		l.timers.Cancel(l.ticker)
		l.ticker = 0
		l.set("phase", func() error { return l.phase.Set(PhaseActive) })
		entered = true
	})

	if !entered {
		return
	}

	l.log.Info().Msg("match is active")
	l.transitioned(PhaseActive)
	l.schedule()
}

func (l *Lifecycle) advanceActive() {
	remaining := max(l.active.Get()-1, 0)

	ended := false
	l.hub.Batch(func() {
		l.set("active", func() error { return l.active.Set(remaining) })
		l.set("berserk", func() error {
			return l.berserk.Set(remaining > 0 && remaining <= l.config.BerserkSeconds)
		})
		if remaining > 0 {
			return
		}

		l.timers.Cancel(l.ticker)
		l.ticker = 0
		l.set("phase", func() error { return l.phase.Set(PhaseGameOver) })
		l.set("gameover", func() error { return l.gameOver.Set(true) })
		ended = true
	})

	if !ended {
		return
	}

	l.log.Info().Msg("match is over")
	l.transitioned(PhaseGameOver)
}

func (l *Lifecycle) transitioned(phase Phase) {
	l.events.Publish(PhaseChanged{Phase: phase})
	for _, hook := range l.hooks {
		hook(phase)
	}
}

// Stop cancels the countdown without changing any state.
func (l *Lifecycle) Stop() {
	l.timers.Cancel(l.ticker)
	l.ticker = 0
}

// Reset cancels the countdown and restores the initial PreGame values.
// Start must be called again to run the new match.
func (l *Lifecycle) Reset() {
	l.auth.Mutate("reset match", func() { l.reset() })
}

func (l *Lifecycle) reset() {
	l.Stop()
	l.started = false

	l.hub.Batch(func() {
		l.set("phase", func() error { return l.phase.Set(PhasePreGame) })
		l.set("pregame", func() error { return l.preGame.Set(l.config.PreGameSeconds) })
		l.set("active", func() error { return l.active.Set(l.config.GameSeconds) })
		l.set("gameover", func() error { return l.gameOver.Set(false) })
		l.set("berserk", func() error { return l.berserk.Set(false) })
	})
	l.transitioned(PhasePreGame)
}
