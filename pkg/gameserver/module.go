package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cfoust/skirmish/pkg/chanlock"
	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/gameserver/timer"
	"github.com/cfoust/skirmish/pkg/replication"
	"github.com/cfoust/skirmish/pkg/utils"

	"github.com/google/uuid"
	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed   = errors.New("server closed")
	ErrReserved = errors.New("controller id is reserved")
)

// LocalController is the controller of the listen-server host. Remote
// clients are numbered from 1.
const LocalController game.ControllerID = 0

const INBOX_SIZE = 256

var defaultSpawn = game.SpawnPoint{Name: "default"}

// identity is what off-loop readers may see of the current match.
type identity struct {
	match string
	level string
}

type task struct {
	name string
	fn   func()
	done chan struct{}
}

// Server owns the match. All game state is touched only by the goroutine
// running Poll; everything else hands it work through the inbox.
type Server struct {
	utils.Session
	*Config

	ID uuid.UUID

	Hub       *replication.Hub
	Scheduler *timer.Scheduler
	Events    *game.Events
	Authority *game.Authority
	Ledger    *game.Ledger
	Health    *game.Health
	Lifecycle *game.Lifecycle
	Sessions  *game.Registry
	Arsenal   *game.Arsenal
	Targets   *game.Targets
	Pickups   *game.Pickups
	Gate      *game.Gate
	World     game.World
	Brain     game.Brain
	Clients   *ClientManager
	Commands  *ServerCommands

	match   *replication.Property[string]
	level   *replication.Property[string]
	players *replication.Map[game.ControllerID, game.PlayerInfo]

	matchStarted time.Time
	nextEntity   game.EntityID
	ident        atomic.Pointer[identity]

	inbox    chan task
	chanLock *chanlock.Chanlock
	log      zerolog.Logger
}

// New builds a server for one match. A nil world serves the configured
// spawn points; a nil brain means no AI is attached.
func New(ctx context.Context, conf *Config, world game.World, brain game.Brain) *Server {
	id := uuid.New()
	// The match id changes on restart, so it is logged per line.
	logger := log.With().Str("component", "match").Logger()

	if world == nil {
		world = game.NewStaticWorld(conf.Level, conf.SpawnPoints, logger)
	}
	if brain == nil {
		brain = game.NoBrain
	}

	s := &Server{
		Session:  utils.NewSession(ctx),
		Config:   conf,
		ID:       id,
		Hub:      replication.NewHub(replication.RoleAuthority),
		Events:   game.NewEvents(),
		World:    world,
		Brain:    brain,
		Clients:  NewClientManager(conf.RequestRate, conf.RequestBurst),
		inbox:    make(chan task, INBOX_SIZE),
		chanLock: chanlock.New(logger),
		log:      logger,
	}
	s.Scheduler = timer.New(s.Dispatch)
	s.Authority = game.NewAuthority(replication.RoleAuthority, logger)

	s.match = replication.NewProperty(s.Hub, "match", id.String())
	s.level = replication.NewProperty(s.Hub, "level", conf.Level)
	s.players = replication.NewMap[game.ControllerID, game.PlayerInfo](s.Hub, "players")
	s.storeIdentity()

	s.Ledger = game.NewLedger(s.Authority, s.Hub, s.Events, logger)
	s.Health = game.NewHealth(
		s.Authority,
		s.Hub,
		s.Ledger,
		s.Scheduler.Scope(),
		s.Events,
		conf.health(),
		logger,
	)
	s.Lifecycle = game.NewLifecycle(
		s.Authority,
		s.Hub,
		s.Scheduler.Scope(),
		s.Events,
		conf.lifecycle(),
		logger,
	)
	s.Sessions = game.NewRegistry(game.NewAssignment(conf.NumTeams))
	s.Arsenal = game.NewArsenal(s.Authority, s.Hub, conf.Weapons, logger)
	s.Targets = game.NewTargets(
		s.Authority,
		s.Hub,
		s.Ledger,
		s.Scheduler.Scope(),
		s.Events,
		conf.targets(),
		s.allocate,
		logger,
	)
	s.Pickups = game.NewPickups(
		s.Authority,
		s.Hub,
		s.Health,
		s.Scheduler.Scope(),
		s.Events,
		conf.PickupRespawn,
		logger,
	)
	s.Gate = game.NewGate(
		s.Lifecycle,
		s.Health,
		s.Sessions,
		s.Arsenal,
		s.Events,
		s.restart,
		logger,
	)
	s.Commands = NewCommands(s, RestartMatch, ChangeLevel, ShowStatus)

	s.Health.OnDeath(s.onDeath)
	s.Health.OnRespawn(s.onRespawn)
	s.Lifecycle.OnPhase(s.onPhase)

	return s
}

// Poll runs the authority loop until the context or the server is done.
func (s *Server) Poll(ctx context.Context) {
	health := s.chanLock.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Ctx().Done():
			return
		case <-health:
			continue
		case t := <-s.inbox:
			s.chanLock.Mark(t.name)
			t.fn()
			if t.done != nil {
				close(t.done)
			}
		}
	}
}

// Do queues fn to run on the authority loop.
func (s *Server) Do(name string, fn func()) error {
	return s.enqueue(task{name: name, fn: fn})
}

// Call runs fn on the authority loop and waits for it to finish. It must
// not be called from the loop itself.
func (s *Server) Call(name string, fn func()) error {
	done := make(chan struct{})
	if err := s.enqueue(task{name: name, fn: fn, done: done}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-s.Ctx().Done():
		return ErrClosed
	}
}

func (s *Server) enqueue(t task) error {
	if s.IsDone() {
		return ErrClosed
	}

	select {
	case s.inbox <- t:
		return nil
	case <-s.Ctx().Done():
		return ErrClosed
	}
}

// Dispatch hands timer callbacks to the authority loop.
func (s *Server) Dispatch(fn func()) {
	err := s.Do("timer", fn)
	if err != nil && !errors.Is(err, ErrClosed) {
		s.log.Error().Err(err).Msg("could not dispatch timer")
	}
}

func (s *Server) allocate() game.EntityID {
	s.nextEntity++
	return s.nextEntity
}

// storeIdentity copies the match id and level for readers outside the
// loop. Only the loop calls it.
func (s *Server) storeIdentity() {
	s.ident.Store(&identity{
		match: s.match.Get(),
		level: s.level.Get(),
	})
}

// MatchID is safe to call from any goroutine.
func (s *Server) MatchID() string {
	return s.ident.Load().match
}

// Level is safe to call from any goroutine.
func (s *Server) Level() string {
	return s.ident.Load().level
}

// Start seeds the ledger, places pickups and begins the pre-game
// countdown.
func (s *Server) Start() error {
	return s.Call("start", s.begin)
}

func (s *Server) begin() {
	if s.Lifecycle.Started() {
		return
	}

	s.matchStarted = time.Now()
	s.Ledger.Seed(s.Sessions.Teams().NumTeams())
	s.placePickups()
	s.Brain.SetLocked(true)
	s.Lifecycle.Start()
}

func (s *Server) placePickups() {
	s.Pickups.Clear()
	for _, pickup := range s.Config.Pickups {
		s.Pickups.Place(s.allocate(), pickup.HealAmount)
	}
}

func (s *Server) spawnPoint(team game.TeamID) game.SpawnPoint {
	point, ok := game.ChooseSpawn(team, s.World.SpawnPoints())
	if !ok {
		s.log.Warn().Str("team", team.String()).Msg("level has no spawn points, using default")
		return defaultSpawn
	}
	return point
}

// spawnPlayer gives the session a fresh entity.
func (s *Server) spawnPlayer(session *game.PlayerSession) {
	session.Entity = s.allocate()
	session.Spawn = s.spawnPoint(session.Team)
	session.Firing = false

	s.Health.Spawn(session.Entity, game.KindPlayer, session.Team, 0)
	s.Arsenal.Equip(session.Entity)

	err := s.players.Set(session.Controller, game.PlayerInfo{
		Team:   session.Team,
		Entity: session.Entity,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("could not publish player")
	}
}

func (s *Server) join(controller game.ControllerID) *game.PlayerSession {
	session, created := s.Sessions.Join(controller)
	if !created {
		return session
	}

	s.spawnPlayer(session)
	s.Events.Publish(game.PlayerJoined{
		Controller: controller,
		Team:       session.Team,
		Entity:     session.Entity,
		Spawn:      session.Spawn,
	})
	s.log.Info().
		Uint32("controller", uint32(controller)).
		Str("team", session.Team.String()).
		Str("spawn", session.Spawn.Name).
		Msg("player joined")
	return session
}

func (s *Server) leave(controller game.ControllerID) {
	session, ok := s.Sessions.Get(controller)
	if !ok {
		return
	}

	s.Gate.StopFiring(controller)
	s.Arsenal.Drop(session.Entity)
	s.Health.Remove(session.Entity)
	if err := s.players.Delete(controller); err != nil {
		s.log.Error().Err(err).Msg("could not remove player")
	}
	s.Sessions.Leave(controller)

	s.Events.Publish(game.PlayerLeft{
		Controller: controller,
		Entity:     session.Entity,
	})
	s.log.Info().Uint32("controller", uint32(controller)).Msg("player left")
}

// Connect subscribes a remote client and joins it to the match. The
// client's outbox starts with a snapshot of the whole match.
func (s *Server) Connect(id game.ControllerID, host, agent string) (*Client, game.PlayerSession, error) {
	if id == LocalController {
		return nil, game.PlayerSession{}, ErrReserved
	}

	client, err := s.Clients.Add(id, host, agent)
	if err != nil {
		return nil, game.PlayerSession{}, err
	}
	client.Outbox = s.Hub.Subscribe(replication.ClientID(id))

	var session game.PlayerSession
	err = s.Call("join", func() {
		session = *s.join(id)
		client.Team = session.Team
		client.Entity = session.Entity
	})
	if err != nil {
		s.Hub.Unsubscribe(replication.ClientID(id))
		s.Clients.Remove(id)
		return nil, game.PlayerSession{}, err
	}

	s.log.Info().
		Uint32("controller", uint32(id)).
		Str("host", host).
		Str("device", client.Device()).
		Msg("client connected")
	return client, session, nil
}

// JoinLocal joins the listen-server host. Its aim comes from camera
// instead of from requests.
func (s *Server) JoinLocal(camera func() game.Vec3) (game.PlayerSession, error) {
	var session game.PlayerSession
	err := s.Call("join local", func() {
		s.Gate.SetCamera(camera)
		joined := s.join(LocalController)
		joined.Local = true
		session = *joined
	})
	return session, err
}

// Disconnect drops the client's subscription, entity, timers and team.
func (s *Server) Disconnect(id game.ControllerID) error {
	if _, ok := s.Clients.Remove(id); !ok {
		return ErrUnknownClient
	}
	s.Hub.Unsubscribe(replication.ClientID(id))
	return s.Call("leave", func() {
		s.leave(id)
	})
}

// Submit queues a client request for the gate.
func (s *Server) Submit(id game.ControllerID, req game.Request) error {
	if _, err := s.Clients.Allow(id); err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.log.Debug().
				Uint32("controller", uint32(id)).
				Str("action", req.Action.String()).
				Msg("request rate limited")
		}
		return err
	}

	return s.Do("request", func() {
		s.Gate.Handle(id, req)
	})
}

// Damage is the entry point for the weapon simulation. Nothing is applied
// once the match is over.
func (s *Server) Damage(target game.EntityID, amount int32, instigator opt.Option[game.Instigator]) (int32, error) {
	var applied int32
	err := s.Call("damage", func() {
		if s.Lifecycle.GameOver() {
			return
		}
		applied = s.Health.ApplyDamage(target, amount, instigator)
	})
	return applied, err
}

func (s *Server) HitTarget(target game.EntityID, team game.TeamID) (bool, error) {
	var counted bool
	err := s.Call("hit target", func() {
		if s.Lifecycle.GameOver() {
			return
		}
		counted = s.Targets.Hit(target, team)
	})
	return counted, err
}

func (s *Server) TouchPickup(pickup game.EntityID, entity game.EntityID) (bool, error) {
	var taken bool
	err := s.Call("touch pickup", func() {
		taken = s.Pickups.Touch(pickup, entity)
	})
	return taken, err
}

func (s *Server) SetAmmo(entity game.EntityID, ammo game.Ammo) error {
	return s.Do("ammo", func() {
		s.Arsenal.SetAmmo(entity, ammo)
	})
}

// SpawnNPC adds an NPC on the given team.
func (s *Server) SpawnNPC(team game.TeamID, maxHP int32) (game.EntityID, error) {
	var id game.EntityID
	err := s.Call("spawn npc", func() {
		id = s.allocate()
		s.Health.Spawn(id, game.KindNPC, team, maxHP)
	})
	return id, err
}

// Restart begins a new match on the same level. Sessions and teams are
// kept.
func (s *Server) Restart() error {
	return s.Call("restart", s.restart)
}

func (s *Server) restart() {
	s.Targets.StopWaves()
	s.Targets.Clear()
	s.Pickups.Clear()
	s.Gate.Halt()
	s.Lifecycle.Reset()
	s.Ledger.Reset()

	for _, id := range s.Health.IDs() {
		s.Arsenal.Drop(id)
	}
	s.Health.Reset()

	s.ID = uuid.New()
	if err := s.match.Set(s.ID.String()); err != nil {
		s.log.Error().Err(err).Msg("could not publish match id")
	}
	s.storeIdentity()
	s.Sessions.Each(s.spawnPlayer)

	s.log.Info().Str("match", s.ID.String()).Msg("match restarting")
	s.begin()
}

// TransitionLevel loads a new level and restarts the match on it. An empty
// name is ignored.
func (s *Server) TransitionLevel(name string) error {
	if name == "" {
		return nil
	}

	var err error
	callErr := s.Call("level", func() {
		err = s.transition(name)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (s *Server) transition(name string) error {
	if err := s.World.LoadLevel(name); err != nil {
		return fmt.Errorf("could not load level %s: %w", name, err)
	}

	if err := s.level.Set(name); err != nil {
		s.log.Error().Err(err).Msg("could not publish level")
	}
	s.Events.Publish(game.LevelLoaded{Level: name})
	s.restart()
	return nil
}

// Shutdown stops every timer, drops every subscription and ends the loop.
func (s *Server) Shutdown() {
	s.Scheduler.Close()
	s.Hub.Close()
	s.Cancel()
}

func (s *Server) onDeath(e *game.Entity) {
	if session, ok := s.Sessions.ByEntity(e.ID); ok {
		s.Gate.StopFiring(session.Controller)
	}
	s.Arsenal.ClearAmmo(e.ID)
}

func (s *Server) onRespawn(e *game.Entity) {
	session, ok := s.Sessions.ByEntity(e.ID)
	if !ok {
		return
	}
	session.Spawn = s.spawnPoint(session.Team)
	s.log.Debug().
		Uint32("controller", uint32(session.Controller)).
		Str("spawn", session.Spawn.Name).
		Msg("player respawned")
}

func (s *Server) onPhase(phase game.Phase) {
	switch phase {
	case game.PhasePreGame:
		s.Gate.Halt()
		s.Brain.SetLocked(true)
	case game.PhaseActive:
		s.Brain.SetLocked(false)
		s.Targets.StartWaves()
	case game.PhaseGameOver:
		s.Gate.Halt()
		s.Targets.StopWaves()
		s.Brain.SetLocked(true)
		s.Brain.StopLogic("GameOver")
		s.Ledger.Freeze()

		scores := s.Ledger.Scores()
		s.Events.Publish(game.MatchEnded{
			Match:   s.ID.String(),
			Level:   s.level.Get(),
			Started: s.matchStarted,
			Ended:   time.Now(),
			Scores:  scores,
		})
		s.log.Info().
			Str("match", s.ID.String()).
			Interface("scores", scores).
			Msg("match ended")
	}
}
