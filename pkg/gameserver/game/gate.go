package game

import (
	"fmt"

	"github.com/rs/zerolog"
)

type Action uint8

const (
	ActionStartFire Action = iota + 1
	ActionStopFire
	ActionSwitchWeapon
	ActionSetAim
	ActionRestart
)

func (a Action) String() string {
	switch a {
	case ActionStartFire:
		return "start-fire"
	case ActionStopFire:
		return "stop-fire"
	case ActionSwitchWeapon:
		return "switch-weapon"
	case ActionSetAim:
		return "set-aim"
	case ActionRestart:
		return "restart"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Request is an action a client asks the server to perform.
type Request struct {
	Action Action
	Aim    Vec3
	// Delta is the direction to cycle weapons in.
	Delta int
}

// Gate re-validates every client request against server state. Requests
// that are not allowed right now are dropped without an error; clients
// routinely send them because their view lags behind the server.
type Gate struct {
	lifecycle *Lifecycle
	health    *Health
	sessions  *Registry
	arsenal   *Arsenal
	events    *Events
	log       zerolog.Logger

	restart func()
	camera  func() Vec3

	dropped int
}

func NewGate(
	lifecycle *Lifecycle,
	health *Health,
	sessions *Registry,
	arsenal *Arsenal,
	events *Events,
	restart func(),
	logger zerolog.Logger,
) *Gate {
	return &Gate{
		lifecycle: lifecycle,
		health:    health,
		sessions:  sessions,
		arsenal:   arsenal,
		events:    events,
		restart:   restart,
		log:       logger,
	}
}

// SetCamera supplies the live camera of the local player.
func (g *Gate) SetCamera(camera func() Vec3) {
	g.camera = camera
}

func (g *Gate) Dropped() int {
	return g.dropped
}

func (g *Gate) drop(controller ControllerID, req Request, reason string) bool {
	g.dropped++
	g.log.Debug().
		Uint32("controller", uint32(controller)).
		Str("action", req.Action.String()).
		Str("reason", reason).
		Msg("dropped request")
	return false
}

// Handle applies the request if it is currently valid and reports whether
// it was applied.
func (g *Gate) Handle(controller ControllerID, req Request) bool {
	session, ok := g.sessions.Get(controller)
	if !ok {
		return g.drop(controller, req, "unknown session")
	}

	switch req.Action {
	case ActionStartFire:
		if reason, ok := g.canAct(session); !ok {
			return g.drop(controller, req, reason)
		}
		if !g.arsenal.Armed(session.Entity) {
			return g.drop(controller, req, "unarmed")
		}
		if session.Firing {
			return false
		}

		session.Firing = true
		g.events.Publish(FireStarted{
			Controller: controller,
			Entity:     session.Entity,
			Ray:        g.AimRay(session),
		})
		return true

	case ActionStopFire:
		if !session.Firing {
			return false
		}
		g.stop(session)
		return true

	case ActionSwitchWeapon:
		if reason, ok := g.canAct(session); !ok {
			return g.drop(controller, req, reason)
		}
		weapon, ok := g.arsenal.Switch(session.Entity, req.Delta)
		if !ok {
			return g.drop(controller, req, "nothing to switch to")
		}
		g.events.Publish(WeaponSwitched{
			Entity: session.Entity,
			Weapon: weapon,
		})
		return true

	case ActionSetAim:
		if !g.health.Alive(session.Entity) {
			return g.drop(controller, req, "dead")
		}
		if g.lifecycle.Phase() == PhaseGameOver {
			return g.drop(controller, req, "game over")
		}
		session.Aim = req.Aim.Normalize()
		return true

	case ActionRestart:
		if g.lifecycle.Phase() != PhaseGameOver {
			return g.drop(controller, req, "match still running")
		}
		if g.restart != nil {
			g.restart()
		}
		return true
	}

	return g.drop(controller, req, "unknown action")
}

func (g *Gate) canAct(session *PlayerSession) (string, bool) {
	if g.lifecycle.Phase() == PhaseGameOver {
		return "game over", false
	}
	if g.lifecycle.InputLocked() {
		return "input locked", false
	}
	if !g.health.Alive(session.Entity) {
		return "dead", false
	}
	return "", true
}

func (g *Gate) stop(session *PlayerSession) {
	session.Firing = false
	g.events.Publish(FireStopped{
		Controller: session.Controller,
		Entity:     session.Entity,
	})
}

// StopFiring stops one session, as when its entity dies.
func (g *Gate) StopFiring(controller ControllerID) {
	session, ok := g.sessions.Get(controller)
	if ok && session.Firing {
		g.stop(session)
	}
}

// Halt forces every session to stop firing.
func (g *Gate) Halt() {
	g.sessions.Each(func(session *PlayerSession) {
		if session.Firing {
			g.stop(session)
		}
	})
}

// AimRay is the ray the server resolves shots along. The local player uses
// its own camera, which is always more current than anything replicated.
func (g *Gate) AimRay(session *PlayerSession) Ray {
	return Ray{
		Direction: g.aim(session),
		Length:    MaxAimDistance,
	}
}

func (g *Gate) aim(session *PlayerSession) Vec3 {
	if session.Local && g.camera != nil {
		return g.camera().Normalize()
	}
	return session.Aim
}
