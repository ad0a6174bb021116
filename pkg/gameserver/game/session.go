package game

import (
	"sort"
	"time"
)

// PlayerSession is the server's record of one connected controller.
type PlayerSession struct {
	Controller ControllerID
	Team       TeamID
	Entity     EntityID
	Spawn      SpawnPoint
	Joined     time.Time

	// Aim is the last direction the client reported. It is only used for
	// remote sessions.
	Aim    Vec3
	Firing bool
	// Local marks the listen-server host, which aims with its own camera.
	Local bool
}

// Registry maps connection identities to sessions. Team assignment is
// owned here so that joining and leaving keep both in step.
type Registry struct {
	teams    *Assignment
	sessions map[ControllerID]*PlayerSession
}

func NewRegistry(teams *Assignment) *Registry {
	return &Registry{
		teams:    teams,
		sessions: make(map[ControllerID]*PlayerSession),
	}
}

func (r *Registry) Teams() *Assignment {
	return r.teams
}

// Join returns the controller's session, creating it with a team
// assignment if needed. created is false for an existing session.
func (r *Registry) Join(controller ControllerID) (session *PlayerSession, created bool) {
	if session, ok := r.sessions[controller]; ok {
		return session, false
	}

	session = &PlayerSession{
		Controller: controller,
		Team:       r.teams.Assign(controller),
		Joined:     time.Now(),
	}
	r.sessions[controller] = session
	return session, true
}

// Leave removes the session and releases its team.
func (r *Registry) Leave(controller ControllerID) (*PlayerSession, bool) {
	session, ok := r.sessions[controller]
	if !ok {
		return nil, false
	}
	delete(r.sessions, controller)
	r.teams.Release(controller)
	return session, true
}

func (r *Registry) Get(controller ControllerID) (*PlayerSession, bool) {
	session, ok := r.sessions[controller]
	return session, ok
}

func (r *Registry) ByEntity(entity EntityID) (*PlayerSession, bool) {
	for _, session := range r.sessions {
		if session.Entity == entity {
			return session, true
		}
	}
	return nil, false
}

// Each visits sessions in controller order.
func (r *Registry) Each(fn func(*PlayerSession)) {
	controllers := make([]ControllerID, 0, len(r.sessions))
	for controller := range r.sessions {
		controllers = append(controllers, controller)
	}
	sort.Slice(controllers, func(i, j int) bool { return controllers[i] < controllers[j] })

	for _, controller := range controllers {
		fn(r.sessions[controller])
	}
}

func (r *Registry) Len() int {
	return len(r.sessions)
}
