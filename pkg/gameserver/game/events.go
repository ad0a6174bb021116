package game

import (
	"time"

	"github.com/cfoust/skirmish/pkg/utils"

	opt "github.com/repeale/fp-go/option"
)

// Event is emitted for collaborators outside the core: animation, sound,
// HUD effects, persistence.
type Event interface {
	event()
}

type Events = utils.Topic[Event]

func NewEvents() *Events {
	return utils.NewTopic[Event]()
}

type Damaged struct {
	Entity     EntityID
	Amount     int32
	HP         int32
	Instigator opt.Option[Instigator]
}

type Healed struct {
	Entity EntityID
	Amount int32
	HP     int32
}

type Died struct {
	Entity EntityID
	Kind   Kind
	Team   TeamID
	Life   uint32
	Killer opt.Option[Instigator]
}

type Respawned struct {
	Entity EntityID
	Life   uint32
}

type Destroyed struct {
	Entity EntityID
}

type ScoreChanged struct {
	Team  TeamID
	Score int32
	Delta int32
}

type PhaseChanged struct {
	Phase Phase
}

type FireStarted struct {
	Controller ControllerID
	Entity     EntityID
	Ray        Ray
}

type FireStopped struct {
	Controller ControllerID
	Entity     EntityID
}

type WeaponSwitched struct {
	Entity EntityID
	Weapon string
}

type TargetScaled struct {
	Target EntityID
	Scale  float32
}

type TargetDestroyed struct {
	Target EntityID
	Team   TeamID
	Score  int32
}

type WaveSpawned struct {
	Targets []EntityID
}

type PickupTaken struct {
	Pickup EntityID
	Entity EntityID
	Amount int32
}

type PickupRespawned struct {
	Pickup EntityID
}

type PlayerJoined struct {
	Controller ControllerID
	Team       TeamID
	Entity     EntityID
	Spawn      SpawnPoint
}

type PlayerLeft struct {
	Controller ControllerID
	Entity     EntityID
}

type LevelLoaded struct {
	Level string
}

// MatchEnded carries everything needed to record a finished match.
type MatchEnded struct {
	Match   string
	Level   string
	Started time.Time
	Ended   time.Time
	Scores  map[TeamID]int32
}

func (Damaged) event()         {}
func (Healed) event()          {}
func (Died) event()            {}
func (Respawned) event()       {}
func (Destroyed) event()       {}
func (ScoreChanged) event()    {}
func (PhaseChanged) event()    {}
func (FireStarted) event()     {}
func (FireStopped) event()     {}
func (WeaponSwitched) event()  {}
func (TargetScaled) event()    {}
func (TargetDestroyed) event() {}
func (WaveSpawned) event()     {}
func (PickupTaken) event()     {}
func (PickupRespawned) event() {}
func (PlayerJoined) event()    {}
func (PlayerLeft) event()      {}
func (LevelLoaded) event()     {}
func (MatchEnded) event()      {}
