package game

import (
	"fmt"
	"math"
)

const (
	DefaultNumTeams       = 2
	DefaultPreGameSeconds = 3
	DefaultGameSeconds    = 60
	DefaultMaxHP          = 500
	DefaultNPCKillBonus   = 20
	DefaultBerserkSeconds = 10

	MaxAimDistance = 10000.0
)

type TeamID uint8

func (t TeamID) String() string {
	return fmt.Sprintf("team%d", uint8(t))
}

type EntityID uint32

type ControllerID uint32

type Kind uint8

const (
	KindPlayer Kind = iota
	KindNPC
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type Phase uint8

const (
	PhasePreGame Phase = iota
	PhaseActive
	PhaseGameOver
)

func (p Phase) String() string {
	switch p {
	case PhasePreGame:
		return "pregame"
	case PhaseActive:
		return "active"
	case PhaseGameOver:
		return "gameover"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

type Vec3 struct {
	X float64 `cbor:"x" json:"x" yaml:"x" toml:"x"`
	Y float64 `cbor:"y" json:"y" yaml:"y" toml:"y"`
	Z float64 `cbor:"z" json:"z" yaml:"z" toml:"z"`
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector, or the zero vector if v has no length.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v.X * f, v.Y * f, v.Z * f}
}

// Ray is the authoritative aim used when resolving a shot.
type Ray struct {
	Direction Vec3
	Length    float64
}

func (r Ray) End() Vec3 {
	return r.Direction.Normalize().Scale(r.Length)
}

// Instigator identifies who caused damage.
type Instigator struct {
	Entity EntityID
	Team   TeamID
}

// PlayerInfo is the replicated roster entry for a connected controller.
type PlayerInfo struct {
	Team   TeamID   `cbor:"team"`
	Entity EntityID `cbor:"entity"`
}
