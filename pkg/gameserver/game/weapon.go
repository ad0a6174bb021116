package game

import (
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
)

// Ammo is passed through from the weapon simulation for the HUD.
type Ammo struct {
	Clip    int32 `cbor:"clip"`
	Reserve int32 `cbor:"reserve"`
}

// Arsenal tracks which of the owned weapons each entity holds.
type Arsenal struct {
	auth    *Authority
	weapons []string
	log     zerolog.Logger

	current *replication.Map[EntityID, uint8]
	ammo    *replication.Map[EntityID, Ammo]
}

func NewArsenal(auth *Authority, hub *replication.Hub, weapons []string, logger zerolog.Logger) *Arsenal {
	return &Arsenal{
		auth:    auth,
		weapons: weapons,
		log:     logger,
		current: replication.NewMap[EntityID, uint8](hub, "weapons"),
		ammo:    replication.NewMap[EntityID, Ammo](hub, "ammo"),
	}
}

func (a *Arsenal) Weapons() []string {
	return a.weapons
}

func (a *Arsenal) Armed(entity EntityID) bool {
	_, ok := a.current.Get(entity)
	return ok && len(a.weapons) > 0
}

// Equip gives an entity the first weapon.
func (a *Arsenal) Equip(entity EntityID) {
	a.auth.Mutate("equip", func() { a.equip(entity) })
}

func (a *Arsenal) equip(entity EntityID) {
	if len(a.weapons) == 0 {
		return
	}

	a.report(a.current.Set(entity, 0))
}

func (a *Arsenal) Current(entity EntityID) (string, bool) {
	index, ok := a.current.Get(entity)
	if !ok || int(index) >= len(a.weapons) {
		return "", false
	}
	return a.weapons[index], true
}

// Switch cycles through the owned weapons by delta and returns the new
// weapon.
func (a *Arsenal) Switch(entity EntityID, delta int) (weapon string, ok bool) {
	a.auth.Mutate("switch weapon", func() { weapon, ok = a.cycle(entity, delta) })
	return weapon, ok
}

func (a *Arsenal) cycle(entity EntityID, delta int) (string, bool) {
	index, ok := a.current.Get(entity)
	n := len(a.weapons)
	if !ok || n < 2 || delta == 0 {
		return "", false
	}

	next := ((int(index)+delta)%n + n) % n
	a.report(a.current.Set(entity, uint8(next)))
	return a.weapons[next], true
}

func (a *Arsenal) SetAmmo(entity EntityID, ammo Ammo) {
	a.auth.Mutate("ammo", func() { a.setAmmo(entity, ammo) })
}

func (a *Arsenal) setAmmo(entity EntityID, ammo Ammo) {
	a.report(a.ammo.Set(entity, ammo))
}

func (a *Arsenal) Ammo(entity EntityID) (Ammo, bool) {
	return a.ammo.Get(entity)
}

// ClearAmmo zeroes the HUD counters, as happens on death.
func (a *Arsenal) ClearAmmo(entity EntityID) {
	a.auth.Mutate("ammo", func() { a.clearAmmo(entity) })
}

func (a *Arsenal) clearAmmo(entity EntityID) {
	if _, ok := a.ammo.Get(entity); !ok {
		return
	}
	a.report(a.ammo.Set(entity, Ammo{}))
}

func (a *Arsenal) Drop(entity EntityID) {
	a.auth.Mutate("drop weapons", func() { a.drop(entity) })
}

func (a *Arsenal) drop(entity EntityID) {
	a.report(a.current.Delete(entity))
	a.report(a.ammo.Delete(entity))
}

func (a *Arsenal) report(err error) {
	if err != nil {
		a.log.Error().Err(err).Msg("could not publish weapon state")
	}
}
