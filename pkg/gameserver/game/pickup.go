package game

import (
	"sort"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/timer"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
)

const DefaultPickupRespawn = 10 * time.Second

// Pickup heals whoever touches it. A HealAmount of 0 heals to full.
type Pickup struct {
	ID         EntityID
	HealAmount int32
	Available  bool
}

type Pickups struct {
	auth    *Authority
	health  *Health
	timers  *timer.Scope
	events  *Events
	respawn time.Duration
	log     zerolog.Logger

	items     map[EntityID]*Pickup
	available *replication.Map[EntityID, bool]
}

func NewPickups(
	auth *Authority,
	hub *replication.Hub,
	health *Health,
	timers *timer.Scope,
	events *Events,
	respawn time.Duration,
	logger zerolog.Logger,
) *Pickups {
	if respawn <= 0 {
		respawn = DefaultPickupRespawn
	}

	return &Pickups{
		auth:      auth,
		health:    health,
		timers:    timers,
		events:    events,
		respawn:   respawn,
		log:       logger,
		items:     make(map[EntityID]*Pickup),
		available: replication.NewMap[EntityID, bool](hub, "pickups"),
	}
}

func (p *Pickups) set(pickup *Pickup) {
	if err := p.available.Set(pickup.ID, pickup.Available); err != nil {
		p.log.Error().Err(err).Msg("could not publish pickup")
	}
}

func (p *Pickups) Place(id EntityID, healAmount int32) *Pickup {
	return Guarded(p.auth, "place pickup", func() *Pickup { return p.place(id, healAmount) })
}

func (p *Pickups) place(id EntityID, healAmount int32) *Pickup {
	pickup := &Pickup{
		ID:         id,
		HealAmount: max(healAmount, 0),
		Available:  true,
	}
	p.items[id] = pickup
	p.set(pickup)
	return pickup
}

func (p *Pickups) Get(id EntityID) (*Pickup, bool) {
	pickup, ok := p.items[id]
	return pickup, ok
}

// Touch heals the entity and hides the pickup until it respawns. Dead
// entities and hidden pickups are ignored.
func (p *Pickups) Touch(id EntityID, entity EntityID) bool {
	return Guarded(p.auth, "touch pickup", func() bool { return p.touch(id, entity) })
}

func (p *Pickups) touch(id EntityID, entity EntityID) bool {
	pickup, ok := p.items[id]
	if !ok || !pickup.Available || !p.health.Alive(entity) {
		return false
	}

	var healed int32
	if pickup.HealAmount == 0 {
		healed = p.health.HealToFull(entity)
	} else {
		healed = p.health.Heal(entity, pickup.HealAmount)
	}

	pickup.Available = false
	p.set(pickup)
	p.events.Publish(PickupTaken{
		Pickup: id,
		Entity: entity,
		Amount: healed,
	})

	p.timers.Once(p.respawn, func() {
		current, ok := p.items[id]
		if !ok || current != pickup {
			return
		}
		pickup.Available = true
		p.set(pickup)
		p.events.Publish(PickupRespawned{Pickup: id})
	})
	return true
}

// Clear removes every pickup. Respawns still pending for them do nothing.
func (p *Pickups) Clear() {
	ids := make([]EntityID, 0, len(p.items))
	for id := range p.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		delete(p.items, id)
		if err := p.available.Delete(id); err != nil {
			p.log.Error().Err(err).Msg("could not remove pickup")
		}
	}
}
