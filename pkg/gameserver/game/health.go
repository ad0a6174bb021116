package game

import (
	"sort"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/timer"
	"github.com/cfoust/skirmish/pkg/replication"

	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
)

type HealthConfig struct {
	MaxHP        int32
	RespawnDelay time.Duration
	DestroyDelay time.Duration
	NPCKillBonus int32
}

// Entity is anything with health: players and NPCs.
type Entity struct {
	ID    EntityID
	Kind  Kind
	Team  TeamID
	HP    int32
	MaxHP int32
	Dead  bool
	// Life increases every time the entity respawns.
	Life uint32
	// LastDamageSource is None for environmental or unattributed damage.
	LastDamageSource opt.Option[Instigator]

	timers *timer.Scope
}

func (e *Entity) Fraction() float32 {
	if e.MaxHP <= 0 {
		return 0
	}
	return float32(e.HP) / float32(e.MaxHP)
}

// Death is the replicated per-entity death state.
type Death struct {
	Dead       bool     `cbor:"dead"`
	Life       uint32   `cbor:"life"`
	Killer     EntityID `cbor:"killer,omitempty"`
	Attributed bool     `cbor:"attributed,omitempty"`
}

type Health struct {
	auth   *Authority
	ledger *Ledger
	timers *timer.Scope
	events *Events
	config HealthConfig
	log    zerolog.Logger

	entities map[EntityID]*Entity
	fraction *replication.Map[EntityID, float32]
	deaths   *replication.Map[EntityID, Death]

	onDeath   []func(*Entity)
	onRespawn []func(*Entity)
}

func NewHealth(
	auth *Authority,
	hub *replication.Hub,
	ledger *Ledger,
	timers *timer.Scope,
	events *Events,
	config HealthConfig,
	logger zerolog.Logger,
) *Health {
	if config.MaxHP <= 0 {
		config.MaxHP = DefaultMaxHP
	}

	return &Health{
		auth:     auth,
		ledger:   ledger,
		timers:   timers,
		events:   events,
		config:   config,
		log:      logger,
		entities: make(map[EntityID]*Entity),
		fraction: replication.NewMap[EntityID, float32](hub, "health"),
		deaths:   replication.NewMap[EntityID, Death](hub, "deaths"),
	}
}

// OnDeath registers a hook that runs after scoring and the death
// notification.
func (h *Health) OnDeath(hook func(*Entity)) {
	h.onDeath = append(h.onDeath, hook)
}

// OnRespawn registers a hook that runs after a player is revived.
func (h *Health) OnRespawn(hook func(*Entity)) {
	h.onRespawn = append(h.onRespawn, hook)
}

func (h *Health) Spawn(id EntityID, kind Kind, team TeamID, maxHP int32) *Entity {
	return Guarded(h.auth, "spawn", func() *Entity { return h.spawn(id, kind, team, maxHP) })
}

func (h *Health) spawn(id EntityID, kind Kind, team TeamID, maxHP int32) *Entity {
	if maxHP <= 0 {
		maxHP = h.config.MaxHP
	}

	if old, ok := h.entities[id]; ok {
		old.timers.Close()
	}

	e := &Entity{
		ID:               id,
		Kind:             kind,
		Team:             team,
		HP:               maxHP,
		MaxHP:            maxHP,
		LastDamageSource: opt.None[Instigator](),
		timers:           h.timers.Scope(),
	}
	h.entities[id] = e

	h.publish(e)
	h.publishDeath(e, opt.None[Instigator]())
	return e
}

// Remove destroys an entity, cancelling every timer it owns.
func (h *Health) Remove(id EntityID) bool {
	return Guarded(h.auth, "remove", func() bool { return h.remove(id) })
}

func (h *Health) remove(id EntityID) bool {
	e, ok := h.entities[id]
	if !ok {
		return false
	}
	e.timers.Close()
	delete(h.entities, id)

	h.fraction.Delete(id)
	h.deaths.Delete(id)
	return true
}

func (h *Health) Get(id EntityID) (*Entity, bool) {
	e, ok := h.entities[id]
	return e, ok
}

func (h *Health) Alive(id EntityID) bool {
	e, ok := h.entities[id]
	return ok && !e.Dead
}

func (h *Health) Len() int {
	return len(h.entities)
}

// IDs returns every entity id in ascending order.
func (h *Health) IDs() []EntityID {
	ids := make([]EntityID, 0, len(h.entities))
	for id := range h.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Health) publish(e *Entity) {
	if err := h.fraction.Set(e.ID, e.Fraction()); err != nil {
		h.log.Error().Err(err).Uint32("entity", uint32(e.ID)).Msg("could not publish health")
	}
}

func (h *Health) publishDeath(e *Entity, killer opt.Option[Instigator]) {
	death := Death{
		Dead: e.Dead,
		Life: e.Life,
	}
	if opt.IsSome(killer) {
		death.Killer = killer.Value.Entity
		death.Attributed = true
	}
	if err := h.deaths.Set(e.ID, death); err != nil {
		h.log.Error().Err(err).Uint32("entity", uint32(e.ID)).Msg("could not publish death")
	}
}

// ApplyDamage removes up to amount HP and returns how much was removed.
func (h *Health) ApplyDamage(id EntityID, amount int32, instigator opt.Option[Instigator]) int32 {
	return Guarded(h.auth, "damage", func() int32 { return h.applyDamage(id, amount, instigator) })
}

func (h *Health) applyDamage(id EntityID, amount int32, instigator opt.Option[Instigator]) int32 {
	e, ok := h.entities[id]
	if !ok || e.Dead || amount <= 0 {
		return 0
	}

	applied := min(amount, e.HP)
	e.HP -= applied
	e.LastDamageSource = instigator
	h.publish(e)

	h.events.Publish(Damaged{
		Entity:     e.ID,
		Amount:     applied,
		HP:         e.HP,
		Instigator: instigator,
	})

	if e.HP == 0 {
		h.die(e)
	}
	return applied
}

// Heal restores up to amount HP, never above the maximum, and returns how
// much was restored.
func (h *Health) Heal(id EntityID, amount int32) int32 {
	return Guarded(h.auth, "heal", func() int32 { return h.heal(id, amount) })
}

func (h *Health) heal(id EntityID, amount int32) int32 {
	e, ok := h.entities[id]
	if !ok || e.Dead || amount <= 0 {
		return 0
	}

	applied := min(amount, e.MaxHP-e.HP)
	if applied <= 0 {
		return 0
	}
	e.HP += applied
	h.publish(e)

	h.events.Publish(Healed{
		Entity: e.ID,
		Amount: applied,
		HP:     e.HP,
	})
	return applied
}

func (h *Health) HealToFull(id EntityID) int32 {
	e, ok := h.entities[id]
	if !ok {
		return 0
	}
	return h.Heal(id, e.MaxHP-e.HP)
}

func (h *Health) die(e *Entity) {
	if e.Dead {
		return
	}
	e.Dead = true

	killer := e.LastDamageSource
	if opt.IsSome(killer) {
		switch e.Kind {
		case KindNPC:
			if h.config.NPCKillBonus > 0 && killer.Value.Team != e.Team {
				h.ledger.Increment(killer.Value.Team, h.config.NPCKillBonus)
			}
		default:
			h.ledger.StealOnKill(killer.Value.Team, e.Team)
		}
	}

	h.publishDeath(e, killer)
	h.events.Publish(Died{
		Entity: e.ID,
		Kind:   e.Kind,
		Team:   e.Team,
		Life:   e.Life,
		Killer: killer,
	})

	for _, hook := range h.onDeath {
		hook(e)
	}

	id := e.ID
	switch e.Kind {
	case KindNPC:
		e.timers.Once(h.config.DestroyDelay, func() {
			if h.Remove(id) {
				h.events.Publish(Destroyed{Entity: id})
			}
		})
	default:
		e.timers.Once(h.config.RespawnDelay, func() {
			h.Revive(id)
		})
	}
}

// Revive brings a dead entity back at full health.
func (h *Health) Revive(id EntityID) bool {
	return Guarded(h.auth, "revive", func() bool { return h.revive(id) })
}

func (h *Health) revive(id EntityID) bool {
	e, ok := h.entities[id]
	if !ok || !e.Dead {
		return false
	}

	e.Dead = false
	e.HP = e.MaxHP
	e.Life++
	e.LastDamageSource = opt.None[Instigator]()

	h.publish(e)
	h.publishDeath(e, opt.None[Instigator]())

	for _, hook := range h.onRespawn {
		hook(e)
	}

	h.events.Publish(Respawned{
		Entity: e.ID,
		Life:   e.Life,
	})
	return true
}

// Reset removes every entity.
func (h *Health) Reset() {
	for _, id := range h.IDs() {
		h.Remove(id)
	}
}
