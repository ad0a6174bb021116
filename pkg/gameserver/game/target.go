package game

import (
	"math/rand"
	"sort"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/timer"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
)

const (
	DefaultWaveSize     = 10
	DefaultWaveInterval = 10 * time.Second
	TargetScaleFactor   = 2.0
)

type TargetConfig struct {
	WaveSize     int
	WaveInterval time.Duration
	MinScore     int32
	MaxScore     int32
}

// Target is a destructible scoring target. The first hit enlarges it, the
// second destroys it and pays its score to the shooter's team.
type Target struct {
	ID         EntityID
	HitCount   int
	ScoreValue int32
	Destroyed  bool
	Scale      float32
}

// TargetState is the replicated view of a target.
type TargetState struct {
	Hits  uint8   `cbor:"hits"`
	Scale float32 `cbor:"scale"`
	Score int32   `cbor:"score"`
}

type Targets struct {
	auth     *Authority
	ledger   *Ledger
	timers   *timer.Scope
	events   *Events
	config   TargetConfig
	log      zerolog.Logger
	rng      *rand.Rand
	allocate func() EntityID

	items map[EntityID]*Target
	state *replication.Map[EntityID, TargetState]
	wave  timer.Handle
}

func NewTargets(
	auth *Authority,
	hub *replication.Hub,
	ledger *Ledger,
	timers *timer.Scope,
	events *Events,
	config TargetConfig,
	allocate func() EntityID,
	logger zerolog.Logger,
) *Targets {
	if config.WaveSize < 0 {
		config.WaveSize = 0
	}
	if config.WaveInterval <= 0 {
		config.WaveInterval = DefaultWaveInterval
	}
	if config.MinScore <= 0 {
		config.MinScore = 1
	}
	if config.MaxScore < config.MinScore {
		config.MaxScore = config.MinScore
	}

	return &Targets{
		auth:     auth,
		ledger:   ledger,
		timers:   timers,
		events:   events,
		config:   config,
		log:      logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		allocate: allocate,
		items:    make(map[EntityID]*Target),
		state:    replication.NewMap[EntityID, TargetState](hub, "targets"),
	}
}

// Seed makes target scores reproducible.
func (t *Targets) Seed(seed int64) {
	t.rng = rand.New(rand.NewSource(seed))
}

func (t *Targets) Get(id EntityID) (*Target, bool) {
	target, ok := t.items[id]
	return target, ok
}

// IDs returns the live target ids in ascending order.
func (t *Targets) IDs() []EntityID {
	ids := make([]EntityID, 0, len(t.items))
	for id := range t.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Targets) Len() int {
	return len(t.items)
}

func (t *Targets) publish(target *Target) {
	err := t.state.Set(target.ID, TargetState{
		Hits:  uint8(target.HitCount),
		Scale: target.Scale,
		Score: target.ScoreValue,
	})
	if err != nil {
		t.log.Error().Err(err).Msg("could not publish target")
	}
}

// Spawn places one target with a random score in the configured range.
func (t *Targets) Spawn() *Target {
	return Guarded(t.auth, "spawn target", func() *Target { return t.spawn() })
}

func (t *Targets) spawn() *Target {
	spread := t.config.MaxScore - t.config.MinScore + 1
	target := &Target{
		ID:         t.allocate(),
		ScoreValue: t.config.MinScore + t.rng.Int31n(spread),
		Scale:      1,
	}
	t.items[target.ID] = target
	t.publish(target)
	return target
}

// Hit registers a hit by the given team and reports whether it counted.
func (t *Targets) Hit(id EntityID, team TeamID) bool {
	return Guarded(t.auth, "hit target", func() bool { return t.hit(id, team) })
}

func (t *Targets) hit(id EntityID, team TeamID) bool {
	target, ok := t.items[id]
	if !ok || target.Destroyed {
		return false
	}

	target.HitCount++
	if target.HitCount == 1 {
		target.Scale *= TargetScaleFactor
		t.publish(target)
		t.events.Publish(TargetScaled{
			Target: id,
			Scale:  target.Scale,
		})
		return true
	}

	target.Destroyed = true
	t.ledger.Increment(team, target.ScoreValue)
	t.remove(id)
	t.events.Publish(TargetDestroyed{
		Target: id,
		Team:   team,
		Score:  target.ScoreValue,
	})
	return true
}

func (t *Targets) remove(id EntityID) {
	delete(t.items, id)
	if err := t.state.Delete(id); err != nil {
		t.log.Error().Err(err).Msg("could not remove target")
	}
}

// Clear removes every target.
func (t *Targets) Clear() {
	for _, id := range t.IDs() {
		t.remove(id)
	}
}

// SpawnWave replaces whatever is left of the previous wave.
func (t *Targets) SpawnWave() []EntityID {
	return Guarded(t.auth, "spawn wave", func() []EntityID { return t.spawnWave() })
}

func (t *Targets) spawnWave() []EntityID {
	t.Clear()
	ids := make([]EntityID, 0, t.config.WaveSize)
	for i := 0; i < t.config.WaveSize; i++ {
		if target := t.Spawn(); target != nil {
			ids = append(ids, target.ID)
		}
	}

	t.events.Publish(WaveSpawned{Targets: ids})
	return ids
}

// StartWaves spawns a wave now and then one every interval.
func (t *Targets) StartWaves() {
	t.auth.Mutate("start waves", func() { t.startWaves() })
}

func (t *Targets) startWaves() {
	if t.config.WaveSize == 0 {
		return
	}

	t.StopWaves()
	t.SpawnWave()

	handle, err := t.timers.Repeating(t.config.WaveInterval, func() {
		t.SpawnWave()
	})
	if err != nil {
		t.log.Error().Err(err).Msg("could not schedule target waves")
		return
	}
	t.wave = handle
}

func (t *Targets) StopWaves() {
	t.timers.Cancel(t.wave)
	t.wave = 0
}

func (t *Targets) Waving() bool {
	return t.wave != 0
}
