package game

import (
	"math"
	"sort"

	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
)

// Ledger holds the score of each team. Entries are created on first
// reference and every change is replicated as a (team, score) point
// update.
type Ledger struct {
	auth   *Authority
	hub    *replication.Hub
	scores *replication.Map[TeamID, int32]
	events *Events
	log    zerolog.Logger

	frozen bool
}

func NewLedger(auth *Authority, hub *replication.Hub, events *Events, logger zerolog.Logger) *Ledger {
	return &Ledger{
		auth:   auth,
		hub:    hub,
		scores: replication.NewMap[TeamID, int32](hub, "scores"),
		events: events,
		log:    logger,
	}
}

func clamp32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// Increment adds delta to a team's score and returns the new total.
// A frozen ledger leaves the score as it is.
func (l *Ledger) Increment(team TeamID, delta int32) int32 {
	return Guarded(l.auth, "increment", func() int32 { return l.increment(team, delta) })
}

func (l *Ledger) increment(team TeamID, delta int32) int32 {
	current, _ := l.scores.Get(team)
	if l.frozen {
		return current
	}

	next := clamp32(int64(current) + int64(delta))

	if err := l.scores.Set(team, next); err != nil {
		l.log.Error().Err(err).Msgf("could not publish score for %s", team)
		return current
	}

	l.events.Publish(ScoreChanged{
		Team:  team,
		Score: next,
		Delta: next - current,
	})
	return next
}

// StealOnKill moves half of the victim team's score to the killer team
// and returns the amount moved. Both updates reach clients together.
func (l *Ledger) StealOnKill(killer, victim TeamID) int32 {
	return Guarded(l.auth, "steal", func() int32 { return l.stealOnKill(killer, victim) })
}

func (l *Ledger) stealOnKill(killer, victim TeamID) int32 {
	if killer == victim || l.frozen {
		return 0
	}

	score, _ := l.scores.Get(victim)
	if score <= 0 {
		return 0
	}

	// The victim only loses what the killer can actually gain.
	gainer, _ := l.scores.Get(killer)
	amount := min(score/2, clamp32(int64(gainer)+int64(score/2))-gainer)
	if amount <= 0 {
		return 0
	}

	l.hub.Batch(func() {
		l.Increment(killer, amount)
		l.Increment(victim, -amount)
	})

	l.log.Debug().
		Int32("amount", amount).
		Msgf("%s stole from %s", killer, victim)
	return amount
}

// Seed makes sure every team has an entry, publishing zero scores.
func (l *Ledger) Seed(numTeams int) {
	l.hub.Batch(func() {
		for i := 0; i < numTeams; i++ {
			l.Increment(TeamID(i), 0)
		}
	})
}

func (l *Ledger) Score(team TeamID) (int32, bool) {
	return l.scores.Get(team)
}

func (l *Ledger) Scores() map[TeamID]int32 {
	return l.scores.Values()
}

func (l *Ledger) Teams() []TeamID {
	teams := l.scores.Keys()
	sort.Slice(teams, func(i, j int) bool { return teams[i] < teams[j] })
	return teams
}

// Freeze makes the current scores final. Nothing changes them until the
// next Reset.
func (l *Ledger) Freeze() {
	l.auth.Mutate("freeze scores", func() { l.frozen = true })
}

func (l *Ledger) Frozen() bool {
	return l.frozen
}

// Reset empties and unfreezes the ledger.
func (l *Ledger) Reset() {
	l.auth.Mutate("reset scores", func() { l.reset() })
}

func (l *Ledger) reset() {
	l.frozen = false
	if err := l.scores.Clear(); err != nil {
		l.log.Error().Err(err).Msg("could not clear scores")
	}
}

func (l *Ledger) OnChanged(hook func(team TeamID, score int32)) {
	l.scores.OnChanged(func(team TeamID, score int32, deleted bool) {
		if !deleted {
			hook(team, score)
		}
	})
}
