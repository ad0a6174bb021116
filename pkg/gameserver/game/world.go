package game

import (
	"github.com/rs/zerolog"
)

// World is the level collaborator: it loads levels and knows where players
// may spawn.
type World interface {
	LoadLevel(name string) error
	SpawnPoints() []SpawnPoint
}

// Brain is the AI collaborator. It is locked outside the active phase and
// told to stop entirely when the match ends.
type Brain interface {
	SetLocked(locked bool)
	StopLogic(reason string)
}

// StaticWorld serves a fixed list of spawn points and only records which
// level was requested.
type StaticWorld struct {
	Level  string
	Points []SpawnPoint
	Loads  int
	log    zerolog.Logger
}

var _ World = &StaticWorld{}

func NewStaticWorld(level string, points []SpawnPoint, logger zerolog.Logger) *StaticWorld {
	return &StaticWorld{
		Level:  level,
		Points: points,
		log:    logger,
	}
}

func (w *StaticWorld) LoadLevel(name string) error {
	w.Level = name
	w.Loads++
	w.log.Info().Str("level", name).Msg("loading level")
	return nil
}

func (w *StaticWorld) SpawnPoints() []SpawnPoint {
	return w.Points
}

type noBrain struct{}

func (noBrain) SetLocked(bool)   {}
func (noBrain) StopLogic(string) {}

// NoBrain is used when no AI is attached.
var NoBrain Brain = noBrain{}
