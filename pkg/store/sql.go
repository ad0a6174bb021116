package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/game"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("match not found")

type Entity struct {
	ID uint `gorm:"primaryKey"`
}

type Match struct {
	Entity

	UUID    string `gorm:"unique;size:36"`
	Level   string `gorm:"size:64"`
	Started time.Time
	Ended   time.Time

	Results []*TeamResult
}

type TeamResult struct {
	Entity

	MatchID uint `gorm:"not null"`
	Team    uint8
	Score   int32
	Won     bool
}

func InitDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Match{}, &TeamResult{})
	if err != nil {
		return nil, fmt.Errorf("could not migrate: %w", err)
	}

	return db, nil
}

// Results keeps the outcome of every finished match.
type Results struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewResults(db *gorm.DB, logger zerolog.Logger) *Results {
	return &Results{
		db:  db,
		log: logger,
	}
}

func (r *Results) Save(ctx context.Context, ended game.MatchEnded) (*Match, error) {
	teams := make([]game.TeamID, 0, len(ended.Scores))
	for team := range ended.Scores {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i] < teams[j] })

	match := &Match{
		UUID:    ended.Match,
		Level:   ended.Level,
		Started: ended.Started,
		Ended:   ended.Ended,
	}
	for _, team := range teams {
		match.Results = append(match.Results, &TeamResult{
			Team:  uint8(team),
			Score: ended.Scores[team],
			Won:   game.Outcome(team, ended.Scores) == game.ResultWin,
		})
	}

	err := r.db.WithContext(ctx).Create(match).Error
	if err != nil {
		return nil, fmt.Errorf("could not save match %s: %w", ended.Match, err)
	}
	return match, nil
}

func (r *Results) Get(ctx context.Context, uuid string) (*Match, error) {
	var match Match
	err := r.db.WithContext(ctx).
		Preload("Results").
		Where(&Match{UUID: uuid}).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// Recent returns the latest matches, newest first.
func (r *Results) Recent(ctx context.Context, limit int) ([]Match, error) {
	var matches []Match
	err := r.db.WithContext(ctx).
		Preload("Results").
		Order("ended desc").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// Record saves every match that ends until ctx is done.
func (r *Results) Record(ctx context.Context, events *game.Events) {
	subscriber := events.Subscribe()
	defer subscriber.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscriber.Recv():
			ended, ok := event.(game.MatchEnded)
			if !ok {
				continue
			}

			match, err := r.Save(ctx, ended)
			if err != nil {
				r.log.Error().Err(err).Msg("could not record match")
				continue
			}
			r.log.Info().
				Str("match", match.UUID).
				Int("teams", len(match.Results)).
				Msg("recorded match")
		}
	}
}
