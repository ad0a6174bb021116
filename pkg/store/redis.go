package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog"
)

type RedisSettings struct {
	Address  string `yaml:"address" json:"address" toml:"address" env:"ADDRESS"`
	Password string `yaml:"password" json:"password" toml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" toml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" json:"prefix" toml:"prefix" env:"PREFIX"`
}

// ScoreboardFields are the replicated fields mirrored into Redis.
var ScoreboardFields = []string{"match", "level", "phase", "active", "scores"}

// Scoreboard keeps a Redis hash in step with the live match so that other
// services can read it without connecting to the game.
type Scoreboard struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

func NewScoreboard(settings RedisSettings, logger zerolog.Logger) *Scoreboard {
	prefix := settings.Prefix
	if prefix == "" {
		prefix = "skirmish"
	}

	return &Scoreboard{
		client: redis.NewClient(&redis.Options{
			Addr:     settings.Address,
			Password: settings.Password,
			DB:       settings.DB,
		}),
		prefix: prefix,
		log:    logger,
	}
}

func (s *Scoreboard) Key() string {
	return fmt.Sprintf("%s:scoreboard", s.prefix)
}

func (s *Scoreboard) Channel() string {
	return fmt.Sprintf("%s:updates", s.prefix)
}

// Fields flattens a mirror into hash fields.
func Fields(mirror *replication.Mirror) map[string]any {
	fields := make(map[string]any)

	if match, ok := replication.Get[string](mirror, "match"); ok {
		fields["match"] = match
	}
	if level, ok := replication.Get[string](mirror, "level"); ok {
		fields["level"] = level
	}
	if phase, ok := replication.Get[game.Phase](mirror, "phase"); ok {
		fields["phase"] = phase.String()
	}
	if active, ok := replication.Get[int32](mirror, "active"); ok {
		fields["active"] = active
	}
	for team, score := range replication.GetMap[game.TeamID, int32](mirror, "scores") {
		fields[team.String()] = score
	}
	return fields
}

func (s *Scoreboard) write(ctx context.Context, fields map[string]any) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.Key(), fields)
	pipe.Publish(ctx, s.Channel(), s.Key())
	_, err := pipe.Exec(ctx)
	return err
}

// Mirror subscribes to the hub as client id and writes every change until
// ctx is done or the hub drops the subscription.
func (s *Scoreboard) Mirror(ctx context.Context, hub *replication.Hub, id replication.ClientID) error {
	outbox := hub.Subscribe(id, ScoreboardFields...)
	defer hub.Unsubscribe(id)

	mirror := replication.NewMirror()
	for {
		changes, err := outbox.Next(ctx)
		if errors.Is(err, replication.ErrClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}

		mirror.Apply(changes)
		if err := s.write(ctx, Fields(mirror)); err != nil {
			s.log.Error().Err(err).Msg("could not update scoreboard")
		}
	}
}

func (s *Scoreboard) Close() error {
	return s.client.Close()
}
