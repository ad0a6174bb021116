package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/gameserver/protocol"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

// watch joins a match as an ordinary client and logs what replicates to it.
func watch(url string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", url, err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	var team game.TeamID
	mirror := replication.NewMirror()

	replication.Watch(mirror, "phase", func(phase game.Phase) {
		log.Info().Str("phase", phase.String()).Msg("phase changed")
		if phase != game.PhaseGameOver {
			return
		}

		scores := replication.GetMap[game.TeamID, int32](mirror, "scores")
		teams := make([]game.TeamID, 0, len(scores))
		for id := range scores {
			teams = append(teams, id)
		}
		sort.Slice(teams, func(i, j int) bool { return teams[i] < teams[j] })
		for _, id := range teams {
			log.Info().Uint8("team", uint8(id)).Int32("score", scores[id]).Msg("final score")
		}
		fmt.Printf("%s\n", game.Outcome(team, scores))
	})
	replication.Watch(mirror, "active", func(remaining int32) {
		log.Debug().Int32("remaining", remaining).Msg("tick")
	})
	replication.WatchMap(mirror, "scores", func(id game.TeamID, score int32, deleted bool) {
		if deleted {
			return
		}
		log.Info().Uint8("team", uint8(id)).Int32("score", score).Msg("score")
	})

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		message, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("could not decode message")
			continue
		}

		switch message := message.(type) {
		case *protocol.WelcomeMessage:
			team = message.Team
			log.Info().
				Str("match", message.Match).
				Str("level", message.Level).
				Uint8("team", uint8(message.Team)).
				Msg("joined")
		case *protocol.FrameMessage:
			mirror.Apply(message.Changes)
		case *protocol.ErrorMessage:
			return fmt.Errorf("server error: %s", message.Message)
		}
	}
}
