// Package ingress connects transports to the match server. Each client
// gets a reader that submits requests and a writer that drains its outbox;
// neither touches game state.
package ingress

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cfoust/skirmish/pkg/gameserver"
	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/gameserver/protocol"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const CLIENT_MESSAGE_LIMIT = 16

var ErrClientLeft = errors.New("client left")

// Match is the part of the server a transport needs.
type Match interface {
	Connect(id game.ControllerID, host, agent string) (*gameserver.Client, game.PlayerSession, error)
	Disconnect(id game.ControllerID) error
	Submit(id game.ControllerID, req game.Request) error
	MatchID() string
	Level() string
}

var _ Match = (*gameserver.Server)(nil)

// Connection is a message-oriented transport for one client.
type Connection interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// IDs hands out controller ids shared by every transport.
type IDs struct {
	last atomic.Uint32
}

func (i *IDs) Next() game.ControllerID {
	return game.ControllerID(i.last.Add(1))
}

func send(ctx context.Context, conn Connection, message any) error {
	data, err := protocol.Encode(message)
	if err != nil {
		return err
	}
	return conn.Write(ctx, data)
}

// handle runs one client until it leaves, its connection fails or the
// match closes its outbox.
func handle(
	ctx context.Context,
	match Match,
	id game.ControllerID,
	host, agent string,
	conn Connection,
	logger zerolog.Logger,
) error {
	client, session, err := match.Connect(id, host, agent)
	if err != nil {
		send(ctx, conn, protocol.Error(err))
		return err
	}
	defer func() {
		err := match.Disconnect(id)
		if err != nil && !errors.Is(err, gameserver.ErrClosed) {
			logger.Error().Err(err).Msg("could not disconnect client")
		}
	}()

	logger.Info().
		Str("device", client.Device()).
		Str("team", session.Team.String()).
		Msg("client joined")

	err = send(ctx, conn, protocol.Welcome(session, match.MatchID(), match.Level()))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			changes, err := client.Outbox.Next(ctx)
			if err != nil {
				return err
			}
			if err := send(ctx, conn, protocol.Frame(changes)); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		for {
			data, err := conn.Read(ctx)
			if err != nil {
				return err
			}

			message, err := protocol.Decode(data)
			if err != nil {
				logger.Warn().Err(err).Msg("could not decode message")
				continue
			}

			switch message := message.(type) {
			case *protocol.RequestMessage:
				err := match.Submit(id, message.Request())
				if errors.Is(err, gameserver.ErrRateLimited) {
					continue
				}
				if err != nil {
					return err
				}
			case protocol.GenericMessage:
				if message.Op == protocol.DisconnectOp {
					return ErrClientLeft
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, ErrClientLeft) ||
		errors.Is(err, replication.ErrClosed) ||
		errors.Is(err, context.Canceled) {
		logger.Info().Msg("client left")
		return nil
	}
	return err
}
