//go:build enet

package ingress

import (
	"context"
	"fmt"

	"github.com/codecat/go-enet"
	"github.com/rs/zerolog/log"
)

const ENET_CHANNELS = 1

type enetConnection struct {
	cancel   context.CancelFunc
	incoming chan []byte
	outgoing chan []byte
}

func (c *enetConnection) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *enetConnection) Write(ctx context.Context, data []byte) error {
	select {
	case c.outgoing <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type enetClient struct {
	peer enet.Peer
	conn *enetConnection
}

// ENetIngress accepts desktop clients over ENet. The host is only ever
// touched from Serve's goroutine.
type ENetIngress struct {
	match   Match
	ids     *IDs
	clients map[string]*enetClient
}

func NewENetIngress(match Match, ids *IDs) *ENetIngress {
	return &ENetIngress{
		match:   match,
		ids:     ids,
		clients: make(map[string]*enetClient),
	}
}

func (server *ENetIngress) Serve(ctx context.Context, port int) error {
	enet.Initialize()
	defer enet.Deinitialize()

	host, err := enet.NewHost(enet.NewListenAddress(uint16(port)), 32, ENET_CHANNELS, 0, 0)
	if err != nil {
		return fmt.Errorf("could not bind enet port %d: %w", port, err)
	}
	defer host.Destroy()

	log.Info().Int("port", port).Msg("listening for enet clients")

	for {
		if ctx.Err() != nil {
			for _, client := range server.clients {
				client.conn.cancel()
				client.peer.DisconnectNow(0)
			}
			return nil
		}

		server.flush()

		event := host.Service(10)
		switch event.GetType() {
		case enet.EventConnect:
			server.connect(ctx, event.GetPeer())
		case enet.EventReceive:
			packet := event.GetPacket()
			data := append([]byte(nil), packet.GetData()...)
			packet.Destroy()

			client, ok := server.clients[event.GetPeer().GetAddress().String()]
			if !ok {
				continue
			}
			select {
			case client.conn.incoming <- data:
			default:
				log.Warn().Msg("enet client is not keeping up, dropping packet")
			}
		case enet.EventDisconnect:
			address := event.GetPeer().GetAddress().String()
			if client, ok := server.clients[address]; ok {
				client.conn.cancel()
				delete(server.clients, address)
			}
		}
	}
}

func (server *ENetIngress) connect(ctx context.Context, peer enet.Peer) {
	address := peer.GetAddress().String()
	ctx, cancel := context.WithCancel(ctx)

	client := &enetClient{
		peer: peer,
		conn: &enetConnection{
			cancel:   cancel,
			incoming: make(chan []byte, CLIENT_MESSAGE_LIMIT),
			outgoing: make(chan []byte, CLIENT_MESSAGE_LIMIT),
		},
	}
	server.clients[address] = client

	id := server.ids.Next()
	logger := log.With().
		Uint32("controller", uint32(id)).
		Str("host", address).
		Str("transport", "enet").
		Logger()

	go func() {
		defer cancel()
		err := handle(ctx, server.match, id, address, "", client.conn, logger)
		if err != nil {
			logger.Error().Err(err).Msg("client connection failed")
		}
	}()
}

// flush sends everything the client goroutines have queued.
func (server *ENetIngress) flush() {
	for _, client := range server.clients {
		for {
			select {
			case data := <-client.conn.outgoing:
				err := client.peer.SendBytes(data, 0, enet.PacketFlagReliable)
				if err != nil {
					log.Error().Err(err).Msg("could not send enet packet")
				}
				continue
			default:
			}
			break
		}
	}
}
