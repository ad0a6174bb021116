package ingress

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

type wsConnection struct {
	conn *websocket.Conn
}

func (c *wsConnection) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, message, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		return message, nil
	}
}

func (c *wsConnection) Write(ctx context.Context, data []byte) error {
	return WriteTimeout(ctx, 5*time.Second, c.conn, data)
}

func WriteTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, msg)
}

// WSIngress accepts browser clients over WebSocket.
type WSIngress struct {
	match Match
	ids   *IDs
}

func NewWSIngress(match Match, ids *IDs) *WSIngress {
	return &WSIngress{
		match: match,
		ids:   ids,
	}
}

func (server *WSIngress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("error accepting client connection")
		return
	}
	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	// We sit behind a proxy in production, so check this first
	hostname := r.RemoteAddr
	if original, ok := r.Header["X-Forwarded-For"]; ok {
		hostname = original[0]
	}

	id := server.ids.Next()
	logger := log.With().
		Uint32("controller", uint32(id)).
		Str("host", hostname).
		Str("transport", "ws").
		Logger()

	err = handle(r.Context(), server.match, id, hostname, r.UserAgent(), &wsConnection{conn: c}, logger)
	if errors.Is(err, context.Canceled) {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("client connection failed")
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}
