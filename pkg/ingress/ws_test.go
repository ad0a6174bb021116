package ingress

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver"
	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/gameserver/protocol"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func newMatch(t *testing.T) *gameserver.Server {
	conf := gameserver.DefaultConfig()
	conf.Tick = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	s := gameserver.New(ctx, &conf, nil, nil)
	go s.Poll(ctx)
	t.Cleanup(func() {
		s.Shutdown()
		cancel()
	})
	return s
}

func read(t *testing.T, ctx context.Context, c *websocket.Conn) any {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	message, err := protocol.Decode(data)
	require.NoError(t, err)
	return message
}

func TestWebSocketClient(t *testing.T) {
	match := newMatch(t)
	require.NoError(t, match.Start())

	server := httptest.NewServer(NewWSIngress(match, &IDs{}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	welcome, ok := read(t, ctx, c).(*protocol.WelcomeMessage)
	require.True(t, ok)
	assert.Equal(t, game.ControllerID(1), welcome.Controller)
	assert.Equal(t, game.TeamID(0), welcome.Team)
	assert.Equal(t, match.MatchID(), welcome.Match)

	frame, ok := read(t, ctx, c).(*protocol.FrameMessage)
	require.True(t, ok)
	mirror := replication.NewMirror()
	mirror.Apply(frame.Changes)
	phase, ok := replication.Get[game.Phase](mirror, "phase")
	require.True(t, ok)
	assert.Equal(t, game.PhasePreGame, phase)

	data, err := protocol.Encode(protocol.NewRequest(game.Request{
		Action: game.ActionSetAim,
		Aim:    game.Vec3{X: 2},
	}))
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, data))

	assert.Eventually(t, func() bool {
		var aim game.Vec3
		match.Call("aim", func() {
			if session, ok := match.Sessions.Get(welcome.Controller); ok {
				aim = session.Aim
			}
		})
		return aim == game.Vec3{X: 1}
	}, 2*time.Second, 10*time.Millisecond)

	data, _ = protocol.Encode(protocol.GenericMessage{Op: protocol.DisconnectOp})
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, data))

	assert.Eventually(t, func() bool {
		return match.Clients.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIDsAreShared(t *testing.T) {
	ids := &IDs{}
	assert.Equal(t, game.ControllerID(1), ids.Next())
	assert.Equal(t, game.ControllerID(2), ids.Next())
}
