// internal/ws/handler_test.go
package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	logger := hub.logger
	r.Get("/ws/lobbies/{lobbyID}", LobbyHandler(hub, logger, []string{"*"}))
	r.Get("/ws/user/{userID}", UserHandler(hub, logger, []string{"*"}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http", "ws", 1) + path
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func readEvent(t *testing.T, ctx context.Context, c *websocket.Conn) Message {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestLobbyHandlerConnectAndBroadcast(t *testing.T) {
	hub := newTestHub()
	srv := newWSServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, srv, "/ws/lobbies/l1")

	greeting := readEvent(t, ctx, c)
	assert.Equal(t, "connected", greeting.Event)
	assert.Equal(t, "l1", greeting.Data["lobbyId"])

	hub.BroadcastLobby("l1", "participant:join", map[string]any{"userId": "u1"})

	ev := readEvent(t, ctx, c)
	assert.Equal(t, "participant:join", ev.Event)
	assert.Equal(t, "u1", ev.Data["userId"])
}

func TestLobbyHandlerCountdownRelay(t *testing.T) {
	hub := newTestHub()
	srv := newWSServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := dial(t, ctx, srv, "/ws/lobbies/l1")
	b := dial(t, ctx, srv, "/ws/lobbies/l1")
	readEvent(t, ctx, a)
	readEvent(t, ctx, b)

	packet, _ := json.Marshal(clientPacket{Event: "countdown", LobbyID: "l1", Seconds: 5})
	require.NoError(t, b.Write(ctx, websocket.MessageText, packet))

	ev := readEvent(t, ctx, a)
	assert.Equal(t, "countdown:update", ev.Event)
	assert.Equal(t, 5.0, ev.Data["seconds"])
}

func TestUserHandlerPaymentsEvent(t *testing.T) {
	hub := newTestHub()
	srv := newWSServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dial(t, ctx, srv, "/ws/user/u1")
	greeting := readEvent(t, ctx, c)
	assert.Equal(t, "connected", greeting.Event)
	assert.Equal(t, "u1", greeting.Data["userId"])

	hub.BroadcastUser("u1", "payments:update", map[string]any{"txHash": "tx1"})

	ev := readEvent(t, ctx, c)
	assert.Equal(t, "payments:update", ev.Event)
	assert.Equal(t, "tx1", ev.Data["txHash"])
}
