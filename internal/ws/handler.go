package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// clientPacket is an inbound control message from a connection.
type clientPacket struct {
	Event   string  `json:"event"`
	LobbyID string  `json:"lobbyId,omitempty"`
	UserID  string  `json:"userId,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}

// LobbyHandler serves /ws/lobbies/{lobbyID}. The connection is
// subscribed to the lobby channel named in the path; explicit join and
// leave packets move it between lobby channels, and countdown packets
// are re-broadcast to the lobby.
func LobbyHandler(hub *Hub, logger *logrus.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID := chi.URLParam(r, "lobbyID")

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		client := NewClient(16)
		if lobbyID != "" {
			hub.Subscribe(LobbyChannel(lobbyID), client)
		}
		defer hub.Drop(client)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writePump(ctx, c, client, logger)

		client.send(Message{Event: "connected", Data: map[string]any{"ok": true, "lobbyId": lobbyID}})

		readPump(ctx, c, logger, func(p clientPacket) {
			switch p.Event {
			case "join":
				if p.LobbyID == "" {
					return
				}
				hub.Subscribe(LobbyChannel(p.LobbyID), client)
				hub.BroadcastLobby(p.LobbyID, "participant:join", map[string]any{"userId": p.UserID})
			case "leave":
				if p.LobbyID == "" {
					return
				}
				hub.Unsubscribe(LobbyChannel(p.LobbyID), client)
				hub.BroadcastLobby(p.LobbyID, "participant:leave", map[string]any{"userId": p.UserID})
			case "countdown":
				if p.LobbyID == "" {
					return
				}
				hub.BroadcastLobby(p.LobbyID, "countdown:update", map[string]any{"seconds": p.Seconds})
			}
		})

		c.Close(websocket.StatusNormalClosure, "")
	}
}

// UserHandler serves /ws/user/{userID}: a channel per user id carrying
// payments:update events.
func UserHandler(hub *Hub, logger *logrus.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		client := NewClient(16)
		if userID != "" {
			hub.Subscribe(UserChannel(userID), client)
		}
		defer hub.Drop(client)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writePump(ctx, c, client, logger)

		client.send(Message{Event: "connected", Data: map[string]any{"ok": true, "userId": userID}})

		readPump(ctx, c, logger, func(p clientPacket) {
			if p.Event == "subscribe:payments" && p.UserID != "" {
				hub.Subscribe(UserChannel(p.UserID), client)
			}
		})

		c.Close(websocket.StatusNormalClosure, "")
	}
}

// writePump drains the client's out channel onto the wire until the
// context ends.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.Out():
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("marshal outbound event: %v", err)
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound packets and hands them to handle. It returns
// when the connection closes or the context ends.
func readPump(ctx context.Context, c *websocket.Conn, logger *logrus.Logger, handle func(clientPacket)) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var p clientPacket
		if err := json.Unmarshal(data, &p); err != nil {
			logger.Warnf("invalid ws packet: %v", err)
			continue
		}
		handle(p)
	}
}
