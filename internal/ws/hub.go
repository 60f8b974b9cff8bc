// Package ws is the real-time fan-out layer: it multiplexes
// server-originated events to subscribed websocket connections.
// Delivery is at-most-once and in-memory only; clients poll the HTTP
// surface as the primary mechanism and treat pushes as a low-latency
// supplement, so a missed event is never authoritative state loss.
package ws

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Message is one event on a channel.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Client is a single connection's presence in the hub. Its out channel
// is buffered; a saturated client drops messages rather than blocking
// the broadcaster.
type Client struct {
	out chan Message
}

// NewClient returns a client with the given out-channel capacity.
func NewClient(buffer int) *Client {
	return &Client{out: make(chan Message, buffer)}
}

// Out exposes the delivery channel for the connection's write pump.
func (c *Client) Out() <-chan Message { return c.out }

// send pushes msg non-blockingly. Reports whether it was delivered.
func (c *Client) send(msg Message) bool {
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

// LobbyChannel names the broadcast domain for one lobby.
func LobbyChannel(lobbyID string) string { return "lobby:" + lobbyID }

// UserChannel names the broadcast domain for one user.
func UserChannel(userID string) string { return "user:" + userID }

// Hub holds the channel subscription tables. The state is ephemeral and
// reconstructible: clients resubscribe on reconnect, nothing is
// persisted, and nothing survives a restart or spans server instances.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[*Client]struct{}
	logger   *logrus.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		logger:   logger,
	}
}

// Subscribe adds the client to a channel. No authentication is
// performed; any connection may subscribe to any channel.
func (h *Hub) Subscribe(channel string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Client]struct{})
		h.channels[channel] = subs
	}
	subs[c] = struct{}{}
}

// Unsubscribe removes the client from one channel.
func (h *Hub) Unsubscribe(channel string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Drop removes the client from every channel it is subscribed to.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, subs := range h.channels {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Broadcast delivers msg to every subscriber of the channel,
// best-effort. Subscribers whose buffers are full are skipped.
func (h *Hub) Broadcast(channel string, msg Message) {
	h.mu.Lock()
	subs := make([]*Client, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	for _, c := range subs {
		if !c.send(msg) {
			h.logger.WithFields(logrus.Fields{
				"channel": channel,
				"event":   msg.Event,
			}).Warn("subscriber buffer full, event dropped")
		}
	}
}

// BroadcastLobby emits an event on a lobby's channel.
func (h *Hub) BroadcastLobby(lobbyID, event string, data map[string]any) {
	h.Broadcast(LobbyChannel(lobbyID), Message{Event: event, Data: data})
}

// BroadcastUser emits an event on a user's channel.
func (h *Hub) BroadcastUser(userID, event string, data map[string]any) {
	h.Broadcast(UserChannel(userID), Message{Event: event, Data: data})
}

// BroadcastAllUsers emits an event on every user channel with a live
// subscriber. Used for events with no resolvable owner, like a deposit
// to an unknown wallet.
func (h *Hub) BroadcastAllUsers(event string, data map[string]any) {
	h.mu.Lock()
	channels := make([]string, 0, len(h.channels))
	for channel := range h.channels {
		if strings.HasPrefix(channel, "user:") {
			channels = append(channels, channel)
		}
	}
	h.mu.Unlock()

	for _, channel := range channels {
		h.Broadcast(channel, Message{Event: event, Data: data})
	}
}
