// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonlobby/tonlobby/internal/config"
	"github.com/tonlobby/tonlobby/internal/database"
	"github.com/tonlobby/tonlobby/internal/models"
	"github.com/tonlobby/tonlobby/internal/ws"
)

func newTestServer() (http.Handler, *database.Memory) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mem := database.NewMemory()
	srv := NewServer(mem, ws.NewHub(logger), nil, logger)
	cfg := &config.Config{Port: "8080", WSAllowedOrigins: []string{"*"}}
	return srv.Routes(cfg), mem
}

// do runs one JSON request against the router and decodes the response
// body into a generic map.
func do(t *testing.T, h http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if len(rec.Body.Bytes()) > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestStatusEndpoint(t *testing.T) {
	h, _ := newTestServer()
	code, body := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestServer()
	code, body := do(t, h, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Route not found", body["error"])
}

func TestUpsertUserAndWalletLifecycle(t *testing.T) {
	h, _ := newTestServer()

	code, _ := do(t, h, http.MethodPost, "/api/users/upsert", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, h, http.MethodPost, "/api/users/upsert", map[string]any{
		"appId": "app-1", "action": "connect", "walletAddress": "EQwallet1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	code, body = do(t, h, http.MethodGet, "/api/users/app-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "EQwallet1", body["walletAddress"])

	code, body = do(t, h, http.MethodGet, "/api/wallets?appId=app-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "EQwallet1", body["active"])
	assert.Len(t, body["items"], 1)

	code, _ = do(t, h, http.MethodPost, "/api/users/upsert", map[string]any{
		"appId": "app-1", "action": "disconnect",
	})
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, h, http.MethodGet, "/api/wallets?appId=app-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["active"])
}

func TestGetUnknownUser(t *testing.T) {
	h, _ := newTestServer()
	code, _ := do(t, h, http.MethodGet, "/api/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, h, http.MethodGet, "/api/users/ghost/stats", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLobbyLifecycle(t *testing.T) {
	h, _ := newTestServer()

	code, lobby := do(t, h, http.MethodPost, "/api/lobbies/create", map[string]any{
		"appId": "creator", "seats": 2, "stakeTon": 1.0,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OPEN", lobby["status"])
	assert.Equal(t, 2.0, lobby["poolTon"])
	id := lobby["id"].(string)

	code, joined := do(t, h, http.MethodPost, "/api/lobbies/"+id+"/join", map[string]any{
		"appId": "guest-1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, joined["participants"], 2)

	code, body := do(t, h, http.MethodPost, "/api/lobbies/"+id+"/join", map[string]any{
		"appId": "guest-2",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "LOBBY_FULL", body["error"])

	code, left := do(t, h, http.MethodPost, "/api/lobbies/"+id+"/leave", map[string]any{
		"appId": "guest-1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, left["participants"], 1)

	code, finished := do(t, h, http.MethodPost, "/api/lobbies/"+id+"/finish", map[string]any{
		"appId": "creator",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FINISHED", finished["status"])
	assert.NotEmpty(t, finished["winnerId"])
}

func TestPrivateLobbyPassword(t *testing.T) {
	h, _ := newTestServer()

	code, lobby := do(t, h, http.MethodPost, "/api/lobbies/create", map[string]any{
		"appId": "creator", "seats": 4, "stakeTon": 0.5, "isPrivate": true, "password": "abc",
	})
	require.Equal(t, http.StatusOK, code)
	id := lobby["id"].(string)

	code, body := do(t, h, http.MethodPost, "/api/lobbies/"+id+"/join", map[string]any{
		"appId": "guest", "password": "xyz",
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "INVALID_PASSWORD", body["error"])

	code, _ = do(t, h, http.MethodPost, "/api/lobbies/"+id+"/join", map[string]any{
		"appId": "guest", "password": "abc",
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestPrivateLobbiesHiddenFromPublicList(t *testing.T) {
	h, _ := newTestServer()

	_, _ = do(t, h, http.MethodPost, "/api/lobbies/create", map[string]any{
		"appId": "a", "seats": 2, "stakeTon": 1.0,
	})
	_, _ = do(t, h, http.MethodPost, "/api/lobbies/create", map[string]any{
		"appId": "b", "seats": 2, "stakeTon": 1.0, "isPrivate": true, "password": "pw",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/lobbies/public", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 1)
}

func TestLobbyBadID(t *testing.T) {
	h, _ := newTestServer()
	code, _ := do(t, h, http.MethodGet, "/api/lobbies/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestInviteFlow(t *testing.T) {
	h, _ := newTestServer()

	code, _ := do(t, h, http.MethodPost, "/api/invites/create", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, h, http.MethodPost, "/api/invites/create", map[string]any{
		"lobbyId": "lobby-1",
	})
	require.Equal(t, http.StatusOK, code)
	token := body["token"].(string)

	code, body = do(t, h, http.MethodGet, "/api/invites/"+token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "lobby-1", body["lobbyId"])

	code, body = do(t, h, http.MethodGet, "/api/invites/unknowntoken", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["error"])
}

func TestUserStats(t *testing.T) {
	h, mem := newTestServer()
	ctx := context.Background()

	user, err := mem.EnsureUser(ctx, "player", "")
	require.NoError(t, err)

	// One confirmed deposit and one confirmed withdraw; pending rows are
	// excluded.
	uid := user.ID
	for i, p := range []models.Payment{
		{UserID: &uid, Type: "deposit", Amount: 2, Status: "confirmed"},
		{UserID: &uid, Type: "withdraw", Amount: 5, Status: "confirmed"},
		{UserID: &uid, Type: "deposit", Amount: 9, Status: "pending"},
	} {
		p.TxHash = fmt.Sprintf("tx-%d", i)
		p.CreatedAt = time.Now().UTC()
		require.NoError(t, mem.UpsertPayment(ctx, &p))
	}

	code, body := do(t, h, http.MethodGet, "/api/users/player/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, body["totalRounds"])
	assert.Equal(t, 0.0, body["winRate"])
	assert.Equal(t, 3.0, body["winnings"])
	assert.Equal(t, 3.0, body["last24h"])
}

func TestUserHistory(t *testing.T) {
	h, mem := newTestServer()
	ctx := context.Background()

	// Unknown users get empty lists rather than a 404.
	code, body := do(t, h, http.MethodGet, "/api/users/ghost/history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["payments"])
	assert.Empty(t, body["activity"])

	user, err := mem.EnsureUser(ctx, "player", "")
	require.NoError(t, err)
	require.NoError(t, mem.InsertActivity(ctx, user.ID, "screen:open", nil))

	code, body = do(t, h, http.MethodGet, "/api/users/player/history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["activity"], 1)
}

func TestPostActivity(t *testing.T) {
	h, mem := newTestServer()

	code, _ := do(t, h, http.MethodPost, "/api/activity", map[string]any{"appId": "p"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := do(t, h, http.MethodPost, "/api/activity", map[string]any{
		"appId": "p", "action": "screen:open", "extra_data": map[string]any{"screen": "main"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	user, err := mem.GetUserByAppID(context.Background(), "p")
	require.NoError(t, err)
	acts, err := mem.ListActivity(context.Background(), user.ID, 0)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "screen:open", acts[0].Action)
}

func TestWalletLinkAndActivate(t *testing.T) {
	h, mem := newTestServer()
	ctx := context.Background()

	code, _ := do(t, h, http.MethodPost, "/api/wallets/link", map[string]any{
		"appId": "ghost", "walletAddress": "EQwallet1",
	})
	assert.Equal(t, http.StatusNotFound, code)

	_, err := mem.EnsureUser(ctx, "player", "")
	require.NoError(t, err)

	code, _ = do(t, h, http.MethodPost, "/api/wallets/link", map[string]any{
		"appId": "player", "walletAddress": "EQwallet1",
	})
	require.Equal(t, http.StatusOK, code)

	// Linking alone does not set the active address.
	user, err := mem.GetUserByAppID(ctx, "player")
	require.NoError(t, err)
	assert.Nil(t, user.WalletAddress)

	code, _ = do(t, h, http.MethodPost, "/api/wallets/activate", map[string]any{
		"appId": "player", "walletAddress": "EQwallet1",
	})
	require.Equal(t, http.StatusOK, code)

	user, err = mem.GetUserByAppID(ctx, "player")
	require.NoError(t, err)
	require.NotNil(t, user.WalletAddress)
	assert.Equal(t, "EQwallet1", *user.WalletAddress)
}
