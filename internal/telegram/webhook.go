// Package telegram handles inbound bot webhook updates: secret-header
// verification, update-id dedup, and lazy user creation for the sender.
package telegram

import (
	"encoding/json"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/tonlobby/tonlobby/internal/database"
)

// SecretHeader is the header Telegram echoes the configured webhook
// secret in.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler serves POST /tg/webhook.
type WebhookHandler struct {
	store  database.Store
	secret string
	logger *logrus.Logger
}

// NewWebhookHandler builds the handler. An empty secret disables the
// header check.
func NewWebhookHandler(store database.Store, secret string, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{store: store, secret: secret, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get(SecretHeader) != h.secret {
		h.logger.Warn("telegram webhook rejected: secret mismatch")
		writeJSON(w, http.StatusForbidden, map[string]any{"ok": false})
		return
	}

	// Telegram retries on non-200, so anything past the secret check
	// acknowledges the update even when processing fails.
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.logger.WithError(err).Warn("telegram webhook: bad payload")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	first, err := h.store.MarkUpdateSeen(r.Context(), int64(update.UpdateID))
	if err != nil {
		h.logger.WithError(err).Warn("telegram webhook: dedup check failed")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if !first {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if from := update.SentFrom(); from != nil {
		h.upsertSender(r, strconv.FormatInt(from.ID, 10), update.UpdateID)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// upsertSender lazily creates a user row for the message sender, keyed
// by telegram id, and records the webhook as activity.
func (h *WebhookHandler) upsertSender(r *http.Request, telegramID string, updateID int) {
	ctx := r.Context()
	user, err := h.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		user, err = h.store.EnsureUser(ctx, telegramID, telegramID)
		if err != nil {
			h.logger.WithError(err).Warn("telegram webhook: user upsert failed")
			return
		}
	}
	if err := h.store.InsertActivity(ctx, user.ID, "tg:webhook", map[string]any{"updateId": updateID}); err != nil {
		h.logger.WithError(err).Warn("telegram webhook: activity write failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
