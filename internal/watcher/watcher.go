// Package watcher bridges an external TON transaction indexer to the
// payments table and the fan-out layer. It is best-effort polling, not
// a ledger: a failed tick is logged and the next one runs on schedule.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tonlobby/tonlobby/internal/database"
	"github.com/tonlobby/tonlobby/internal/models"
	"github.com/tonlobby/tonlobby/internal/ws"
)

// DefaultInterval is the poll cadence between ticks.
const DefaultInterval = 60 * time.Second

// nanoton is the chain's smallest unit per TON.
const nanoton = 1e9

// Watcher polls the indexer and records confirmed incoming deposits.
type Watcher struct {
	store         database.Store
	hub           *ws.Hub
	logger        *logrus.Logger
	client        *http.Client
	baseURL       string
	apiKey        string
	confirmations int
}

// New builds a Watcher. The HTTP client carries a bounded timeout so a
// hung indexer cannot stall a tick indefinitely.
func New(store database.Store, hub *ws.Hub, logger *logrus.Logger, baseURL, apiKey string, confirmations int) *Watcher {
	return &Watcher{
		store:         store,
		hub:           hub,
		logger:        logger,
		client:        &http.Client{Timeout: 10 * time.Second},
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		confirmations: confirmations,
	}
}

// indexerTx is one transaction as reported by the indexer. Providers
// disagree on field names, so alternates are kept and coalesced.
type indexerTx struct {
	Hash               string          `json:"hash"`
	TransactionID      string          `json:"transaction_id"`
	Amount             json.RawMessage `json:"amount"`
	To                 string          `json:"to"`
	AccountDst         string          `json:"account_dst"`
	Confirmations      json.RawMessage `json:"confirmations"`
	ConfirmationsCount json.RawMessage `json:"confirmations_count"`
}

type indexerResponse struct {
	Transactions []indexerTx `json:"transactions"`
}

// asFloat parses a JSON number or numeric string, else 0.
func asFloat(raw json.RawMessage) float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Tick fetches the latest transactions and processes each one. A bad
// transaction is logged and skipped; it never aborts the batch.
func (w *Watcher) Tick(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/blockchain/getTransactions", nil)
	if err != nil {
		return fmt.Errorf("build indexer request: %w", err)
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("indexer responded %d", resp.StatusCode)
	}

	var body indexerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode indexer response: %w", err)
	}

	for _, tx := range body.Transactions {
		if err := w.handleTx(ctx, tx); err != nil {
			w.logger.WithError(err).WithField("tx", coalesce(tx.Hash, tx.TransactionID)).Warn("skipping transaction")
		}
	}
	return nil
}

// handleTx records one confirmed deposit. Transactions still below the
// confirmation threshold are re-evaluated on the next tick; the tx_hash
// upsert key makes re-observing a confirmed one harmless.
func (w *Watcher) handleTx(ctx context.Context, tx indexerTx) error {
	hash := coalesce(tx.Hash, tx.TransactionID)
	dest := coalesce(tx.To, tx.AccountDst)
	if hash == "" || dest == "" {
		return nil
	}

	conf := int(asFloat(tx.Confirmations))
	if conf == 0 {
		conf = int(asFloat(tx.ConfirmationsCount))
	}
	if conf < w.confirmations {
		return nil
	}

	amount := asFloat(tx.Amount) / nanoton

	var userID *uuid.UUID
	userKey := ""
	user, err := w.store.GetUserByWallet(ctx, dest)
	switch {
	case err == nil:
		userID = &user.ID
		userKey = user.ID.String()
	case !errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("look up wallet owner: %w", err)
	}

	p := &models.Payment{
		UserID: userID,
		Type:   "deposit",
		Amount: amount,
		Status: "confirmed",
		TxHash: hash,
	}
	if err := w.store.UpsertPayment(ctx, p); err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"tx":     hash,
		"amount": amount,
		"user":   userKey,
	}).Info("deposit confirmed")

	data := map[string]any{
		"userId": userKey,
		"txHash": hash,
		"amount": amount,
	}
	if userKey == "" {
		// No wallet owner: every connected user hears it instead.
		w.hub.BroadcastAllUsers("payments:update", data)
	} else {
		w.hub.BroadcastUser(userKey, "payments:update", data)
	}
	return nil
}
