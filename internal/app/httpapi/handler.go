// Package httpapi exposes the wallet layer over HTTP. Responses use a flat
// envelope: {"success": true, ...} on the happy path and
// {"success": false, "error": CODE, "message": ...} on failure.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novadex/wallet-layer/internal/app/domain/wallet"
	"github.com/novadex/wallet-layer/internal/app/metrics"
	"github.com/novadex/wallet-layer/internal/app/services/journal"
	"github.com/novadex/wallet-layer/internal/app/services/ledger"
	"github.com/novadex/wallet-layer/internal/app/services/withdrawal"
	"github.com/novadex/wallet-layer/internal/app/storage"
	"github.com/novadex/wallet-layer/internal/audit"
	"github.com/novadex/wallet-layer/internal/errors"
	"github.com/novadex/wallet-layer/internal/middleware"
	"github.com/novadex/wallet-layer/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Handler wires the services to their routes.
type Handler struct {
	ledger      *ledger.Service
	journal     *journal.Service
	withdrawals *withdrawal.Service
	users       storage.UserStore
	metrics     *metrics.Metrics
	audit       *audit.Log
	log         *logger.Logger
	started     time.Time
}

// New builds a handler. metrics and audit may be nil.
func New(l *ledger.Service, j *journal.Service, w *withdrawal.Service, users storage.UserStore, m *metrics.Metrics, a *audit.Log, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		ledger:      l,
		journal:     j,
		withdrawals: w,
		users:       users,
		metrics:     m,
		audit:       a,
		log:         log,
		started:     time.Now(),
	}
}

// Limits holds the per-surface rate limit wrappers. Nil entries disable the
// corresponding budget.
type Limits struct {
	API        func(http.Handler) http.Handler
	Withdrawal func(http.Handler) http.Handler
}

// Routes assembles the full mux. The general budget and CORS wrap the whole
// mux at the server layer; API and withdrawal budgets attach here, per route.
func (h *Handler) Routes(limits Limits) http.Handler {
	mux := http.NewServeMux()

	api := func(pattern string, fn http.HandlerFunc) {
		var handler http.Handler = fn
		if limits.API != nil {
			handler = limits.API(handler)
		}
		mux.Handle(pattern, middleware.Instrument(h.metrics, pattern, handler))
	}
	wd := func(pattern string, fn http.HandlerFunc) {
		var handler http.Handler = fn
		if limits.Withdrawal != nil {
			handler = limits.Withdrawal(handler)
		}
		mux.Handle(pattern, middleware.Instrument(h.metrics, pattern, handler))
	}

	api("POST /api/sync-balances", h.syncBalances)
	api("GET /api/balances/{userAddress}", h.getBalances)
	api("GET /api/check-transaction/{txHash}", h.checkTransaction)
	api("POST /api/save-transaction", h.saveTransaction)
	api("GET /api/user-transactions/{userAddress}", h.userTransactions)
	api("GET /api/withdrawal-requests/{userAddress}", h.listWithdrawals)
	api("GET /api/active-users", h.activeUsers)

	wd("POST /withdrawal-request", h.createWithdrawal)
	wd("GET /withdrawal-status/{requestId}", h.withdrawalStatus)

	mux.HandleFunc("GET /health", h.health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	// Unknown fields are ignored; clients send extras like timestamp.
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, errors.InvalidArgument("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func (h *Handler) record(event, severity string, details map[string]interface{}) {
	if h.audit != nil {
		h.audit.Record(event, severity, details)
	}
}

// --- balances ---

type syncBalancesRequest struct {
	UserAddress string             `json:"userAddress"`
	Balances    map[string]float64 `json:"balances"`
}

func (h *Handler) syncBalances(w http.ResponseWriter, r *http.Request) {
	var req syncBalancesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ledger.Sync(r.Context(), req.UserAddress, req.Balances); err != nil {
		middleware.WriteError(w, err)
		return
	}
	balances, err := h.ledger.Balances(r.Context(), req.UserAddress)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"balances": balances,
	})
}

func (h *Handler) getBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.Balances(r.Context(), r.PathValue("userAddress"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"balances": balances,
	})
}

// --- transactions ---

func (h *Handler) checkTransaction(w http.ResponseWriter, r *http.Request) {
	processed, err := h.journal.IsProcessed(r.Context(), r.PathValue("txHash"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"processed": processed,
	})
}

type saveTransactionRequest struct {
	UserAddress string  `json:"userAddress"`
	TxHash      string  `json:"txHash"`
	Token       string  `json:"token"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
}

func (h *Handler) saveTransaction(w http.ResponseWriter, r *http.Request) {
	var req saveTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.journal.Record(r.Context(), req.UserAddress, req.TxHash, req.Token, req.Amount, wallet.TxType(req.Type), wallet.TxStatus(req.Status))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !created && h.metrics != nil {
		h.metrics.JournalReplays.Inc()
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"created": created,
	})
}

func (h *Handler) userTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.journal.List(r.Context(), r.PathValue("userAddress"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"transactions": txs,
	})
}

// --- withdrawals ---

type withdrawalRequest struct {
	UserAddress string  `json:"userAddress"`
	Token       string  `json:"token"`
	Amount      float64 `json:"amount"`
	Address     string  `json:"address"`
}

func (h *Handler) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.withdrawals.Create(r.Context(), req.UserAddress, req.Token, req.Amount, req.Address)
	if err != nil {
		se := errors.GetServiceError(err)
		if se != nil {
			switch se.Code {
			case errors.CodeDuplicateRequest:
				if h.metrics != nil {
					h.metrics.DedupSuppressions.Inc()
				}
				h.record("duplicate_request_suppressed", "info", map[string]interface{}{
					"user":  req.UserAddress,
					"token": req.Token,
				})
			case errors.CodeInvalidArgument:
				h.record("invalid_withdrawal_attempt", "warning", map[string]interface{}{
					"user":    req.UserAddress,
					"address": req.Address,
				})
			case errors.CodeGatewayRejected:
				if h.metrics != nil {
					h.metrics.WithdrawalsRejected.Inc()
				}
				h.record("withdrawal_rejected", "warning", map[string]interface{}{
					"user":  req.UserAddress,
					"token": req.Token,
				})
			}
		}
		middleware.WriteError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.WithdrawalsForwarded.Inc()
	}
	h.record("withdrawal_forwarded", "info", map[string]interface{}{
		"requestId": res.Request.RequestID,
		"user":      res.Request.UserAddress,
		"token":     res.Request.Token,
		"amount":    res.Request.Amount,
	})
	if res.MirrorErr != nil {
		// The authority accepted; surface the degraded mirror rather than
		// failing a withdrawal that is already in flight.
		h.record("withdrawal_mirror_failed", "error", map[string]interface{}{
			"requestId": res.Request.RequestID,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"requestId": res.Request.RequestID,
		"status":    string(res.Request.Status),
		"mirrored":  res.MirrorErr == nil,
	})
}

func (h *Handler) withdrawalStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.withdrawals.Status(r.Context(), r.PathValue("requestId"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	body := map[string]interface{}{
		"success":   true,
		"requestId": resp.RequestID,
		"status":    resp.Status,
	}
	if resp.Message != "" {
		body["message"] = resp.Message
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.withdrawals.List(r.Context(), r.PathValue("userAddress"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"requests": reqs,
	})
}

// --- users and health ---

func (h *Handler) activeUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("user list read failed, returning empty view")
		users = []wallet.User{}
	}
	if users == nil {
		users = []wallet.User{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"users":   users,
		"count":   len(users),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"status":    "ok",
		"service":   "wallet-layer",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).String(),
	})
}
