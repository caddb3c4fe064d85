package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/price"
	"btc-threshold-trader/internal/trader"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// historyDays is the length of the daily series shown with the market summary.
const historyDays = 7

// MarketData provides spot and daily prices.
type MarketData interface {
	SpotPrice(ctx context.Context) (price.Quote, bool)
	HistoricalDaily(ctx context.Context, days int, stored []float64) []price.Point
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	accounts *trader.Accounts
	pending  *trader.PendingGate
	seeder   *trader.HistorySeeder
	market   MarketData
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(accounts *trader.Accounts, pending *trader.PendingGate, seeder *trader.HistorySeeder, market MarketData, logger *zap.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		pending:  pending,
		seeder:   seeder,
		market:   market,
		logger:   logger,
		now:      time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type driftResponse struct {
	Error    string  `json:"error"`
	Proposed float64 `json:"proposed_price"`
	Current  float64 `json:"current_price"`
	Percent  float64 `json:"drift_percent"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps trading errors to HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var drift *trader.PriceDriftError
	switch {
	case errors.As(err, &drift):
		respondJSON(w, http.StatusConflict, driftResponse{
			Error:    drift.Error(),
			Proposed: drift.Proposed,
			Current:  drift.Current,
			Percent:  drift.Percent,
		})
	case errors.Is(err, trader.ErrUnauthorized):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, trader.ErrPendingBuyResolved):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, trader.ErrInvalidSettings), errors.Is(err, trader.ErrMissingCredentials):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, trader.ErrInsufficientBalance):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, trader.ErrPriceUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, binance.ErrOrderRejected), errors.Is(err, binance.ErrRequestFailed):
		h.logger.Warn("Exchange call failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, http.StatusBadGateway, "exchange request failed")
	default:
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// HealthHandler reports that the service is up.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PriceHandler returns the current spot price.
func (h *Handler) PriceHandler(w http.ResponseWriter, r *http.Request) {
	quote, ok := h.market.SpotPrice(r.Context())
	if !ok {
		respondError(w, http.StatusServiceUnavailable, trader.ErrPriceUnavailable.Error())
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// BalancesHandler returns the balances the user trades with.
func (h *Handler) BalancesHandler(w http.ResponseWriter, r *http.Request) {
	balances, err := h.accounts.Balances(r.Context(), userID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, balances)
}

// GetSettingsHandler returns the user's settings.
func (h *Handler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.accounts.Settings(r.Context(), userID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// UpdateSettingsHandler applies a partial settings update.
func (h *Handler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var upd trader.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.accounts.UpdateSettings(r.Context(), userID(r.Context()), upd)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// TradesHandler returns all historical trades, most recent first.
func (h *Handler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := h.accounts.Trades(r.Context(), userID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, trades)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	trader.Stats
	PendingCount int `json:"pending_count"`
}

// StatisticsHandler calculates and returns trading statistics.
func (h *Handler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	id := userID(r.Context())
	stats, err := h.accounts.TradeStatistics(r.Context(), id, h.now())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	pending, err := h.pending.Outstanding(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, StatisticsResponse{Stats: stats, PendingCount: len(pending)})
}

// MarketResponse is the structure for the /api/market endpoint.
type MarketResponse struct {
	Price   *price.Quote  `json:"price"`
	History []price.Point `json:"history"`
	Summary price.Summary `json:"summary"`
}

// MarketHandler returns the daily price series and its summary. Users with
// too little stored history get it backfilled first.
func (h *Handler) MarketHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := userID(ctx)

	if _, err := h.accounts.Settings(ctx, id); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if _, err := h.seeder.Seed(ctx, id); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	s, err := h.accounts.Settings(ctx, id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	resp := MarketResponse{History: h.market.HistoricalDaily(ctx, historyDays, s.PriceHistory)}
	current := 0.0
	if quote, ok := h.market.SpotPrice(ctx); ok {
		resp.Price = &quote
		current = quote.Value
	}
	resp.Summary = price.Summarize(resp.History, current)
	respondJSON(w, http.StatusOK, resp)
}

// PendingBuysHandler lists the pending buys awaiting the user's decision.
func (h *Handler) PendingBuysHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := h.pending.Outstanding(r.Context(), userID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pending)
}

func pendingID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id), err
}

// ConfirmPendingBuyHandler executes a pending buy at the current price.
func (h *Handler) ConfirmPendingBuyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pendingID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pending buy id")
		return
	}

	trade, err := h.pending.Confirm(r.Context(), id, userID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, trade)
}

// RejectPendingBuyHandler discards a pending buy.
func (h *Handler) RejectPendingBuyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pendingID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pending buy id")
		return
	}

	pending, err := h.pending.Reject(r.Context(), id, userID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pending)
}
