package api

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter wires the public and authenticated routes.
func NewRouter(h *Handler, auth *Auth, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(logger))

	r.HandleFunc("/health", h.HealthHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)

	api.HandleFunc("/price", h.PriceHandler).Methods("GET")
	api.HandleFunc("/balances", h.BalancesHandler).Methods("GET")
	api.HandleFunc("/settings", h.GetSettingsHandler).Methods("GET")
	api.HandleFunc("/settings", h.UpdateSettingsHandler).Methods("PUT")
	api.HandleFunc("/trades", h.TradesHandler).Methods("GET")
	api.HandleFunc("/statistics", h.StatisticsHandler).Methods("GET")
	api.HandleFunc("/market", h.MarketHandler).Methods("GET")
	api.HandleFunc("/pending-buys", h.PendingBuysHandler).Methods("GET")
	api.HandleFunc("/pending-buys/{id:[0-9]+}/confirm", h.ConfirmPendingBuyHandler).Methods("POST")
	api.HandleFunc("/pending-buys/{id:[0-9]+}/reject", h.RejectPendingBuyHandler).Methods("POST")

	return r
}
