package main

import (
	"log/slog"
	"net/http"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/cache"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/config"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/handlers"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/router"
)

type routerDeps struct {
	bookings    handlers.Bookings
	wallets     handlers.Wallets
	payments    handlers.Payments
	refunds     handlers.RefundEnqueuer
	idempotency *cache.Idempotency
}

// buildRouter wires the HTTP adapters onto the engine services.
func buildRouter(cfg *config.Config, d routerDeps, logger *slog.Logger) http.Handler {
	rc := router.Config{
		Bookings:     &handlers.BookingHandler{Bookings: d.bookings, Logger: logger},
		Wallets:      &handlers.WalletHandler{Wallets: d.wallets, Payments: d.payments, Logger: logger},
		Events:       &handlers.EventsHandler{Refunds: d.refunds, Logger: logger},
		JWTSecret:    []byte(cfg.JWTSecret),
		ServiceToken: cfg.ServiceToken,
		Logger:       logger,
	}
	// A nil *cache.Idempotency must stay a nil interface.
	if d.idempotency != nil {
		rc.Idempotency = d.idempotency
	}
	return router.New(rc)
}
