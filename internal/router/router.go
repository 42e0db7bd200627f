package router

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/handlers"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/middleware"
)

// Config carries the handlers and credentials the router needs.
// Idempotency may be nil, in which case Idempotency-Key headers are ignored.
type Config struct {
	Bookings     *handlers.BookingHandler
	Wallets      *handlers.WalletHandler
	Events       *handlers.EventsHandler
	JWTSecret    []byte
	ServiceToken string
	Idempotency  middleware.IdempotencyStore
	Logger       *slog.Logger
}

// New returns an http.Handler serving the /v1 player and admin API and the
// /internal service-to-service endpoints.
func New(cfg Config) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.Auth(cfg.JWTSecret)
	mutating := func(h http.HandlerFunc) http.Handler {
		if cfg.Idempotency == nil {
			return authed(h)
		}
		return authed(middleware.Idempotency(cfg.Idempotency, cfg.Logger)(h))
	}
	admin := func(h http.Handler) http.Handler {
		return authed(middleware.RequireAdmin(h))
	}
	adminMutating := func(h http.HandlerFunc) http.Handler {
		if cfg.Idempotency == nil {
			return admin(h)
		}
		return admin(middleware.Idempotency(cfg.Idempotency, cfg.Logger)(h))
	}

	b, w := cfg.Bookings, cfg.Wallets

	// Slots and bookings
	mux.Handle("GET /v1/tournaments/{id}/slots", authed(http.HandlerFunc(b.GetTournamentSlots)))
	mux.Handle("GET /v1/tournaments/{id}/slots/summary", authed(http.HandlerFunc(b.GetSlotSummary)))
	mux.Handle("POST /v1/tournaments/{id}/slots/generate", adminMutating(b.GenerateSlots))
	mux.Handle("POST /v1/tournaments/{id}/bookings", mutating(b.BookSlot))
	mux.Handle("POST /v1/tournaments/{id}/bookings/next", mutating(b.BookNextAvailable))
	mux.Handle("POST /v1/tournaments/{id}/bookings/team", mutating(b.BookTeamSlots))
	mux.Handle("DELETE /v1/slots/{id}/booking", mutating(b.CancelBooking))
	mux.Handle("GET /v1/me/slots", authed(http.HandlerFunc(b.GetMySlots)))

	// Wallet
	mux.Handle("GET /v1/me/wallet", authed(http.HandlerFunc(w.GetWallet)))
	mux.Handle("GET /v1/me/ledger", authed(http.HandlerFunc(w.GetLedger)))
	mux.Handle("POST /v1/me/transfers", mutating(w.Transfer))
	mux.Handle("POST /v1/me/deposits", mutating(w.RequestDeposit))
	mux.Handle("POST /v1/me/withdrawals", mutating(w.RequestWithdrawal))
	mux.Handle("GET /v1/me/payments", authed(http.HandlerFunc(w.GetMyPayments)))

	// Admin
	mux.Handle("DELETE /v1/admin/slots/{id}/booking", adminMutating(b.AdminCancelBooking))
	mux.Handle("POST /v1/admin/wallets/{userID}/credit", adminMutating(w.AdminCredit))
	mux.Handle("POST /v1/admin/wallets/{userID}/debit", adminMutating(w.AdminDebit))
	mux.Handle("POST /v1/admin/wallets/{userID}/balance", adminMutating(w.AdminSetBalance))
	mux.Handle("GET /v1/admin/wallets/{userID}/reconcile", admin(http.HandlerFunc(w.AdminReconcile)))
	mux.Handle("GET /v1/admin/payments/pending", admin(http.HandlerFunc(w.ListPendingPayments)))
	mux.Handle("POST /v1/admin/payments/{id}/approve", adminMutating(w.ApprovePayment))
	mux.Handle("POST /v1/admin/payments/{id}/reject", adminMutating(w.RejectPayment))

	// Service-to-service
	mux.Handle("POST /internal/events/tournament-cancelled",
		middleware.ServiceToken(cfg.ServiceToken)(http.HandlerFunc(cfg.Events.TournamentCancelled)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var h http.Handler = mux
	h = middleware.AccessLog(cfg.Logger)(h)
	h = chimw.Recoverer(h)
	h = chimw.RequestID(h)
	return h
}
