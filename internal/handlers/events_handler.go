package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// RefundEnqueuer schedules a durable bulk refund for a cancelled tournament.
type RefundEnqueuer interface {
	EnqueueRefund(ctx context.Context, tournamentID uuid.UUID, actor string) error
}

// EventsHandler receives lifecycle events from the tournament service.
type EventsHandler struct {
	Refunds RefundEnqueuer
	Logger  *slog.Logger
}

type tournamentCancelledEvent struct {
	TournamentID uuid.UUID `json:"tournament_id"`
	Actor        string    `json:"actor"`
}

// TournamentCancelled handles POST /internal/events/tournament-cancelled.
// The refund runs in a background job; a repeated event is collapsed into the
// same job while one is pending.
func (h *EventsHandler) TournamentCancelled(w http.ResponseWriter, r *http.Request) {
	var ev tournamentCancelledEvent
	if !decode(w, r, &ev) {
		return
	}
	if ev.TournamentID == uuid.Nil {
		badRequest(w, "tournament_id is required")
		return
	}
	if ev.Actor == "" {
		ev.Actor = "tournament-lifecycle"
	}
	if err := h.Refunds.EnqueueRefund(r.Context(), ev.TournamentID, ev.Actor); err != nil {
		writeError(w, h.Logger, "enqueue refund", err)
		return
	}
	h.Logger.Info("Bulk refund enqueued", "tournament_id", ev.TournamentID)
	writeJSON(w, http.StatusAccepted, map[string]string{"tournament_id": ev.TournamentID.String(), "status": "queued"})
}
