// Package execution runs the engine's background work: durable bulk refunds on
// River and the periodic ledger reconciliation sweep.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/services"
)

type RefundTournamentArgs struct {
	TournamentID uuid.UUID `json:"tournament_id"`
	Actor        string    `json:"actor"`
}

func (RefundTournamentArgs) Kind() string { return "refund_tournament" }

// InsertOpts collapses repeated cancellation events into one live job. A
// completed job does not block a later event; the refund is safe to re-run.
func (RefundTournamentArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 10,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRetryable,
				rivertype.JobStateRunning,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// Refunder defines the contract the worker needs to refund a tournament.
type Refunder interface {
	RefundTournament(ctx context.Context, tournamentID uuid.UUID, actor string) (*services.RefundSummary, error)
}

type RefundTournamentWorker struct {
	river.WorkerDefaults[RefundTournamentArgs]
	refunds Refunder
	logger  *slog.Logger
}

func NewRefundTournamentWorker(r Refunder, logger *slog.Logger) *RefundTournamentWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefundTournamentWorker{refunds: r, logger: logger}
}

// Work refunds every booked slot. Slots that fail are retried on the next
// attempt; a tournament that is missing or not cancelled cancels the job.
func (w *RefundTournamentWorker) Work(ctx context.Context, job *river.Job[RefundTournamentArgs]) error {
	args := job.Args
	summary, err := w.refunds.RefundTournament(ctx, args.TournamentID, args.Actor)
	if err != nil {
		switch services.KindOf(err) {
		case services.KindNotFound, services.KindPrecondition:
			w.logger.Warn("Refund job cancelled", "tournament_id", args.TournamentID, "error", err)
			return river.JobCancel(err)
		}
		return fmt.Errorf("refund tournament %s: %w", args.TournamentID, err)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d slot refunds failed for tournament %s (first: %s)",
			summary.Failed, summary.Attempted, args.TournamentID, summary.Failures[0].Code)
	}
	return nil
}
