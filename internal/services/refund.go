package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/audit"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// RefundFailure records one slot the bulk refund could not process.
type RefundFailure struct {
	SlotID     uuid.UUID  `json:"slot_id"`
	SlotNumber int        `json:"slot_number"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Code       string     `json:"code"`
	Error      string     `json:"error"`
}

// RefundSummary is the outcome of refunding a cancelled tournament.
type RefundSummary struct {
	TournamentID uuid.UUID       `json:"tournament_id"`
	Attempted    int             `json:"attempted"`
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	Failures     []RefundFailure `json:"failures"`
}

// RefundProcessor refunds every booked slot of a cancelled tournament, one
// transaction per slot, so a bad row cannot block the rest of the batch.
type RefundProcessor struct {
	bookings    *BookingService
	tournaments TournamentRepo
	slots       SlotRepo
	concurrency int
	hooks       Hooks
}

func NewRefundProcessor(bookings *BookingService, tournaments TournamentRepo, slots SlotRepo, concurrency int, hooks Hooks) *RefundProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RefundProcessor{
		bookings:    bookings,
		tournaments: tournaments,
		slots:       slots,
		concurrency: concurrency,
		hooks:       hooks,
	}
}

// RefundTournament refunds all BOOKED slots of a CANCELLED tournament. Running
// it again only touches slots that are still booked.
func (p *RefundProcessor) RefundTournament(ctx context.Context, tournamentID uuid.UUID, actor string) (*RefundSummary, error) {
	summary, err := p.refund(ctx, tournamentID, actor)
	ev := audit.Event{Operation: "RefundTournament", Actor: actor, TournamentID: tournamentID.String()}
	if summary != nil {
		ev.Amount = int64(summary.Succeeded)
	}
	p.hooks.record(ev, err)
	if err != nil {
		return nil, err
	}
	p.hooks.log().Info("tournament refund finished",
		"tournament_id", tournamentID,
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (p *RefundProcessor) refund(ctx context.Context, tournamentID uuid.UUID, actor string) (*RefundSummary, error) {
	t, err := p.tournaments.GetByID(ctx, tournamentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
	}
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentStatusCancelled {
		return nil, fmt.Errorf("%w: status %s", ErrNotCancelled, t.Status)
	}

	booked, err := p.slots.ListBooked(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	summary := &RefundSummary{TournamentID: tournamentID, Attempted: len(booked), Failures: []RefundFailure{}}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, slot := range booked {
		g.Go(func() error {
			_, err := p.bookings.refundSlot(ctx, slot.ID, actor)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, RefundFailure{
					SlotID:     slot.ID,
					SlotNumber: slot.SlotNumber,
					UserID:     slot.HolderUserID,
					Code:       CodeOf(err),
					Error:      err.Error(),
				})
				p.hooks.log().Warn("slot refund failed", "tournament_id", tournamentID, "slot", slot.SlotNumber, "error", err)
				return nil
			}
			summary.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].SlotNumber < summary.Failures[j].SlotNumber
	})
	return summary, nil
}
