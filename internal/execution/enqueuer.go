package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// JobInserter is the subset of *river.Client used to enqueue jobs.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

type Enqueuer struct {
	client JobInserter
}

func NewEnqueuer(client JobInserter) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueRefund schedules a bulk refund. A duplicate of a live job is a no-op.
func (e *Enqueuer) EnqueueRefund(ctx context.Context, tournamentID uuid.UUID, actor string) error {
	_, err := e.client.Insert(ctx, RefundTournamentArgs{TournamentID: tournamentID, Actor: actor}, nil)
	if err != nil {
		return fmt.Errorf("enqueue refund for %s: %w", tournamentID, err)
	}
	return nil
}
