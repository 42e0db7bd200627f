package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

const slotColumns = `id, tournament_id, slot_number, status, holder_user_id, player_name, booked_at`

type SlotRepo struct {
	pool *pgxpool.Pool
}

func NewSlotRepo(pool *pgxpool.Pool) *SlotRepo {
	return &SlotRepo{pool: pool}
}

func scanSlot(row pgx.Row) (*models.Slot, error) {
	var s models.Slot
	if err := row.Scan(&s.ID, &s.TournamentID, &s.SlotNumber, &s.Status, &s.HolderUserID, &s.PlayerName, &s.BookedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SlotRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Slot, error) {
	return scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
}

// GetByIDForUpdate locks the slot row. Call within a transaction.
func (r *SlotRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Slot, error) {
	return scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id))
}

func (r *SlotRepo) GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID, number int) (*models.Slot, error) {
	return scanSlot(tx.QueryRow(ctx, `
		SELECT `+slotColumns+` FROM slots WHERE tournament_id = $1 AND slot_number = $2 FOR UPDATE
	`, tournamentID, number))
}

// NextAvailableForUpdate skips rows other bookers hold, so auto-pick never waits.
func (r *SlotRepo) NextAvailableForUpdate(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID) (*models.Slot, error) {
	return scanSlot(tx.QueryRow(ctx, `
		SELECT `+slotColumns+` FROM slots
		WHERE tournament_id = $1 AND status = 'AVAILABLE'
		ORDER BY slot_number
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, tournamentID))
}

func (r *SlotRepo) UserHoldsSlot(ctx context.Context, tx pgx.Tx, tournamentID, userID uuid.UUID) (bool, error) {
	var held bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM slots WHERE tournament_id = $1 AND holder_user_id = $2 AND status = 'BOOKED')
	`, tournamentID, userID).Scan(&held)
	return held, err
}

// MarkBooked writes the holder fields of s. Call after locking the row.
func (r *SlotRepo) MarkBooked(ctx context.Context, tx pgx.Tx, s *models.Slot) error {
	tag, err := tx.Exec(ctx, `
		UPDATE slots SET status = $2, holder_user_id = $3, player_name = $4, booked_at = $5
		WHERE id = $1 AND status = 'AVAILABLE'
	`, s.ID, s.Status, s.HolderUserID, s.PlayerName, s.BookedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *SlotRepo) Release(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE slots SET status = 'AVAILABLE', holder_user_id = NULL, player_name = NULL, booked_at = NULL
		WHERE id = $1 AND status = 'BOOKED'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const countSQL = `
	SELECT count(*), count(*) FILTER (WHERE status = 'BOOKED') FROM slots WHERE tournament_id = $1
`

func (r *SlotRepo) CountTx(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID) (total, booked int, err error) {
	err = tx.QueryRow(ctx, countSQL, tournamentID).Scan(&total, &booked)
	return total, booked, err
}

func (r *SlotRepo) Count(ctx context.Context, tournamentID uuid.UUID) (total, booked int, err error) {
	err = r.pool.QueryRow(ctx, countSQL, tournamentID).Scan(&total, &booked)
	return total, booked, err
}

func (r *SlotRepo) DeleteByTournament(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM slots WHERE tournament_id = $1`, tournamentID)
	return err
}

// InsertBatch bulk-loads slots with COPY.
func (r *SlotRepo) InsertBatch(ctx context.Context, tx pgx.Tx, slots []*models.Slot) error {
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"slots"},
		[]string{"id", "tournament_id", "slot_number", "status"},
		pgx.CopyFromSlice(len(slots), func(i int) ([]any, error) {
			s := slots[i]
			return []any{s.ID, s.TournamentID, s.SlotNumber, s.Status}, nil
		}),
	)
	return err
}

func (r *SlotRepo) list(ctx context.Context, where, order string, arg uuid.UUID) ([]*models.Slot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+slotColumns+` FROM slots WHERE `+where+` ORDER BY `+order, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SlotRepo) ListByTournament(ctx context.Context, tournamentID uuid.UUID) ([]*models.Slot, error) {
	return r.list(ctx, `tournament_id = $1`, `slot_number`, tournamentID)
}

func (r *SlotRepo) ListBooked(ctx context.Context, tournamentID uuid.UUID) ([]*models.Slot, error) {
	return r.list(ctx, `tournament_id = $1 AND status = 'BOOKED'`, `slot_number`, tournamentID)
}

func (r *SlotRepo) ListBookedByUser(ctx context.Context, userID uuid.UUID) ([]*models.Slot, error) {
	return r.list(ctx, `holder_user_id = $1 AND status = 'BOOKED'`, `booked_at DESC, slot_number`, userID)
}
