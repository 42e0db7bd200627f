package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// TournamentRepo reads the tournaments table. The lifecycle service owns writes.
type TournamentRepo struct {
	pool *pgxpool.Pool
}

func NewTournamentRepo(pool *pgxpool.Pool) *TournamentRepo {
	return &TournamentRepo{pool: pool}
}

const tournamentSelect = `SELECT id, entry_fee, max_players, team_size, status, start_time FROM tournaments WHERE id = $1`

func scanTournament(row pgx.Row) (*models.Tournament, error) {
	var t models.Tournament
	if err := row.Scan(&t.ID, &t.EntryFee, &t.MaxPlayers, &t.TeamSize, &t.Status, &t.StartTime); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TournamentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	return scanTournament(r.pool.QueryRow(ctx, tournamentSelect, id))
}

// GetForShare blocks status updates by the lifecycle service until tx ends.
func (r *TournamentRepo) GetForShare(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Tournament, error) {
	return scanTournament(tx.QueryRow(ctx, tournamentSelect+` FOR SHARE`, id))
}

func (r *TournamentRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Tournament, error) {
	return scanTournament(tx.QueryRow(ctx, tournamentSelect+` FOR UPDATE`, id))
}
