package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

const entryColumns = `id, wallet_id, direction, amount, balance_after, reference_type, reference_id, actor, created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository reads and appends ledger_entries. Rows are never updated or deleted.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendTx runs inside the caller's transaction, after the wallet row has been
// locked and its balance written. It fills e.ID and e.CreatedAt.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (wallet_id, direction, amount, balance_after, reference_type, reference_id, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, e.WalletID, e.Direction, e.Amount, e.BalanceAfter, e.ReferenceType, e.ReferenceID, e.Actor).Scan(&e.ID, &e.CreatedAt)
}

// LastBalanceAfter returns the balance_after of the wallet's newest entry.
func (r *Repository) LastBalanceAfter(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, bool, error) {
	var balance int64
	err := tx.QueryRow(ctx, `
		SELECT balance_after FROM ledger_entries WHERE wallet_id = $1 ORDER BY id DESC LIMIT 1
	`, walletID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// ListByWallet returns the wallet's entries oldest first.
func (r *Repository) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	return listByWallet(ctx, r.pool, walletID)
}

func (r *Repository) ListByWalletTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	return listByWallet(ctx, tx, walletID)
}

func listByWallet(ctx context.Context, q querier, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE wallet_id = $1 ORDER BY id ASC`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Direction, &e.Amount, &e.BalanceAfter, &e.ReferenceType, &e.ReferenceID, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
