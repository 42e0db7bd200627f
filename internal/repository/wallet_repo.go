package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getWalletByUser(ctx context.Context, q rowQuerier, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := q.QueryRow(ctx, `
		SELECT id, owner_user_id, balance, last_updated FROM wallets WHERE owner_user_id = $1
	`, userID).Scan(&w.ID, &w.OwnerUserID, &w.Balance, &w.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return getWalletByUser(ctx, r.pool, userID)
}

// GetByUserIDTx reads the wallet inside tx without locking it.
func (r *WalletRepo) GetByUserIDTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return getWalletByUser(ctx, tx, userID)
}

// GetOrCreate inserts an empty wallet for userID unless one exists, then returns it.
func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallets (id, owner_user_id, balance) VALUES ($1, $2, 0)
		ON CONFLICT (owner_user_id) DO NOTHING
	`, uuid.New(), userID)
	if err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

// EnsureTx is GetOrCreate inside the caller's transaction. The row is not locked.
func (r *WalletRepo) EnsureTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (id, owner_user_id, balance) VALUES ($1, $2, 0)
		ON CONFLICT (owner_user_id) DO NOTHING
	`, uuid.New(), userID)
	if err != nil {
		return nil, err
	}
	return getWalletByUser(ctx, tx, userID)
}

// GetByIDForUpdate locks the wallet row for update. Call within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT id, owner_user_id, balance, last_updated FROM wallets WHERE id = $1 FOR UPDATE
	`, id).Scan(&w.ID, &w.OwnerUserID, &w.Balance, &w.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT id, owner_user_id, balance, last_updated FROM wallets WHERE owner_user_id = $1 FOR UPDATE
	`, userID).Scan(&w.ID, &w.OwnerUserID, &w.Balance, &w.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateBalance sets the wallet balance. Call after GetByIDForUpdate in the same tx;
// the balance >= 0 check constraint backs up the caller's validation.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallets SET balance = $2, last_updated = now() WHERE id = $1
	`, id, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *WalletRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM wallets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
