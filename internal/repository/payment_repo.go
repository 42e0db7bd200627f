package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

const paymentColumns = `id, user_id, kind, amount, transaction_ref, payout_destination, status, reviewed_by, review_note, created_at, reviewed_at`

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

func scanPayment(row pgx.Row) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	err := row.Scan(&p.ID, &p.UserID, &p.Kind, &p.Amount, &p.TransactionRef, &p.PayoutDestination,
		&p.Status, &p.ReviewedBy, &p.ReviewNote, &p.CreatedAt, &p.ReviewedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTx inserts p. A duplicate transaction_ref surfaces as a 23505 unique violation.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRequest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payment_requests (id, user_id, kind, amount, transaction_ref, payout_destination, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.UserID, p.Kind, p.Amount, p.TransactionRef, p.PayoutDestination, p.Status).Scan(&p.CreatedAt)
}

func (r *PaymentRepo) RefExistsTx(ctx context.Context, tx pgx.Tx, ref string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payment_requests WHERE transaction_ref = $1)
	`, ref).Scan(&exists)
	return exists, err
}

func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PaymentRequest, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_requests WHERE id = $1 FOR UPDATE`, id))
}

// MarkReviewed moves a PENDING request to its final status.
func (r *PaymentRepo) MarkReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, reviewer string, note *string, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_requests SET status = $2, reviewed_by = $3, review_note = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'PENDING'
	`, id, status, reviewer, note, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PaymentRepo) list(ctx context.Context, query string, args ...any) ([]*models.PaymentRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentRequest
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ListPending returns the review queue, oldest first.
func (r *PaymentRepo) ListPending(ctx context.Context) ([]*models.PaymentRequest, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payment_requests WHERE status = 'PENDING' ORDER BY created_at`)
}

func (r *PaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PaymentRequest, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payment_requests WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}
