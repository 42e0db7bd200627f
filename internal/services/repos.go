package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TournamentRepo reads tournaments owned by the lifecycle service.
type TournamentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tournament, error)
	// GetForShare takes a FOR SHARE lock so status changes wait for in-flight bookings.
	GetForShare(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Tournament, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Tournament, error)
}

// SlotRepo is the slot store. Only the booking engine writes through it.
type SlotRepo interface {
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Slot, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Slot, error)
	GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID, number int) (*models.Slot, error)
	// NextAvailableForUpdate locks the lowest-numbered AVAILABLE slot, skipping rows
	// locked by other transactions. Returns pgx.ErrNoRows when none is free.
	NextAvailableForUpdate(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID) (*models.Slot, error)
	UserHoldsSlot(ctx context.Context, tx pgx.Tx, tournamentID, userID uuid.UUID) (bool, error)
	MarkBooked(ctx context.Context, tx pgx.Tx, s *models.Slot) error
	Release(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	CountTx(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID) (total, booked int, err error)
	DeleteByTournament(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID) error
	InsertBatch(ctx context.Context, tx pgx.Tx, slots []*models.Slot) error

	Count(ctx context.Context, tournamentID uuid.UUID) (total, booked int, err error)
	ListByTournament(ctx context.Context, tournamentID uuid.UUID) ([]*models.Slot, error)
	ListBooked(ctx context.Context, tournamentID uuid.UUID) ([]*models.Slot, error)
	ListBookedByUser(ctx context.Context, userID uuid.UUID) ([]*models.Slot, error)
}

// WalletRepo is the wallet store. Balance writes go through WalletService only.
type WalletRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserIDTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// EnsureTx creates the wallet if missing and returns it without locking.
	EnsureTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// LedgerRepo is the append-only ledger store.
type LedgerRepo interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	// LastBalanceAfter returns the balance_after of the newest entry, ok=false if none.
	LastBalanceAfter(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (balance int64, ok bool, err error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error)
	ListByWalletTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]*models.LedgerEntry, error)
}

// PaymentRepo stores deposit and withdrawal requests.
type PaymentRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRequest) error
	RefExistsTx(ctx context.Context, tx pgx.Tx, ref string) (bool, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PaymentRequest, error)
	MarkReviewed(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, reviewer string, note *string, at time.Time) error
	ListPending(ctx context.Context) ([]*models.PaymentRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.PaymentRequest, error)
}

// UserDirectory confirms that an opaque user id exists in the identity service.
type UserDirectory interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}
