package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

var errMalformedEntry = errors.New("malformed ledger entry")

// ErrMalformedEntry is returned by AppendTx for an entry that can never be valid.
var ErrMalformedEntry = errMalformedEntry

type Store interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	LastBalanceAfter(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, bool, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error)
	ListByWalletTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]*models.LedgerEntry, error)
}

type Service interface {
	Store
}

type service struct {
	repo Store
}

func NewService(repo Store) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	if err := validate(e); err != nil {
		return err
	}
	return s.repo.AppendTx(ctx, tx, e)
}

func (s *service) LastBalanceAfter(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (int64, bool, error) {
	return s.repo.LastBalanceAfter(ctx, tx, walletID)
}

func (s *service) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.repo.ListByWallet(ctx, walletID)
}

func (s *service) ListByWalletTx(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.repo.ListByWalletTx(ctx, tx, walletID)
}

func validate(e *models.LedgerEntry) error {
	switch {
	case e.Direction != models.DirectionCredit && e.Direction != models.DirectionDebit:
		return fmt.Errorf("%w: direction %q", errMalformedEntry, e.Direction)
	case e.Amount <= 0:
		return fmt.Errorf("%w: amount %d", errMalformedEntry, e.Amount)
	case e.BalanceAfter < 0:
		return fmt.Errorf("%w: balance_after %d", errMalformedEntry, e.BalanceAfter)
	case e.ReferenceType == "" || e.Actor == "":
		return fmt.Errorf("%w: reference type and actor are required", errMalformedEntry)
	}
	return nil
}

// Mismatch describes where a wallet's ledger stops agreeing with itself or the wallet.
type Mismatch struct {
	EntryID  int64 // 0 when the final sum disagrees with the wallet balance
	Expected int64
	Actual   int64
	Reason   string
}

func (m *Mismatch) Error() string {
	if m.EntryID == 0 {
		return fmt.Sprintf("%s: expected %d, got %d", m.Reason, m.Expected, m.Actual)
	}
	return fmt.Sprintf("entry %d: %s: expected %d, got %d", m.EntryID, m.Reason, m.Expected, m.Actual)
}

// Verify replays entries (oldest first) from a zero balance and checks every
// balance_after and the final sum against balance. It returns a *Mismatch or nil.
func Verify(entries []*models.LedgerEntry, balance int64) error {
	var sum int64
	for _, e := range entries {
		sum += e.Signed()
		if sum < 0 {
			return &Mismatch{EntryID: e.ID, Expected: 0, Actual: sum, Reason: "running balance negative"}
		}
		if sum != e.BalanceAfter {
			return &Mismatch{EntryID: e.ID, Expected: sum, Actual: e.BalanceAfter, Reason: "balance_after does not match running sum"}
		}
	}
	if sum != balance {
		return &Mismatch{Expected: sum, Actual: balance, Reason: "wallet balance does not match ledger sum"}
	}
	return nil
}
