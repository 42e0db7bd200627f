package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/audit"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/ledger"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// Mutation is one signed balance change to apply through the ledger.
type Mutation struct {
	WalletID      uuid.UUID
	Direction     string
	Amount        int64
	ReferenceType string
	ReferenceID   string
	Actor         string
}

// TransferResult reports both balances after a transfer.
type TransferResult struct {
	FromUserID  uuid.UUID `json:"from_user_id"`
	ToUserID    uuid.UUID `json:"to_user_id"`
	Amount      int64     `json:"amount"`
	FromBalance int64     `json:"from_balance"`
	ToBalance   int64     `json:"to_balance"`
}

// ReconcileReport is the outcome of a ledger sweep over many wallets.
type ReconcileReport struct {
	Checked    int         `json:"checked"`
	Mismatched []uuid.UUID `json:"mismatched"`
}

// WalletService owns every write to wallets.balance. Other services reach the
// balance only through ApplyLedgerMutation inside their own transaction.
type WalletService struct {
	tx      *TxRunner
	wallets WalletRepo
	ledger  LedgerRepo
	users   UserDirectory
	hooks   Hooks
}

func NewWalletService(tx *TxRunner, wallets WalletRepo, ledger LedgerRepo, users UserDirectory, hooks Hooks) *WalletService {
	return &WalletService{tx: tx, wallets: wallets, ledger: ledger, users: users, hooks: hooks}
}

// ApplyLedgerMutation locks the wallet, checks the ledger invariant, writes the
// new balance and appends the matching ledger entry, all in tx.
func (s *WalletService) ApplyLedgerMutation(ctx context.Context, tx pgx.Tx, m Mutation) (*models.LedgerEntry, error) {
	if m.Amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, m.Amount)
	}
	var delta int64
	switch m.Direction {
	case models.DirectionCredit:
		delta = m.Amount
	case models.DirectionDebit:
		delta = -m.Amount
	default:
		return nil, fmt.Errorf("unknown ledger direction %q", m.Direction)
	}

	w, err := s.wallets.GetByIDForUpdate(ctx, tx, m.WalletID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, m.WalletID)
	}
	if err != nil {
		return nil, err
	}

	last, ok, err := s.ledger.LastBalanceAfter(ctx, tx, w.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		last = 0
	}
	if last != w.Balance {
		return nil, invariantf("wallet %s balance %d, last ledger balance %d", w.ID, w.Balance, last)
	}

	next := w.Balance + delta
	if next < 0 {
		return nil, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, w.Balance, m.Amount)
	}
	if delta > 0 && next < w.Balance {
		return nil, fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
	}

	if err := s.wallets.UpdateBalance(ctx, tx, w.ID, next); err != nil {
		if pgCode(err) == pgCheckViolation {
			return nil, invariantf("wallet %s rejected balance %d: %v", w.ID, next, err)
		}
		return nil, err
	}
	e := &models.LedgerEntry{
		WalletID:      w.ID,
		Direction:     m.Direction,
		Amount:        m.Amount,
		BalanceAfter:  next,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Actor:         m.Actor,
	}
	if err := s.ledger.AppendTx(ctx, tx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetWallet returns the user's wallet, creating an empty one on first access.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetOrCreate(ctx, userID)
}

// GetLedger returns the user's ledger oldest first.
func (s *WalletService) GetLedger(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return s.ledger.ListByWallet(ctx, w.ID)
}

// AddCoins credits a user's wallet as an admin adjustment.
func (s *WalletService) AddCoins(ctx context.Context, userID uuid.UUID, amount int64, actor, reason string) (*models.LedgerEntry, error) {
	e, err := s.adjust(ctx, "AddCoins", userID, models.DirectionCredit, amount, actor, reason, true)
	if err == nil {
		s.hooks.notify(models.Notification{Kind: models.NotifyWalletCredited, UserID: userID, Amount: amount, Balance: e.BalanceAfter})
	}
	return e, err
}

// DeductCoins debits a user's wallet as an admin adjustment.
func (s *WalletService) DeductCoins(ctx context.Context, userID uuid.UUID, amount int64, actor, reason string) (*models.LedgerEntry, error) {
	e, err := s.adjust(ctx, "DeductCoins", userID, models.DirectionDebit, amount, actor, reason, false)
	if err == nil {
		s.hooks.notify(models.Notification{Kind: models.NotifyWalletDebited, UserID: userID, Amount: amount, Balance: e.BalanceAfter})
	}
	return e, err
}

func (s *WalletService) adjust(ctx context.Context, op string, userID uuid.UUID, direction string, amount int64, actor, reason string, create bool) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.validateAdjustment(ctx, userID, amount, create)
	if err == nil {
		err = s.tx.Run(ctx, op, func(tx pgx.Tx) error {
			w, err := s.walletForAdjustment(ctx, tx, userID, create)
			if err != nil {
				return err
			}
			entry, err = s.ApplyLedgerMutation(ctx, tx, Mutation{
				WalletID:      w.ID,
				Direction:     direction,
				Amount:        amount,
				ReferenceType: models.RefAdminAdjustment,
				ReferenceID:   reason,
				Actor:         actor,
			})
			return err
		})
	}
	ev := audit.Event{Operation: op, Actor: actor, UserID: userID.String(), Amount: amount}
	if entry != nil {
		ev.BalanceAfter = &entry.BalanceAfter
	}
	s.hooks.record(ev, err)
	return entry, err
}

func (s *WalletService) validateAdjustment(ctx context.Context, userID uuid.UUID, amount int64, checkUser bool) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if checkUser {
		return s.requireUser(ctx, userID)
	}
	return nil
}

func (s *WalletService) requireUser(ctx context.Context, userID uuid.UUID) error {
	if s.users == nil {
		return nil
	}
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("identity lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return nil
}

func (s *WalletService) walletForAdjustment(ctx context.Context, tx pgx.Tx, userID uuid.UUID, create bool) (*models.Wallet, error) {
	if create {
		return s.wallets.EnsureTx(ctx, tx, userID)
	}
	w, err := s.wallets.GetByUserIDForUpdate(ctx, tx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
	}
	return w, err
}

// SetBalance moves the wallet to target with a single adjustment entry for the
// difference. It writes nothing when the balance already equals target.
func (s *WalletService) SetBalance(ctx context.Context, userID uuid.UUID, target int64, actor, reason string) (*models.Wallet, error) {
	var out *models.Wallet
	var delta int64
	err := s.requireUser(ctx, userID)
	if err == nil && target < 0 {
		err = fmt.Errorf("%w: target balance %d", ErrInvalidAmount, target)
	}
	if err == nil {
		err = s.tx.Run(ctx, "SetBalance", func(tx pgx.Tx) error {
			w, err := s.wallets.EnsureTx(ctx, tx, userID)
			if err != nil {
				return err
			}
			w, err = s.wallets.GetByIDForUpdate(ctx, tx, w.ID)
			if err != nil {
				return err
			}
			delta = target - w.Balance
			if delta == 0 {
				out = w
				return nil
			}
			m := Mutation{
				WalletID:      w.ID,
				Direction:     models.DirectionCredit,
				Amount:        delta,
				ReferenceType: models.RefAdminAdjustment,
				ReferenceID:   reason,
				Actor:         actor,
			}
			if delta < 0 {
				m.Direction, m.Amount = models.DirectionDebit, -delta
			}
			e, err := s.ApplyLedgerMutation(ctx, tx, m)
			if err != nil {
				return err
			}
			w.Balance = e.BalanceAfter
			out = w
			return nil
		})
	}
	ev := audit.Event{Operation: "SetBalance", Actor: actor, UserID: userID.String(), Amount: delta}
	if out != nil {
		ev.BalanceAfter = &out.Balance
	}
	s.hooks.record(ev, err)
	return out, err
}

// Transfer moves amount between two users' wallets. Both wallets are locked in
// ascending id order so opposite transfers cannot deadlock.
func (s *WalletService) Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, actor string) (*TransferResult, error) {
	res, err := s.transfer(ctx, fromUserID, toUserID, amount, actor)
	ev := audit.Event{Operation: "Transfer", Actor: actor, UserID: fromUserID.String(), Amount: amount}
	if res != nil {
		ev.BalanceAfter = &res.FromBalance
	}
	s.hooks.record(ev, err)
	if err == nil {
		s.hooks.notify(models.Notification{Kind: models.NotifyWalletDebited, UserID: fromUserID, Amount: amount, Balance: res.FromBalance})
		s.hooks.notify(models.Notification{Kind: models.NotifyWalletCredited, UserID: toUserID, Amount: amount, Balance: res.ToBalance})
	}
	return res, err
}

func (s *WalletService) transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, actor string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if fromUserID == toUserID {
		return nil, ErrSelfTransfer
	}
	if err := s.requireUser(ctx, toUserID); err != nil {
		return nil, err
	}

	res := &TransferResult{FromUserID: fromUserID, ToUserID: toUserID, Amount: amount}
	err := s.tx.Run(ctx, "Transfer", func(tx pgx.Tx) error {
		// Unlocked read: both rows are locked below in ascending id order.
		from, err := s.wallets.GetByUserIDTx(ctx, tx, fromUserID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: user %s", ErrWalletNotFound, fromUserID)
		}
		if err != nil {
			return err
		}
		to, err := s.wallets.EnsureTx(ctx, tx, toUserID)
		if err != nil {
			return err
		}

		ids := []uuid.UUID{from.ID, to.ID}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for _, id := range ids {
			if _, err := s.wallets.GetByIDForUpdate(ctx, tx, id); err != nil {
				return err
			}
		}

		debit, err := s.ApplyLedgerMutation(ctx, tx, Mutation{
			WalletID: from.ID, Direction: models.DirectionDebit, Amount: amount,
			ReferenceType: models.RefTransfer, ReferenceID: to.ID.String(), Actor: actor,
		})
		if err != nil {
			return err
		}
		credit, err := s.ApplyLedgerMutation(ctx, tx, Mutation{
			WalletID: to.ID, Direction: models.DirectionCredit, Amount: amount,
			ReferenceType: models.RefTransfer, ReferenceID: from.ID.String(), Actor: actor,
		})
		if err != nil {
			return err
		}
		res.FromBalance, res.ToBalance = debit.BalanceAfter, credit.BalanceAfter
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reconcile replays the user's ledger and compares it with the wallet balance.
// A disagreement is reported as ErrLedgerInvariant.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) error {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
	}
	if err != nil {
		return err
	}
	err = s.reconcileWallet(ctx, w.ID)
	if KindOf(err) == KindInvariant {
		s.hooks.record(audit.Event{Operation: "Reconcile", Actor: "reconciler", UserID: userID.String()}, err)
	}
	return err
}

func (s *WalletService) reconcileWallet(ctx context.Context, walletID uuid.UUID) error {
	return s.tx.Run(ctx, "Reconcile", func(tx pgx.Tx) error {
		// The row lock keeps writers out while the ledger is replayed.
		w, err := s.wallets.GetByIDForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}
		entries, err := s.ledger.ListByWalletTx(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if err := ledger.Verify(entries, w.Balance); err != nil {
			return invariantf("wallet %s: %v", walletID, err)
		}
		return nil
	})
}

// ReconcileAll checks every wallet and collects the ones whose ledger disagrees.
// Errors other than invariant violations abort the sweep.
func (s *WalletService) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	ids, err := s.wallets.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Mismatched: []uuid.UUID{}}
	for _, id := range ids {
		err := s.reconcileWallet(ctx, id)
		report.Checked++
		if KindOf(err) == KindInvariant {
			report.Mismatched = append(report.Mismatched, id)
			s.hooks.record(audit.Event{Operation: "Reconcile", Actor: "reconciler"}, err)
			continue
		}
		if err != nil {
			return report, err
		}
	}
	return report, nil
}
