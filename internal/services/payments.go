package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/audit"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// PaymentResult is an approved request with the wallet balance it produced.
type PaymentResult struct {
	Request *models.PaymentRequest `json:"request"`
	Balance int64                  `json:"balance"`
}

// PaymentService handles deposit and withdrawal requests. Balances move only
// on approval, through WalletService.ApplyLedgerMutation.
type PaymentService struct {
	tx       *TxRunner
	payments PaymentRepo
	wallets  WalletRepo
	ledger   *WalletService
	hooks    Hooks
}

func NewPaymentService(tx *TxRunner, payments PaymentRepo, wallets WalletRepo, ledger *WalletService, hooks Hooks) *PaymentService {
	return &PaymentService{tx: tx, payments: payments, wallets: wallets, ledger: ledger, hooks: hooks}
}

// RequestDeposit files a PENDING deposit. transactionRef must be unique platform-wide.
func (s *PaymentService) RequestDeposit(ctx context.Context, userID uuid.UUID, amount int64, transactionRef string) (*models.PaymentRequest, error) {
	ref := strings.TrimSpace(transactionRef)
	p := &models.PaymentRequest{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           models.PaymentKindDeposit,
		Amount:         amount,
		TransactionRef: &ref,
		Status:         models.PaymentStatusPending,
	}
	err := s.create(ctx, p, func(tx pgx.Tx) error {
		if ref == "" {
			return ErrMissingReference
		}
		exists, err := s.payments.RefExistsTx(ctx, tx, ref)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTransactionRef, ref)
		}
		return nil
	})
	s.hooks.record(audit.Event{Operation: "RequestDeposit", Actor: userID.String(), UserID: userID.String(), Amount: amount}, err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RequestWithdrawal files a PENDING withdrawal. The balance is checked now and
// again on approval; nothing is held in between.
func (s *PaymentService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, payoutDestination string) (*models.PaymentRequest, error) {
	dest := strings.TrimSpace(payoutDestination)
	p := &models.PaymentRequest{
		ID:                uuid.New(),
		UserID:            userID,
		Kind:              models.PaymentKindWithdrawal,
		Amount:            amount,
		PayoutDestination: &dest,
		Status:            models.PaymentStatusPending,
	}
	err := s.create(ctx, p, func(tx pgx.Tx) error {
		w, err := s.wallets.GetByUserIDTx(ctx, tx, userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: user %s", ErrWalletNotFound, userID)
		}
		if err != nil {
			return err
		}
		if w.Balance < amount {
			return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, w.Balance, amount)
		}
		return nil
	})
	s.hooks.record(audit.Event{Operation: "RequestWithdrawal", Actor: userID.String(), UserID: userID.String(), Amount: amount}, err)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) create(ctx context.Context, p *models.PaymentRequest, check func(tx pgx.Tx) error) error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, p.Amount)
	}
	p.CreatedAt = s.hooks.now()
	err := s.tx.Run(ctx, "Request"+p.Kind, func(tx pgx.Tx) error {
		if err := check(tx); err != nil {
			return err
		}
		return s.payments.CreateTx(ctx, tx, p)
	})
	if pgCode(err) == pgUniqueViolation {
		return fmt.Errorf("%w: %v", ErrDuplicateTransactionRef, err)
	}
	return err
}

// ApprovePayment completes a PENDING request and applies it to the wallet.
// A withdrawal that the current balance cannot cover fails and stays PENDING.
func (s *PaymentService) ApprovePayment(ctx context.Context, requestID uuid.UUID, adminActor string) (*PaymentResult, error) {
	var res *PaymentResult
	err := s.tx.Run(ctx, "ApprovePayment", func(tx pgx.Tx) error {
		p, err := s.pendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}

		var w *models.Wallet
		m := Mutation{Amount: p.Amount, ReferenceID: p.ID.String(), Actor: adminActor}
		switch p.Kind {
		case models.PaymentKindDeposit:
			w, err = s.wallets.EnsureTx(ctx, tx, p.UserID)
			m.Direction, m.ReferenceType = models.DirectionCredit, models.RefDeposit
		case models.PaymentKindWithdrawal:
			w, err = s.wallets.GetByUserIDForUpdate(ctx, tx, p.UserID)
			if errors.Is(err, pgx.ErrNoRows) {
				err = fmt.Errorf("%w: user %s", ErrWalletNotFound, p.UserID)
			}
			m.Direction, m.ReferenceType = models.DirectionDebit, models.RefWithdrawal
		default:
			return fmt.Errorf("unknown payment kind %q", p.Kind)
		}
		if err != nil {
			return err
		}
		m.WalletID = w.ID

		e, err := s.ledger.ApplyLedgerMutation(ctx, tx, m)
		if err != nil {
			return err
		}
		now := s.hooks.now()
		if err := s.payments.MarkReviewed(ctx, tx, p.ID, models.PaymentStatusCompleted, adminActor, nil, now); err != nil {
			return err
		}
		p.Status, p.ReviewedBy, p.ReviewedAt = models.PaymentStatusCompleted, &adminActor, &now
		res = &PaymentResult{Request: p, Balance: e.BalanceAfter}
		return nil
	})

	ev := audit.Event{Operation: "ApprovePayment", Actor: adminActor}
	if res != nil {
		ev.UserID = res.Request.UserID.String()
		ev.Amount = res.Request.Amount
		ev.BalanceAfter = &res.Balance
	}
	s.hooks.record(ev, err)
	if err != nil {
		return nil, err
	}
	s.hooks.notify(models.Notification{
		Kind:    models.NotifyPaymentCompleted,
		UserID:  res.Request.UserID,
		Amount:  res.Request.Amount,
		Balance: res.Balance,
	})
	return res, nil
}

// RejectPayment moves a PENDING request to REJECTED without touching the wallet.
func (s *PaymentService) RejectPayment(ctx context.Context, requestID uuid.UUID, adminActor, note string) (*models.PaymentRequest, error) {
	var out *models.PaymentRequest
	err := s.tx.Run(ctx, "RejectPayment", func(tx pgx.Tx) error {
		p, err := s.pendingRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		now := s.hooks.now()
		var notePtr *string
		if note != "" {
			notePtr = &note
		}
		if err := s.payments.MarkReviewed(ctx, tx, p.ID, models.PaymentStatusRejected, adminActor, notePtr, now); err != nil {
			return err
		}
		p.Status, p.ReviewedBy, p.ReviewNote, p.ReviewedAt = models.PaymentStatusRejected, &adminActor, notePtr, &now
		out = p
		return nil
	})

	ev := audit.Event{Operation: "RejectPayment", Actor: adminActor}
	if out != nil {
		ev.UserID = out.UserID.String()
		ev.Amount = out.Amount
	}
	s.hooks.record(ev, err)
	if err != nil {
		return nil, err
	}
	s.hooks.notify(models.Notification{Kind: models.NotifyPaymentRejected, UserID: out.UserID, Amount: out.Amount})
	return out, nil
}

func (s *PaymentService) pendingRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PaymentRequest, error) {
	p, err := s.payments.GetByIDForUpdate(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrRequestNotPending, p.Status)
	}
	return p, nil
}

// ListPendingPayments returns PENDING requests oldest first.
func (s *PaymentService) ListPendingPayments(ctx context.Context) ([]*models.PaymentRequest, error) {
	return s.payments.ListPending(ctx)
}

// GetUserPayments returns a user's requests newest first.
func (s *PaymentService) GetUserPayments(ctx context.Context, userID uuid.UUID) ([]*models.PaymentRequest, error) {
	return s.payments.ListByUser(ctx, userID)
}
