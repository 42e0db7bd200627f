package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/services"
)

// Wallets is the subset of *services.WalletService the handler calls.
type Wallets interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetLedger(ctx context.Context, userID uuid.UUID) ([]*models.LedgerEntry, error)
	Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, actor string) (*services.TransferResult, error)
	AddCoins(ctx context.Context, userID uuid.UUID, amount int64, actor, reason string) (*models.LedgerEntry, error)
	DeductCoins(ctx context.Context, userID uuid.UUID, amount int64, actor, reason string) (*models.LedgerEntry, error)
	SetBalance(ctx context.Context, userID uuid.UUID, target int64, actor, reason string) (*models.Wallet, error)
	Reconcile(ctx context.Context, userID uuid.UUID) error
}

// Payments is the subset of *services.PaymentService the handler calls.
type Payments interface {
	RequestDeposit(ctx context.Context, userID uuid.UUID, amount int64, transactionRef string) (*models.PaymentRequest, error)
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, payoutDestination string) (*models.PaymentRequest, error)
	ApprovePayment(ctx context.Context, requestID uuid.UUID, adminActor string) (*services.PaymentResult, error)
	RejectPayment(ctx context.Context, requestID uuid.UUID, adminActor, note string) (*models.PaymentRequest, error)
	ListPendingPayments(ctx context.Context) ([]*models.PaymentRequest, error)
	GetUserPayments(ctx context.Context, userID uuid.UUID) ([]*models.PaymentRequest, error)
}

// WalletHandler serves wallet, ledger and payment request endpoints.
type WalletHandler struct {
	Wallets  Wallets
	Payments Payments
	Logger   *slog.Logger
}

// --- GET /v1/me/wallet ---

func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	wallet, err := h.Wallets.GetWallet(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Logger, "get wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// --- GET /v1/me/ledger ---

func (h *WalletHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	entries, err := h.Wallets.GetLedger(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Logger, "get ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// --- POST /v1/me/transfers ---

type transferRequest struct {
	ToUserID uuid.UUID `json:"to_user_id"`
	Amount   int64     `json:"amount"`
}

func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ToUserID == uuid.Nil {
		badRequest(w, "to_user_id is required")
		return
	}
	res, err := h.Wallets.Transfer(r.Context(), p.UserID, req.ToUserID, req.Amount, p.UserID.String())
	if err != nil {
		writeError(w, h.Logger, "transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /v1/me/deposits, /v1/me/withdrawals ---

type depositRequest struct {
	Amount         int64  `json:"amount"`
	TransactionRef string `json:"transaction_ref"`
}

func (h *WalletHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	pr, err := h.Payments.RequestDeposit(r.Context(), p.UserID, req.Amount, req.TransactionRef)
	if err != nil {
		writeError(w, h.Logger, "request deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

type withdrawalRequest struct {
	Amount            int64  `json:"amount"`
	PayoutDestination string `json:"payout_destination"`
}

func (h *WalletHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req withdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PayoutDestination == "" {
		badRequest(w, "payout_destination is required")
		return
	}
	pr, err := h.Payments.RequestWithdrawal(r.Context(), p.UserID, req.Amount, req.PayoutDestination)
	if err != nil {
		writeError(w, h.Logger, "request withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

// --- GET /v1/me/payments ---

func (h *WalletHandler) GetMyPayments(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.Payments.GetUserPayments(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Logger, "user payments", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// --- admin: /v1/admin/wallets/{userID}/... ---

type adjustRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *WalletHandler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, "add coins", h.Wallets.AddCoins)
}

func (h *WalletHandler) AdminDebit(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, "deduct coins", h.Wallets.DeductCoins)
}

func (h *WalletHandler) adjust(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, uuid.UUID, int64, string, string) (*models.LedgerEntry, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req adjustRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Reason == "" {
		badRequest(w, "reason is required")
		return
	}
	entry, err := fn(r.Context(), userID, req.Amount, p.UserID.String(), req.Reason)
	if err != nil {
		writeError(w, h.Logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type setBalanceRequest struct {
	Balance int64  `json:"balance"`
	Reason  string `json:"reason"`
}

func (h *WalletHandler) AdminSetBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req setBalanceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Reason == "" {
		badRequest(w, "reason is required")
		return
	}
	wallet, err := h.Wallets.SetBalance(r.Context(), userID, req.Balance, p.UserID.String(), req.Reason)
	if err != nil {
		writeError(w, h.Logger, "set balance", err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

type reconcileResponse struct {
	UserID     uuid.UUID `json:"user_id"`
	Consistent bool      `json:"consistent"`
	Error      string    `json:"error,omitempty"`
}

// AdminReconcile reports a ledger mismatch as data, not as a failed request.
func (h *WalletHandler) AdminReconcile(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	err := h.Wallets.Reconcile(r.Context(), userID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reconcileResponse{UserID: userID, Consistent: true})
	case services.KindOf(err) == services.KindInvariant:
		writeJSON(w, http.StatusOK, reconcileResponse{UserID: userID, Error: err.Error()})
	default:
		writeError(w, h.Logger, "reconcile", err)
	}
}

// --- admin: /v1/admin/payments/... ---

func (h *WalletHandler) ListPendingPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Payments.ListPendingPayments(r.Context())
	if err != nil {
		writeError(w, h.Logger, "pending payments", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *WalletHandler) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.Payments.ApprovePayment(r.Context(), id, p.UserID.String())
	if err != nil {
		writeError(w, h.Logger, "approve payment", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rejectRequest struct {
	Note string `json:"note"`
}

func (h *WalletHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	pr, err := h.Payments.RejectPayment(r.Context(), id, p.UserID.String(), req.Note)
	if err != nil {
		writeError(w, h.Logger, "reject payment", err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}
