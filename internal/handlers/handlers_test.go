package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/middleware"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockBookings struct{ mock.Mock }

func (m *mockBookings) BookSlot(ctx context.Context, tid, uid uuid.UUID, name string, n int) (*services.BookingResult, error) {
	a := m.Called(tid, uid, name, n)
	r, _ := a.Get(0).(*services.BookingResult)
	return r, a.Error(1)
}
func (m *mockBookings) BookNextAvailable(ctx context.Context, tid, uid uuid.UUID, name string) (*services.BookingResult, error) {
	a := m.Called(tid, uid, name)
	r, _ := a.Get(0).(*services.BookingResult)
	return r, a.Error(1)
}
func (m *mockBookings) BookTeamSlots(ctx context.Context, tid, uid uuid.UUID, players []services.PlayerSlot) (*services.BookingResult, error) {
	a := m.Called(tid, uid, players)
	r, _ := a.Get(0).(*services.BookingResult)
	return r, a.Error(1)
}
func (m *mockBookings) CancelBooking(ctx context.Context, slotID, uid uuid.UUID) (*services.CancellationResult, error) {
	a := m.Called(slotID, uid)
	r, _ := a.Get(0).(*services.CancellationResult)
	return r, a.Error(1)
}
func (m *mockBookings) AdminCancelBooking(ctx context.Context, slotID uuid.UUID, actor string) (*services.CancellationResult, error) {
	a := m.Called(slotID, actor)
	r, _ := a.Get(0).(*services.CancellationResult)
	return r, a.Error(1)
}
func (m *mockBookings) GenerateSlots(ctx context.Context, tid uuid.UUID, max int, actor string) ([]*models.Slot, error) {
	a := m.Called(tid, max, actor)
	r, _ := a.Get(0).([]*models.Slot)
	return r, a.Error(1)
}
func (m *mockBookings) GetSlotSummary(ctx context.Context, tid uuid.UUID) (*models.SlotSummary, error) {
	a := m.Called(tid)
	r, _ := a.Get(0).(*models.SlotSummary)
	return r, a.Error(1)
}
func (m *mockBookings) GetTournamentSlots(ctx context.Context, tid uuid.UUID) ([]*models.Slot, error) {
	a := m.Called(tid)
	r, _ := a.Get(0).([]*models.Slot)
	return r, a.Error(1)
}
func (m *mockBookings) GetUserBookedSlots(ctx context.Context, uid uuid.UUID) ([]*models.Slot, error) {
	a := m.Called(uid)
	r, _ := a.Get(0).([]*models.Slot)
	return r, a.Error(1)
}

type mockWallets struct{ mock.Mock }

func (m *mockWallets) GetWallet(ctx context.Context, uid uuid.UUID) (*models.Wallet, error) {
	a := m.Called(uid)
	r, _ := a.Get(0).(*models.Wallet)
	return r, a.Error(1)
}
func (m *mockWallets) GetLedger(ctx context.Context, uid uuid.UUID) ([]*models.LedgerEntry, error) {
	a := m.Called(uid)
	r, _ := a.Get(0).([]*models.LedgerEntry)
	return r, a.Error(1)
}
func (m *mockWallets) Transfer(ctx context.Context, from, to uuid.UUID, amount int64, actor string) (*services.TransferResult, error) {
	a := m.Called(from, to, amount, actor)
	r, _ := a.Get(0).(*services.TransferResult)
	return r, a.Error(1)
}
func (m *mockWallets) AddCoins(ctx context.Context, uid uuid.UUID, amount int64, actor, reason string) (*models.LedgerEntry, error) {
	a := m.Called(uid, amount, actor, reason)
	r, _ := a.Get(0).(*models.LedgerEntry)
	return r, a.Error(1)
}
func (m *mockWallets) DeductCoins(ctx context.Context, uid uuid.UUID, amount int64, actor, reason string) (*models.LedgerEntry, error) {
	a := m.Called(uid, amount, actor, reason)
	r, _ := a.Get(0).(*models.LedgerEntry)
	return r, a.Error(1)
}
func (m *mockWallets) SetBalance(ctx context.Context, uid uuid.UUID, target int64, actor, reason string) (*models.Wallet, error) {
	a := m.Called(uid, target, actor, reason)
	r, _ := a.Get(0).(*models.Wallet)
	return r, a.Error(1)
}
func (m *mockWallets) Reconcile(ctx context.Context, uid uuid.UUID) error {
	return m.Called(uid).Error(0)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) RequestDeposit(ctx context.Context, uid uuid.UUID, amount int64, ref string) (*models.PaymentRequest, error) {
	a := m.Called(uid, amount, ref)
	r, _ := a.Get(0).(*models.PaymentRequest)
	return r, a.Error(1)
}
func (m *mockPayments) RequestWithdrawal(ctx context.Context, uid uuid.UUID, amount int64, dest string) (*models.PaymentRequest, error) {
	a := m.Called(uid, amount, dest)
	r, _ := a.Get(0).(*models.PaymentRequest)
	return r, a.Error(1)
}
func (m *mockPayments) ApprovePayment(ctx context.Context, id uuid.UUID, actor string) (*services.PaymentResult, error) {
	a := m.Called(id, actor)
	r, _ := a.Get(0).(*services.PaymentResult)
	return r, a.Error(1)
}
func (m *mockPayments) RejectPayment(ctx context.Context, id uuid.UUID, actor, note string) (*models.PaymentRequest, error) {
	a := m.Called(id, actor, note)
	r, _ := a.Get(0).(*models.PaymentRequest)
	return r, a.Error(1)
}
func (m *mockPayments) ListPendingPayments(ctx context.Context) ([]*models.PaymentRequest, error) {
	a := m.Called()
	r, _ := a.Get(0).([]*models.PaymentRequest)
	return r, a.Error(1)
}
func (m *mockPayments) GetUserPayments(ctx context.Context, uid uuid.UUID) ([]*models.PaymentRequest, error) {
	a := m.Called(uid)
	r, _ := a.Get(0).([]*models.PaymentRequest)
	return r, a.Error(1)
}

type mockEnqueuer struct{ mock.Mock }

func (m *mockEnqueuer) EnqueueRefund(ctx context.Context, tid uuid.UUID, actor string) error {
	return m.Called(tid, actor).Error(0)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var testLogger = slog.New(slog.DiscardHandler)

type call struct {
	method string
	body   string
	as     *middleware.Principal
	path   map[string]string
}

func do(h http.HandlerFunc, c call) *httptest.ResponseRecorder {
	req := httptest.NewRequest(c.method, "/", strings.NewReader(c.body))
	for k, v := range c.path {
		req.SetPathValue(k, v)
	}
	if c.as != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), c.as))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.ErrSlotAlreadyBooked, http.StatusConflict},
		{services.ErrTransientConflict, http.StatusConflict},
		{fmt.Errorf("%w: need 50", services.ErrInsufficientFunds), http.StatusPaymentRequired},
		{services.ErrTournamentClosed, http.StatusUnprocessableEntity},
		{services.ErrTeamSizeMismatch, http.StatusUnprocessableEntity},
		{services.ErrSlotNotFound, http.StatusNotFound},
		{services.ErrLedgerInvariant, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestBookSlot(t *testing.T) {
	user := &middleware.Principal{UserID: uuid.New()}
	tid := uuid.New()
	path := map[string]string{"id": tid.String()}

	t.Run("created", func(t *testing.T) {
		b := &mockBookings{}
		b.On("BookSlot", tid, user.UserID, "ace", 7).
			Return(&services.BookingResult{TournamentID: tid, UserID: user.UserID, Amount: 50, Balance: 150}, nil)
		h := &BookingHandler{Bookings: b, Logger: testLogger}

		rec := do(h.BookSlot, call{method: http.MethodPost, body: `{"player_name":"ace","slot_number":7}`, as: user, path: path})
		assert.Equal(t, http.StatusCreated, rec.Code)
		var res services.BookingResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, int64(150), res.Balance)
		b.AssertExpectations(t)
	})

	rejections := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: slot 7", services.ErrSlotAlreadyBooked), http.StatusConflict, "SLOT_ALREADY_BOOKED"},
		{services.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"},
		{services.ErrTournamentStarted, http.StatusUnprocessableEntity, "TOURNAMENT_STARTED"},
		{services.ErrTournamentNotFound, http.StatusNotFound, "TOURNAMENT_NOT_FOUND"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range rejections {
		t.Run(tc.code, func(t *testing.T) {
			b := &mockBookings{}
			b.On("BookSlot", tid, user.UserID, "ace", 7).Return(nil, tc.err)
			h := &BookingHandler{Bookings: b, Logger: testLogger}

			rec := do(h.BookSlot, call{method: http.MethodPost, body: `{"player_name":"ace","slot_number":7}`, as: user, path: path})
			assert.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.code, body.Code)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body.Error)
			}
		})
	}

	t.Run("bad input never reaches the engine", func(t *testing.T) {
		b := &mockBookings{}
		h := &BookingHandler{Bookings: b, Logger: testLogger}
		for _, c := range []call{
			{method: http.MethodPost, body: `{`, as: user, path: path},
			{method: http.MethodPost, body: `{"player_name":"ace","slot_number":7,"extra":1}`, as: user, path: path},
			{method: http.MethodPost, body: `{"slot_number":7}`, as: user, path: path},
			{method: http.MethodPost, body: `{"player_name":"ace","slot_number":7}`, as: user, path: map[string]string{"id": "nope"}},
		} {
			assert.Equal(t, http.StatusBadRequest, do(h.BookSlot, c).Code)
		}
		assert.Equal(t, http.StatusUnauthorized, do(h.BookSlot, call{method: http.MethodPost, body: `{}`, path: path}).Code)
		b.AssertNotCalled(t, "BookSlot", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBookTeamSlots(t *testing.T) {
	user := &middleware.Principal{UserID: uuid.New()}
	tid := uuid.New()
	players := []services.PlayerSlot{{PlayerName: "a", SlotNumber: 3}, {PlayerName: "b", SlotNumber: 4}}

	b := &mockBookings{}
	b.On("BookTeamSlots", tid, user.UserID, players).Return(&services.BookingResult{TournamentID: tid}, nil)
	h := &BookingHandler{Bookings: b, Logger: testLogger}

	body := `{"players":[{"player_name":"a","slot_number":3},{"player_name":"b","slot_number":4}]}`
	rec := do(h.BookTeamSlots, call{method: http.MethodPost, body: body, as: user, path: map[string]string{"id": tid.String()}})
	assert.Equal(t, http.StatusCreated, rec.Code)
	b.AssertExpectations(t)

	rec = do(h.BookTeamSlots, call{method: http.MethodPost, body: `{"players":[]}`, as: user, path: map[string]string{"id": tid.String()}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelBooking_ActorIsCaller(t *testing.T) {
	admin := &middleware.Principal{UserID: uuid.New(), Role: middleware.RoleAdmin}
	player := &middleware.Principal{UserID: uuid.New()}
	slotID := uuid.New()
	path := map[string]string{"id": slotID.String()}

	b := &mockBookings{}
	b.On("CancelBooking", slotID, player.UserID).Return(nil, services.ErrNotSlotOwner)
	b.On("AdminCancelBooking", slotID, admin.UserID.String()).Return(&services.CancellationResult{SlotID: slotID, Amount: 50}, nil)
	h := &BookingHandler{Bookings: b, Logger: testLogger}

	rec := do(h.CancelBooking, call{method: http.MethodDelete, as: player, path: path})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "NOT_SLOT_OWNER", decodeError(t, rec).Code)

	rec = do(h.AdminCancelBooking, call{method: http.MethodDelete, as: admin, path: path})
	assert.Equal(t, http.StatusOK, rec.Code)
	b.AssertExpectations(t)
}

func TestSlotQueries_EmptyListsAreArrays(t *testing.T) {
	user := &middleware.Principal{UserID: uuid.New()}
	tid := uuid.New()
	b := &mockBookings{}
	b.On("GetTournamentSlots", tid).Return(nil, nil)
	b.On("GetUserBookedSlots", user.UserID).Return(nil, nil)
	b.On("GetSlotSummary", tid).Return(&models.SlotSummary{TournamentID: tid, Total: 10, Booked: 3, Available: 7, FillRate: "30.00"}, nil)
	h := &BookingHandler{Bookings: b, Logger: testLogger}

	rec := do(h.GetTournamentSlots, call{method: http.MethodGet, path: map[string]string{"id": tid.String()}})
	assert.JSONEq(t, `[]`, rec.Body.String())
	rec = do(h.GetMySlots, call{method: http.MethodGet, as: user})
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(h.GetSlotSummary, call{method: http.MethodGet, path: map[string]string{"id": tid.String()}})
	assert.Contains(t, rec.Body.String(), `"fill_rate":"30.00"`)
}

func TestTransfer_FromCaller(t *testing.T) {
	user := &middleware.Principal{UserID: uuid.New()}
	to := uuid.New()
	w := &mockWallets{}
	w.On("Transfer", user.UserID, to, int64(25), user.UserID.String()).
		Return(&services.TransferResult{FromUserID: user.UserID, ToUserID: to, Amount: 25, FromBalance: 75, ToBalance: 25}, nil)
	h := &WalletHandler{Wallets: w, Logger: testLogger}

	rec := do(h.Transfer, call{method: http.MethodPost, body: fmt.Sprintf(`{"to_user_id":%q,"amount":25}`, to), as: user})
	assert.Equal(t, http.StatusOK, rec.Code)
	w.AssertExpectations(t)

	rec = do(h.Transfer, call{method: http.MethodPost, body: `{"amount":25}`, as: user})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAdjustments(t *testing.T) {
	admin := &middleware.Principal{UserID: uuid.New(), Role: middleware.RoleAdmin}
	target := uuid.New()
	path := map[string]string{"userID": target.String()}
	w := &mockWallets{}
	w.On("AddCoins", target, int64(100), admin.UserID.String(), "promo").Return(&models.LedgerEntry{ID: 1, Amount: 100, BalanceAfter: 100}, nil)
	w.On("DeductCoins", target, int64(500), admin.UserID.String(), "chargeback").Return(nil, services.ErrInsufficientFunds)
	w.On("SetBalance", target, int64(40), admin.UserID.String(), "fix").Return(&models.Wallet{OwnerUserID: target, Balance: 40}, nil)
	h := &WalletHandler{Wallets: w, Logger: testLogger}

	rec := do(h.AdminCredit, call{method: http.MethodPost, body: `{"amount":100,"reason":"promo"}`, as: admin, path: path})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h.AdminDebit, call{method: http.MethodPost, body: `{"amount":500,"reason":"chargeback"}`, as: admin, path: path})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = do(h.AdminSetBalance, call{method: http.MethodPost, body: `{"balance":40,"reason":"fix"}`, as: admin, path: path})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h.AdminCredit, call{method: http.MethodPost, body: `{"amount":100}`, as: admin, path: path})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is mandatory")
	w.AssertExpectations(t)
}

func TestAdminReconcile(t *testing.T) {
	clean, broken, missing := uuid.New(), uuid.New(), uuid.New()
	w := &mockWallets{}
	w.On("Reconcile", clean).Return(nil)
	w.On("Reconcile", broken).Return(fmt.Errorf("%w: wallet off by 5", services.ErrLedgerInvariant))
	w.On("Reconcile", missing).Return(services.ErrWalletNotFound)
	h := &WalletHandler{Wallets: w, Logger: testLogger}

	rec := do(h.AdminReconcile, call{method: http.MethodGet, path: map[string]string{"userID": clean.String()}})
	assert.JSONEq(t, fmt.Sprintf(`{"user_id":%q,"consistent":true}`, clean), rec.Body.String())

	rec = do(h.AdminReconcile, call{method: http.MethodGet, path: map[string]string{"userID": broken.String()}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consistent":false`)
	assert.Contains(t, rec.Body.String(), "off by 5")

	rec = do(h.AdminReconcile, call{method: http.MethodGet, path: map[string]string{"userID": missing.String()}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayments(t *testing.T) {
	user := &middleware.Principal{UserID: uuid.New()}
	admin := &middleware.Principal{UserID: uuid.New(), Role: middleware.RoleAdmin}
	reqID := uuid.New()
	p := &mockPayments{}
	p.On("RequestDeposit", user.UserID, int64(200), "UPI-1").
		Return(&models.PaymentRequest{ID: reqID, Kind: models.PaymentKindDeposit, Status: models.PaymentStatusPending}, nil)
	p.On("RequestDeposit", user.UserID, int64(200), "UPI-1b").Return(nil, services.ErrDuplicateTransactionRef)
	p.On("ApprovePayment", reqID, admin.UserID.String()).Return(&services.PaymentResult{Balance: 200}, nil)
	p.On("RejectPayment", reqID, admin.UserID.String(), "blurry receipt").Return(nil, services.ErrRequestNotPending)
	h := &WalletHandler{Payments: p, Logger: testLogger}

	rec := do(h.RequestDeposit, call{method: http.MethodPost, body: `{"amount":200,"transaction_ref":"UPI-1"}`, as: user})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h.RequestDeposit, call{method: http.MethodPost, body: `{"amount":200,"transaction_ref":"UPI-1b"}`, as: user})
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := map[string]string{"id": reqID.String()}
	rec = do(h.ApprovePayment, call{method: http.MethodPost, as: admin, path: path})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h.RejectPayment, call{method: http.MethodPost, body: `{"note":"blurry receipt"}`, as: admin, path: path})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "REQUEST_NOT_PENDING", decodeError(t, rec).Code)

	rec = do(h.RequestWithdrawal, call{method: http.MethodPost, body: `{"amount":50}`, as: user})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p.AssertExpectations(t)
}

func TestTournamentCancelled(t *testing.T) {
	tid := uuid.New()
	e := &mockEnqueuer{}
	e.On("EnqueueRefund", tid, "tournament-lifecycle").Return(nil).Once()
	e.On("EnqueueRefund", tid, "ops").Return(errors.New("queue down")).Once()
	h := &EventsHandler{Refunds: e, Logger: testLogger}

	rec := do(h.TournamentCancelled, call{method: http.MethodPost, body: fmt.Sprintf(`{"tournament_id":%q}`, tid)})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(h.TournamentCancelled, call{method: http.MethodPost, body: fmt.Sprintf(`{"tournament_id":%q,"actor":"ops"}`, tid)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(h.TournamentCancelled, call{method: http.MethodPost, body: `{}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e.AssertExpectations(t)
}
