package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/audit"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/ledger"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// ---------------------------------------------------------------------------
// memStore is an in-memory database for the engine. It emulates what the
// services rely on from PostgreSQL: exclusive row locks held until commit or
// rollback, lock_timeout, SKIP LOCKED, rollback of every write, and the
// unique/check constraints. Reads are not isolated.
// ---------------------------------------------------------------------------

type memStore struct {
	mu          sync.Mutex
	tournaments map[uuid.UUID]*models.Tournament
	slots       map[uuid.UUID]*models.Slot
	wallets     map[uuid.UUID]*models.Wallet
	entries     []*models.LedgerEntry
	payments    map[uuid.UUID]*models.PaymentRequest
	nextEntryID int64
	rowLocks    map[string]chan struct{}

	lockWait       time.Duration
	commitFailures int // the next N commits fail with a serialization error
	begins         int
}

func newMemStore() *memStore {
	return &memStore{
		tournaments: make(map[uuid.UUID]*models.Tournament),
		slots:       make(map[uuid.UUID]*models.Slot),
		wallets:     make(map[uuid.UUID]*models.Wallet),
		payments:    make(map[uuid.UUID]*models.PaymentRequest),
		rowLocks:    make(map[string]chan struct{}),
		lockWait:    2 * time.Second,
	}
}

func (m *memStore) Begin(context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	m.begins++
	m.mu.Unlock()
	return &memTx{store: m, held: make(map[string]chan struct{})}, nil
}

func (m *memStore) lock(ctx context.Context, tx pgx.Tx, key string) error {
	t := tx.(*memTx)
	if _, ok := t.held[key]; ok {
		return nil
	}
	l := m.rowLock(key)
	timer := time.NewTimer(m.lockWait)
	defer timer.Stop()
	select {
	case l <- struct{}{}:
		t.held[key] = l
		return nil
	case <-timer.C:
		return &pgconn.PgError{Code: pgLockNotAvailable, Message: "canceling statement due to lock timeout"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memStore) tryLock(tx pgx.Tx, key string) bool {
	t := tx.(*memTx)
	if _, ok := t.held[key]; ok {
		return true
	}
	l := m.rowLock(key)
	select {
	case l <- struct{}{}:
		t.held[key] = l
		return true
	default:
		return false
	}
}

func (m *memStore) rowLock(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rowLocks[key]
	if !ok {
		l = make(chan struct{}, 1)
		m.rowLocks[key] = l
	}
	return l
}

// --- memTx satisfies pgx.Tx; writes register an undo step. ---

type memTx struct {
	store *memStore
	held  map[string]chan struct{}
	undo  []func()
	done  bool
}

// onRollback must be called with store.mu held.
func (t *memTx) onRollback(fn func()) { t.undo = append(t.undo, fn) }

func (t *memTx) finish(rollback bool) {
	if rollback {
		t.store.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.store.mu.Unlock()
	}
	for key, l := range t.held {
		<-l
		delete(t.held, key)
	}
	t.undo = nil
	t.done = true
}

func (t *memTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }

func (t *memTx) Commit(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	s := t.store
	s.mu.Lock()
	fail := s.commitFailures > 0
	if fail {
		s.commitFailures--
	}
	s.mu.Unlock()
	if fail {
		t.finish(true)
		return &pgconn.PgError{Code: pgSerializationFailure, Message: "could not serialize access"}
	}
	t.finish(false)
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish(true)
	return nil
}

func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SET"), nil
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

func copySlot(s *models.Slot) *models.Slot {
	cp := *s
	return &cp
}

// --- TournamentRepo ---

type memTournaments struct{ *memStore }

func (m memTournaments) get(id uuid.UUID) (*models.Tournament, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tournaments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m memTournaments) GetByID(_ context.Context, id uuid.UUID) (*models.Tournament, error) {
	return m.get(id)
}

// Shared locks are not modelled; GenerateSlots is the only exclusive locker.
func (m memTournaments) GetForShare(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Tournament, error) {
	return m.get(id)
}

func (m memTournaments) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Tournament, error) {
	if err := m.lock(ctx, tx, "tournament:"+id.String()); err != nil {
		return nil, err
	}
	return m.get(id)
}

// --- SlotRepo ---

type memSlots struct{ *memStore }

func (m memSlots) GetByIDTx(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copySlot(s), nil
}

func (m memSlots) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Slot, error) {
	if err := m.lock(ctx, tx, "slot:"+id.String()); err != nil {
		return nil, err
	}
	return m.GetByIDTx(ctx, tx, id)
}

func (m memSlots) findByNumber(tournamentID uuid.UUID, number int) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.TournamentID == tournamentID && s.SlotNumber == number {
			return s.ID, true
		}
	}
	return uuid.Nil, false
}

func (m memSlots) GetByNumberForUpdate(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID, number int) (*models.Slot, error) {
	id, ok := m.findByNumber(tournamentID, number)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m.GetByIDForUpdate(ctx, tx, id)
}

func (m memSlots) NextAvailableForUpdate(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID) (*models.Slot, error) {
	candidates, _ := m.ListByTournament(ctx, tournamentID)
	for _, s := range candidates {
		if s.Status != models.SlotStatusAvailable || !m.tryLock(tx, "slot:"+s.ID.String()) {
			continue
		}
		locked, err := m.GetByIDTx(ctx, tx, s.ID)
		if err != nil {
			return nil, err
		}
		if locked.Status == models.SlotStatusAvailable {
			return locked, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m memSlots) UserHoldsSlot(_ context.Context, _ pgx.Tx, tournamentID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.TournamentID == tournamentID && s.HeldBy(userID) {
			return true, nil
		}
	}
	return false, nil
}

func (m memSlots) replace(tx pgx.Tx, next *models.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.slots[next.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if (next.Status == models.SlotStatusBooked) != (next.HolderUserID != nil && next.BookedAt != nil) {
		return &pgconn.PgError{Code: pgCheckViolation, Message: "slots_holder_consistency"}
	}
	m.slots[next.ID] = copySlot(next)
	tx.(*memTx).onRollback(func() { m.slots[prev.ID] = prev })
	return nil
}

func (m memSlots) MarkBooked(_ context.Context, tx pgx.Tx, s *models.Slot) error {
	return m.replace(tx, s)
}

func (m memSlots) Release(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	s, err := m.GetByIDTx(ctx, tx, id)
	if err != nil {
		return err
	}
	s.Release()
	return m.replace(tx, s)
}

func (m memSlots) count(tournamentID uuid.UUID) (total, booked int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.TournamentID != tournamentID {
			continue
		}
		total++
		if s.Status == models.SlotStatusBooked {
			booked++
		}
	}
	return total, booked
}

func (m memSlots) CountTx(_ context.Context, _ pgx.Tx, tournamentID uuid.UUID) (int, int, error) {
	total, booked := m.count(tournamentID)
	return total, booked, nil
}

func (m memSlots) Count(_ context.Context, tournamentID uuid.UUID) (int, int, error) {
	total, booked := m.count(tournamentID)
	return total, booked, nil
}

func (m memSlots) DeleteByTournament(_ context.Context, tx pgx.Tx, tournamentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.slots {
		if s.TournamentID == tournamentID {
			delete(m.slots, id)
			tx.(*memTx).onRollback(func() { m.slots[id] = s })
		}
	}
	return nil
}

func (m memSlots) InsertBatch(_ context.Context, tx pgx.Tx, slots []*models.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		for _, existing := range m.slots {
			if existing.TournamentID == s.TournamentID && existing.SlotNumber == s.SlotNumber {
				return &pgconn.PgError{Code: pgUniqueViolation, Message: "slots_tournament_id_slot_number_key"}
			}
		}
		m.slots[s.ID] = copySlot(s)
		id := s.ID
		tx.(*memTx).onRollback(func() { delete(m.slots, id) })
	}
	return nil
}

func (m memSlots) filter(keep func(*models.Slot) bool) []*models.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Slot
	for _, s := range m.slots {
		if keep(s) {
			out = append(out, copySlot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotNumber < out[j].SlotNumber })
	return out
}

func (m memSlots) ListByTournament(_ context.Context, tournamentID uuid.UUID) ([]*models.Slot, error) {
	return m.filter(func(s *models.Slot) bool { return s.TournamentID == tournamentID }), nil
}

func (m memSlots) ListBooked(_ context.Context, tournamentID uuid.UUID) ([]*models.Slot, error) {
	return m.filter(func(s *models.Slot) bool {
		return s.TournamentID == tournamentID && s.Status == models.SlotStatusBooked
	}), nil
}

func (m memSlots) ListBookedByUser(_ context.Context, userID uuid.UUID) ([]*models.Slot, error) {
	return m.filter(func(s *models.Slot) bool { return s.HeldBy(userID) }), nil
}

// --- WalletRepo ---

type memWallets struct{ *memStore }

func (m memWallets) byUser(userID uuid.UUID) (*models.Wallet, bool) {
	for _, w := range m.wallets {
		if w.OwnerUserID == userID {
			return w, true
		}
	}
	return nil, false
}

func (m memWallets) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byUser(userID)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *w
	return &cp, nil
}

func (m memWallets) GetByUserIDTx(ctx context.Context, _ pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	return m.GetByUserID(ctx, userID)
}

func (m memWallets) create(userID uuid.UUID) (*models.Wallet, bool) {
	if w, ok := m.byUser(userID); ok {
		return w, false
	}
	w := &models.Wallet{ID: uuid.New(), OwnerUserID: userID, LastUpdated: time.Now()}
	m.wallets[w.ID] = w
	return w, true
}

func (m memWallets) GetOrCreate(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, _ := m.create(userID)
	cp := *w
	return &cp, nil
}

func (m memWallets) EnsureTx(_ context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, created := m.create(userID)
	if created {
		id := w.ID
		tx.(*memTx).onRollback(func() { delete(m.wallets, id) })
	}
	cp := *w
	return &cp, nil
}

func (m memWallets) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	if err := m.lock(ctx, tx, "wallet:"+id.String()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *w
	return &cp, nil
}

func (m memWallets) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	w, err := m.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.GetByIDForUpdate(ctx, tx, w.ID)
}

func (m memWallets) UpdateBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if balance < 0 {
		return &pgconn.PgError{Code: pgCheckViolation, Message: "wallets_balance_check"}
	}
	prev := *w
	w.Balance = balance
	w.LastUpdated = time.Now()
	tx.(*memTx).onRollback(func() { *w = prev })
	return nil
}

func (m memWallets) ListIDs(context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.wallets))
	for id := range m.wallets {
		ids = append(ids, id)
	}
	return ids, nil
}

// --- LedgerRepo ---

type memLedger struct{ *memStore }

func (m memLedger) AppendTx(_ context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEntryID++
	e.ID = m.nextEntryID
	e.CreatedAt = time.Now()
	cp := *e
	m.entries = append(m.entries, &cp)
	tx.(*memTx).onRollback(func() {
		for i, x := range m.entries {
			if x.ID == cp.ID {
				m.entries = append(m.entries[:i], m.entries[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (m memLedger) LastBalanceAfter(_ context.Context, _ pgx.Tx, walletID uuid.UUID) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].WalletID == walletID {
			return m.entries[i].BalanceAfter, true, nil
		}
	}
	return 0, false, nil
}

func (m memLedger) ListByWallet(_ context.Context, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.WalletID == walletID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m memLedger) ListByWalletTx(ctx context.Context, _ pgx.Tx, walletID uuid.UUID) ([]*models.LedgerEntry, error) {
	return m.ListByWallet(ctx, walletID)
}

// --- PaymentRepo ---

type memPayments struct{ *memStore }

func (m memPayments) CreateTx(_ context.Context, tx pgx.Tx, p *models.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.TransactionRef != nil {
		for _, x := range m.payments {
			if x.TransactionRef != nil && *x.TransactionRef == *p.TransactionRef {
				return &pgconn.PgError{Code: pgUniqueViolation, Message: "payment_requests_transaction_ref_key"}
			}
		}
	}
	cp := *p
	m.payments[p.ID] = &cp
	tx.(*memTx).onRollback(func() { delete(m.payments, cp.ID) })
	return nil
}

func (m memPayments) RefExistsTx(_ context.Context, _ pgx.Tx, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.payments {
		if x.TransactionRef != nil && *x.TransactionRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m memPayments) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.PaymentRequest, error) {
	if err := m.lock(ctx, tx, "payment:"+id.String()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m memPayments) MarkReviewed(_ context.Context, tx pgx.Tx, id uuid.UUID, status, reviewer string, note *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	prev := *p
	p.Status, p.ReviewedBy, p.ReviewNote, p.ReviewedAt = status, &reviewer, note, &at
	tx.(*memTx).onRollback(func() { *p = prev })
	return nil
}

func (m memPayments) list(keep func(*models.PaymentRequest) bool) []*models.PaymentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentRequest
	for _, p := range m.payments {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m memPayments) ListPending(context.Context) ([]*models.PaymentRequest, error) {
	return m.list(func(p *models.PaymentRequest) bool { return p.Status == models.PaymentStatusPending }), nil
}

func (m memPayments) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.PaymentRequest, error) {
	out := m.list(func(p *models.PaymentRequest) bool { return p.UserID == userID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// --- UserDirectory and Auditor ---

type memUsers struct {
	mu      sync.Mutex
	missing map[uuid.UUID]bool
}

func (u *memUsers) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.missing[id], nil
}

type memAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *memAudit) Emit(e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *memAudit) last() audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events[len(a.events)-1]
}

// ---------------------------------------------------------------------------
// harness wires the real services to one memStore.
// ---------------------------------------------------------------------------

type harness struct {
	store    *memStore
	users    *memUsers
	audit    *memAudit
	now      time.Time
	wallet   *WalletService
	booking  *BookingService
	payments *PaymentService
	refunds  *RefundProcessor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newMemStore(),
		users: &memUsers{missing: make(map[uuid.UUID]bool)},
		audit: &memAudit{},
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	hooks := Hooks{Audit: h.audit, Now: func() time.Time { return h.now }}
	runner := NewTxRunner(h.store, 3*time.Second, 3, nil)
	runner.backoff = time.Millisecond

	wallets := memWallets{h.store}
	h.wallet = NewWalletService(runner, wallets, ledger.NewService(memLedger{h.store}), h.users, hooks)
	h.booking = NewBookingService(runner, memTournaments{h.store}, memSlots{h.store}, wallets, h.wallet, hooks)
	h.payments = NewPaymentService(runner, memPayments{h.store}, wallets, h.wallet, hooks)
	h.refunds = NewRefundProcessor(h.booking, memTournaments{h.store}, memSlots{h.store}, 4, hooks)
	return h
}

// tournament inserts an UPCOMING tournament starting tomorrow, with slots.
func (h *harness) tournament(t *testing.T, fee int64, maxPlayers int, size models.TeamSize) uuid.UUID {
	t.Helper()
	id := uuid.New()
	h.store.mu.Lock()
	h.store.tournaments[id] = &models.Tournament{
		ID:         id,
		EntryFee:   fee,
		MaxPlayers: maxPlayers,
		TeamSize:   size,
		Status:     models.TournamentStatusUpcoming,
		StartTime:  h.now.Add(24 * time.Hour),
	}
	h.store.mu.Unlock()
	_, err := h.booking.GenerateSlots(context.Background(), id, maxPlayers, "admin")
	require.NoError(t, err)
	return id
}

func (h *harness) setTournament(id uuid.UUID, fn func(t *models.Tournament)) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	fn(h.store.tournaments[id])
}

// user returns a new user whose wallet holds balance (0 creates an empty wallet).
func (h *harness) user(t *testing.T, balance int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := h.wallet.GetWallet(context.Background(), id)
	require.NoError(t, err)
	if balance > 0 {
		_, err := h.wallet.AddCoins(context.Background(), id, balance, "admin", "seed")
		require.NoError(t, err)
	}
	return id
}

func (h *harness) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	w, err := memWallets{h.store}.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func (h *harness) entries(t *testing.T, userID uuid.UUID) []*models.LedgerEntry {
	t.Helper()
	list, err := h.wallet.GetLedger(context.Background(), userID)
	require.NoError(t, err)
	return list
}

func (h *harness) slot(t *testing.T, tournamentID uuid.UUID, number int) *models.Slot {
	t.Helper()
	id, ok := memSlots{h.store}.findByNumber(tournamentID, number)
	require.True(t, ok, "slot %d missing", number)
	s, err := memSlots{h.store}.GetByIDTx(context.Background(), nil, id)
	require.NoError(t, err)
	return s
}

func (h *harness) ledgerSize() int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return len(h.store.entries)
}

// requireConsistent replays every wallet's ledger against its balance.
func (h *harness) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := h.wallet.ReconcileAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Mismatched)

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	for _, w := range h.store.wallets {
		require.GreaterOrEqual(t, w.Balance, int64(0))
	}
	for _, l := range h.store.rowLocks {
		require.Len(t, l, 0, "row lock leaked")
	}
}
