package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/audit"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// PlayerSlot assigns one team member to a slot number.
type PlayerSlot struct {
	PlayerName string `json:"player_name"`
	SlotNumber int    `json:"slot_number"`
}

// BookingResult carries what a caller needs to notify the user after a booking.
type BookingResult struct {
	TournamentID  uuid.UUID      `json:"tournament_id"`
	UserID        uuid.UUID      `json:"user_id"`
	Slots         []*models.Slot `json:"slots"`
	Amount        int64          `json:"amount"`
	Balance       int64          `json:"balance"`
	LedgerEntryID int64          `json:"ledger_entry_id"`
}

// SlotNumbers lists the booked slot numbers in ascending order.
func (r *BookingResult) SlotNumbers() []int {
	out := make([]int, len(r.Slots))
	for i, s := range r.Slots {
		out[i] = s.SlotNumber
	}
	return out
}

// CancellationResult describes one refunded slot.
type CancellationResult struct {
	TournamentID  uuid.UUID `json:"tournament_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	SlotNumber    int       `json:"slot_number"`
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	LedgerEntryID int64     `json:"ledger_entry_id"`
}

// BookingService reserves and releases tournament slots and moves the entry fee
// through the wallet ledger in the same transaction.
//
// Locks are always taken in this order: tournament row, slot rows by ascending
// slot number, wallet row.
type BookingService struct {
	tx          *TxRunner
	tournaments TournamentRepo
	slots       SlotRepo
	wallets     WalletRepo
	ledger      *WalletService
	hooks       Hooks
}

func NewBookingService(tx *TxRunner, tournaments TournamentRepo, slots SlotRepo, wallets WalletRepo, ledger *WalletService, hooks Hooks) *BookingService {
	return &BookingService{
		tx:          tx,
		tournaments: tournaments,
		slots:       slots,
		wallets:     wallets,
		ledger:      ledger,
		hooks:       hooks,
	}
}

type bookRequest struct {
	op           string
	refType      string
	tournamentID uuid.UUID
	userID       uuid.UUID
	players      []PlayerSlot
	team         bool
	next         bool // lock the lowest free slot instead of players[0].SlotNumber
}

// BookSlot books slotNumber in a solo tournament for userID.
func (s *BookingService) BookSlot(ctx context.Context, tournamentID, userID uuid.UUID, playerName string, slotNumber int) (*BookingResult, error) {
	return s.book(ctx, bookRequest{
		op:           "BookSlot",
		refType:      models.RefTournamentBook,
		tournamentID: tournamentID,
		userID:       userID,
		players:      []PlayerSlot{{PlayerName: playerName, SlotNumber: slotNumber}},
	})
}

// BookNextAvailable books the lowest-numbered free slot. Slots locked by a
// concurrent booker are skipped rather than waited on.
func (s *BookingService) BookNextAvailable(ctx context.Context, tournamentID, userID uuid.UUID, playerName string) (*BookingResult, error) {
	return s.book(ctx, bookRequest{
		op:           "BookNextAvailable",
		refType:      models.RefTournamentBook,
		tournamentID: tournamentID,
		userID:       userID,
		players:      []PlayerSlot{{PlayerName: playerName}},
		next:         true,
	})
}

// BookTeamSlots books one slot per player, all or nothing, with a single debit
// of entryFee times the team size.
func (s *BookingService) BookTeamSlots(ctx context.Context, tournamentID, userID uuid.UUID, players []PlayerSlot) (*BookingResult, error) {
	return s.book(ctx, bookRequest{
		op:           "BookTeamSlots",
		refType:      models.RefTeamTournamentBook,
		tournamentID: tournamentID,
		userID:       userID,
		players:      players,
		team:         true,
	})
}

func (s *BookingService) book(ctx context.Context, req bookRequest) (*BookingResult, error) {
	var res *BookingResult
	err := s.tx.Run(ctx, req.op, func(tx pgx.Tx) error {
		var err error
		res, err = s.bookTx(ctx, tx, req)
		return err
	})

	ev := audit.Event{
		Operation:    req.op,
		Actor:        req.userID.String(),
		UserID:       req.userID.String(),
		TournamentID: req.tournamentID.String(),
	}
	if !req.next {
		for _, p := range req.players {
			ev.SlotNumbers = append(ev.SlotNumbers, p.SlotNumber)
		}
	}
	if err != nil {
		s.hooks.record(ev, err)
		return nil, err
	}

	ev.SlotNumbers = res.SlotNumbers()
	ev.Amount = res.Amount
	ev.BalanceAfter = &res.Balance
	s.hooks.record(ev, nil)
	s.hooks.notify(models.Notification{
		Kind:         models.NotifySlotBooked,
		UserID:       req.userID,
		TournamentID: &res.TournamentID,
		SlotNumbers:  res.SlotNumbers(),
		Amount:       res.Amount,
		Balance:      res.Balance,
	})
	return res, nil
}

func (s *BookingService) bookTx(ctx context.Context, tx pgx.Tx, req bookRequest) (*BookingResult, error) {
	t, err := s.openTournament(ctx, tx, req.tournamentID)
	if err != nil {
		return nil, err
	}

	if !req.team && t.TeamSize != models.TeamSizeSolo {
		return nil, fmt.Errorf("%w: tournament needs a team of %d", ErrTeamSizeMismatch, t.TeamSize)
	}
	if req.team && len(req.players) != int(t.TeamSize) {
		return nil, fmt.Errorf("%w: got %d players, team size is %d", ErrTeamSizeMismatch, len(req.players), t.TeamSize)
	}

	players := make([]PlayerSlot, len(req.players))
	copy(players, req.players)
	sort.Slice(players, func(i, j int) bool { return players[i].SlotNumber < players[j].SlotNumber })
	if !req.next {
		if err := checkSlotNumbers(players, t.MaxPlayers); err != nil {
			return nil, err
		}
	}

	if err := s.ensureNotHolding(ctx, tx, t.ID, req.userID); err != nil {
		return nil, err
	}

	slots := make([]*models.Slot, 0, len(players))
	for _, p := range players {
		slot, err := s.lockSlot(ctx, tx, t.ID, p.SlotNumber, req.next)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}

	w, err := s.wallets.GetByUserIDForUpdate(ctx, tx, req.userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrWalletNotFound, req.userID)
	}
	if err != nil {
		return nil, err
	}
	// The wallet lock serializes this user's bookings, so a booking that
	// committed since the first check is visible now.
	if err := s.ensureNotHolding(ctx, tx, t.ID, req.userID); err != nil {
		return nil, err
	}

	cost := t.EntryFee * int64(len(slots))
	if w.Balance < cost {
		return nil, fmt.Errorf("%w: balance %d, entry costs %d", ErrInsufficientFunds, w.Balance, cost)
	}
	entry, err := s.ledger.ApplyLedgerMutation(ctx, tx, Mutation{
		WalletID:      w.ID,
		Direction:     models.DirectionDebit,
		Amount:        cost,
		ReferenceType: req.refType,
		ReferenceID:   t.ID.String(),
		Actor:         req.userID.String(),
	})
	if err != nil {
		return nil, err
	}

	now := s.hooks.now()
	for i, slot := range slots {
		slot.Book(req.userID, players[i].PlayerName, now)
		if err := s.slots.MarkBooked(ctx, tx, slot); err != nil {
			return nil, err
		}
	}
	return &BookingResult{
		TournamentID:  t.ID,
		UserID:        req.userID,
		Slots:         slots,
		Amount:        cost,
		Balance:       entry.BalanceAfter,
		LedgerEntryID: entry.ID,
	}, nil
}

// openTournament share-locks the tournament and checks it is accepting bookings.
func (s *BookingService) openTournament(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Tournament, error) {
	t, err := s.tournaments.GetForShare(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if !t.TeamSize.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTeamSize, t.TeamSize)
	}
	if t.Status != models.TournamentStatusUpcoming {
		return nil, fmt.Errorf("%w: status %s", ErrTournamentClosed, t.Status)
	}
	if t.Started(s.hooks.now()) {
		return nil, fmt.Errorf("%w: started at %s", ErrTournamentStarted, t.StartTime)
	}
	return t, nil
}

// checkSlotNumbers expects players sorted by slot number.
func checkSlotNumbers(players []PlayerSlot, maxPlayers int) error {
	for i, p := range players {
		if p.SlotNumber < 1 || p.SlotNumber > maxPlayers {
			return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidSlotNumber, p.SlotNumber, maxPlayers)
		}
		if i > 0 && players[i-1].SlotNumber == p.SlotNumber {
			return fmt.Errorf("%w: slot %d requested twice", ErrInvalidSlotNumber, p.SlotNumber)
		}
	}
	return nil
}

func (s *BookingService) ensureNotHolding(ctx context.Context, tx pgx.Tx, tournamentID, userID uuid.UUID) error {
	held, err := s.slots.UserHoldsSlot(ctx, tx, tournamentID, userID)
	if err != nil {
		return err
	}
	if held {
		return ErrAlreadyBooked
	}
	return nil
}

func (s *BookingService) lockSlot(ctx context.Context, tx pgx.Tx, tournamentID uuid.UUID, number int, next bool) (*models.Slot, error) {
	if next {
		slot, err := s.slots.NextAvailableForUpdate(ctx, tx, tournamentID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTournamentFull
		}
		return slot, err
	}
	slot, err := s.slots.GetByNumberForUpdate(ctx, tx, tournamentID, number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotNotFound, number)
	}
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SlotStatusAvailable {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotAlreadyBooked, number)
	}
	return slot, nil
}

// CancelBooking releases a slot held by userID and refunds one entry fee.
func (s *BookingService) CancelBooking(ctx context.Context, slotID, userID uuid.UUID) (*CancellationResult, error) {
	return s.cancel(ctx, "CancelBooking", slotID, userID.String(), &userID, true)
}

// AdminCancelBooking is CancelBooking without the ownership check.
func (s *BookingService) AdminCancelBooking(ctx context.Context, slotID uuid.UUID, adminActor string) (*CancellationResult, error) {
	return s.cancel(ctx, "AdminCancelBooking", slotID, adminActor, nil, true)
}

// refundSlot is the bulk-refund path: no ownership or start-time check.
func (s *BookingService) refundSlot(ctx context.Context, slotID uuid.UUID, actor string) (*CancellationResult, error) {
	return s.cancel(ctx, "RefundSlot", slotID, actor, nil, false)
}

func (s *BookingService) cancel(ctx context.Context, op string, slotID uuid.UUID, actor string, owner *uuid.UUID, beforeStart bool) (*CancellationResult, error) {
	var res *CancellationResult
	err := s.tx.Run(ctx, op, func(tx pgx.Tx) error {
		var err error
		res, err = s.cancelTx(ctx, tx, slotID, actor, owner, beforeStart)
		return err
	})

	ev := audit.Event{Operation: op, Actor: actor}
	if owner != nil {
		ev.UserID = owner.String()
	}
	if err != nil {
		s.hooks.record(ev, err)
		return nil, err
	}

	ev.UserID = res.UserID.String()
	ev.TournamentID = res.TournamentID.String()
	ev.SlotNumbers = []int{res.SlotNumber}
	ev.Amount = res.Amount
	ev.BalanceAfter = &res.Balance
	s.hooks.record(ev, nil)

	kind := models.NotifyBookingCancelled
	if !beforeStart {
		kind = models.NotifyTournamentRefund
	}
	s.hooks.notify(models.Notification{
		Kind:         kind,
		UserID:       res.UserID,
		TournamentID: &res.TournamentID,
		SlotNumbers:  []int{res.SlotNumber},
		Amount:       res.Amount,
		Balance:      res.Balance,
	})
	return res, nil
}

func (s *BookingService) cancelTx(ctx context.Context, tx pgx.Tx, slotID uuid.UUID, actor string, owner *uuid.UUID, beforeStart bool) (*CancellationResult, error) {
	// Unlocked read to learn the tournament; the tournament row is locked before the slot.
	peek, err := s.slots.GetByIDTx(ctx, tx, slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if err != nil {
		return nil, err
	}
	t, err := s.tournaments.GetForShare(ctx, tx, peek.TournamentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, peek.TournamentID)
	}
	if err != nil {
		return nil, err
	}
	if beforeStart {
		if t.Status == models.TournamentStatusOngoing || t.Status == models.TournamentStatusCompleted || t.Started(s.hooks.now()) {
			return nil, fmt.Errorf("%w: started at %s", ErrTournamentStarted, t.StartTime)
		}
	}

	// GenerateSlots may have replaced the row since the unlocked read.
	slot, err := s.slots.GetByIDForUpdate(ctx, tx, slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SlotStatusBooked || slot.HolderUserID == nil {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotNotBooked, slot.SlotNumber)
	}
	if owner != nil && !slot.HeldBy(*owner) {
		return nil, fmt.Errorf("%w: slot %d", ErrNotSlotOwner, slot.SlotNumber)
	}
	holder := *slot.HolderUserID

	w, err := s.wallets.GetByUserIDForUpdate(ctx, tx, holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrWalletNotFound, holder)
	}
	if err != nil {
		return nil, err
	}
	entry, err := s.ledger.ApplyLedgerMutation(ctx, tx, Mutation{
		WalletID:      w.ID,
		Direction:     models.DirectionCredit,
		Amount:        t.EntryFee,
		ReferenceType: models.RefTournamentRefund,
		ReferenceID:   t.ID.String(),
		Actor:         actor,
	})
	if err != nil {
		return nil, err
	}
	if err := s.slots.Release(ctx, tx, slot.ID); err != nil {
		return nil, err
	}
	return &CancellationResult{
		TournamentID:  t.ID,
		SlotID:        slot.ID,
		SlotNumber:    slot.SlotNumber,
		UserID:        holder,
		Amount:        t.EntryFee,
		Balance:       entry.BalanceAfter,
		LedgerEntryID: entry.ID,
	}, nil
}

// GenerateSlots replaces the tournament's slots with maxPlayers AVAILABLE
// slots numbered 1..maxPlayers. maxPlayers must equal the tournament's own
// MaxPlayers, and it refuses while any slot is booked.
func (s *BookingService) GenerateSlots(ctx context.Context, tournamentID uuid.UUID, maxPlayers int, actor string) ([]*models.Slot, error) {
	var slots []*models.Slot
	err := s.generate(ctx, tournamentID, maxPlayers, &slots)
	s.hooks.record(audit.Event{
		Operation:    "GenerateSlots",
		Actor:        actor,
		TournamentID: tournamentID.String(),
		Amount:       int64(len(slots)),
	}, err)
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *BookingService) generate(ctx context.Context, tournamentID uuid.UUID, maxPlayers int, out *[]*models.Slot) error {
	if maxPlayers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidSlotCount, maxPlayers)
	}
	return s.tx.Run(ctx, "GenerateSlots", func(tx pgx.Tx) error {
		t, err := s.tournaments.GetForUpdate(ctx, tx, tournamentID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrTournamentNotFound, tournamentID)
		}
		if err != nil {
			return err
		}
		if maxPlayers != t.MaxPlayers {
			return fmt.Errorf("%w: got %d, tournament seats %d", ErrInvalidSlotCount, maxPlayers, t.MaxPlayers)
		}
		total, booked, err := s.slots.CountTx(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if booked > 0 {
			return fmt.Errorf("%w: %d of %d slots booked", ErrSlotsHaveBookings, booked, total)
		}
		if total > 0 {
			if err := s.slots.DeleteByTournament(ctx, tx, t.ID); err != nil {
				return err
			}
		}
		slots := make([]*models.Slot, maxPlayers)
		for i := range slots {
			slots[i] = &models.Slot{
				ID:           uuid.New(),
				TournamentID: t.ID,
				SlotNumber:   i + 1,
				Status:       models.SlotStatusAvailable,
			}
		}
		if err := s.slots.InsertBatch(ctx, tx, slots); err != nil {
			return err
		}
		*out = slots
		return nil
	})
}

// GetSlotSummary counts slots for a tournament.
func (s *BookingService) GetSlotSummary(ctx context.Context, tournamentID uuid.UUID) (*models.SlotSummary, error) {
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	total, booked, err := s.slots.Count(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return &models.SlotSummary{
		TournamentID: tournamentID,
		Total:        total,
		Booked:       booked,
		Available:    total - booked,
		FillRate:     fillRate(booked, total),
	}, nil
}

// fillRate is booked/total as a percentage with two decimals.
func fillRate(booked, total int) string {
	if total == 0 {
		return decimal.Zero.StringFixed(2)
	}
	return decimal.NewFromInt(int64(booked)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2).
		StringFixed(2)
}

// GetTournamentSlots lists every slot ordered by slot number.
func (s *BookingService) GetTournamentSlots(ctx context.Context, tournamentID uuid.UUID) ([]*models.Slot, error) {
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.slots.ListByTournament(ctx, tournamentID)
}

// GetUserBookedSlots lists the slots userID currently holds across tournaments.
func (s *BookingService) GetUserBookedSlots(ctx context.Context, userID uuid.UUID) ([]*models.Slot, error) {
	return s.slots.ListBookedByUser(ctx, userID)
}

func (s *BookingService) tournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	t, err := s.tournaments.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTournamentNotFound, id)
	}
	return t, err
}
