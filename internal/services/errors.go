package services

import (
	"errors"
	"fmt"
)

// Kind classifies a rejection so callers can tell "try something else" from
// "something is broken".
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindPrecondition
	KindNotFound
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant"
	}
	return "internal"
}

// Error is a rejection with a stable reason code. The exported Err* values are
// sentinels; wrap them with fmt.Errorf("%w: ...") to add detail.
type Error struct {
	Code string
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

// Conflicts: expected under contention.
var (
	ErrSlotAlreadyBooked       = newError(KindConflict, "SLOT_ALREADY_BOOKED", "slot already booked")
	ErrAlreadyBooked           = newError(KindConflict, "ALREADY_BOOKED_IN_TOURNAMENT", "user already holds a slot in this tournament")
	ErrDuplicateTransactionRef = newError(KindConflict, "DUPLICATE_TRANSACTION_REF", "transaction reference already used")
	ErrTournamentFull          = newError(KindConflict, "TOURNAMENT_FULL", "no available slots")
	ErrSlotsHaveBookings       = newError(KindConflict, "SLOTS_HAVE_BOOKINGS", "tournament has booked slots")
	ErrTransientConflict       = newError(KindConflict, "TRANSIENT_CONFLICT", "concurrent update, retry the request")
)

// Precondition failures.
var (
	ErrTournamentClosed  = newError(KindPrecondition, "TOURNAMENT_CLOSED", "tournament is not open for booking")
	ErrTournamentStarted = newError(KindPrecondition, "TOURNAMENT_STARTED", "tournament has already started")
	ErrInsufficientFunds = newError(KindPrecondition, "INSUFFICIENT_BALANCE", "insufficient balance")
	ErrTeamSizeMismatch  = newError(KindPrecondition, "TEAM_SIZE_MISMATCH", "player count does not match team size")
	ErrInvalidTeamSize   = newError(KindPrecondition, "INVALID_TEAM_SIZE", "tournament has an unsupported team size")
	ErrInvalidAmount     = newError(KindPrecondition, "INVALID_AMOUNT", "amount must be positive")
	ErrInvalidSlotNumber = newError(KindPrecondition, "INVALID_SLOT_NUMBER", "slot number out of range")
	ErrInvalidSlotCount  = newError(KindPrecondition, "INVALID_SLOT_COUNT", "slot count must equal the tournament's max players")
	ErrNotSlotOwner      = newError(KindPrecondition, "NOT_SLOT_OWNER", "slot is not held by the requesting user")
	ErrSlotNotBooked     = newError(KindPrecondition, "SLOT_NOT_BOOKED", "slot is not booked")
	ErrSelfTransfer      = newError(KindPrecondition, "SELF_TRANSFER", "cannot transfer to the same wallet")
	ErrRequestNotPending = newError(KindPrecondition, "REQUEST_NOT_PENDING", "payment request is not pending")
	ErrMissingReference  = newError(KindPrecondition, "MISSING_TRANSACTION_REF", "transaction reference is required")
	ErrNotCancelled      = newError(KindPrecondition, "TOURNAMENT_NOT_CANCELLED", "tournament is not cancelled")
)

// Not found.
var (
	ErrTournamentNotFound = newError(KindNotFound, "TOURNAMENT_NOT_FOUND", "tournament not found")
	ErrSlotNotFound       = newError(KindNotFound, "SLOT_NOT_FOUND", "slot not found")
	ErrWalletNotFound     = newError(KindNotFound, "WALLET_NOT_FOUND", "wallet not found")
	ErrUserNotFound       = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrPaymentNotFound    = newError(KindNotFound, "PAYMENT_REQUEST_NOT_FOUND", "payment request not found")
)

// ErrLedgerInvariant means the wallet balance and its ledger disagree. It
// indicates a bypass of the ledger-writing path and must never be swallowed.
var ErrLedgerInvariant = newError(KindInvariant, "LEDGER_INVARIANT_VIOLATION", "ledger invariant violated")

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrLedgerInvariant}, args...)...)
}

// CodeOf returns the reason code carried by err, or "INTERNAL_ERROR".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsConflict reports whether err is an expected concurrency rejection.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
