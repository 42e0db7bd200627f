package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger direction enums.
const (
	DirectionCredit = "CREDIT"
	DirectionDebit  = "DEBIT"
)

// Ledger reference_type enums.
const (
	RefTournamentBook     = "TOURNAMENT_BOOK"
	RefTeamTournamentBook = "TEAM_TOURNAMENT_BOOK"
	RefTournamentRefund   = "TOURNAMENT_REFUND"
	RefAdminAdjustment    = "ADMIN_ADJUSTMENT"
	RefTransfer           = "TRANSFER"
	RefDeposit            = "DEPOSIT"
	RefWithdrawal         = "WITHDRAWAL"
)

// LedgerEntry is one append-only balance event for a wallet.
type LedgerEntry struct {
	ID            int64     `json:"id"`
	WalletID      uuid.UUID `json:"wallet_id"`
	Direction     string    `json:"direction"`
	Amount        int64     `json:"amount"`
	BalanceAfter  int64     `json:"balance_after"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   string    `json:"reference_id"`
	Actor         string    `json:"actor"`
	CreatedAt     time.Time `json:"created_at"`
}

// Signed returns the balance delta this entry represents.
func (e *LedgerEntry) Signed() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}
