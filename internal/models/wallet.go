package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a user's coin balance. One wallet per user.
// Balance changes only together with a LedgerEntry in the same transaction.
type Wallet struct {
	ID          uuid.UUID `json:"id"`
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	Balance     int64     `json:"balance"`
	LastUpdated time.Time `json:"last_updated"`
}
