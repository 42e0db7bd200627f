package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotifySlotBooked       = "SLOT_BOOKED"
	NotifyBookingCancelled = "BOOKING_CANCELLED"
	NotifyTournamentRefund = "TOURNAMENT_REFUND"
	NotifyWalletCredited   = "WALLET_CREDITED"
	NotifyWalletDebited    = "WALLET_DEBITED"
	NotifyPaymentCompleted = "PAYMENT_COMPLETED"
	NotifyPaymentRejected  = "PAYMENT_REJECTED"
)

// Notification is a committed fact handed to the external notification service.
type Notification struct {
	Kind         string     `json:"kind"`
	UserID       uuid.UUID  `json:"user_id"`
	TournamentID *uuid.UUID `json:"tournament_id,omitempty"`
	SlotNumbers  []int      `json:"slot_numbers,omitempty"`
	Amount       int64      `json:"amount"`
	Balance      int64      `json:"balance"`
	At           time.Time  `json:"at"`
}
