package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment request kind and status enums.
const (
	PaymentKindDeposit    = "DEPOSIT"
	PaymentKindWithdrawal = "WITHDRAWAL"

	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusRejected  = "REJECTED"
)

// PaymentRequest is a user-initiated deposit or withdrawal waiting for admin review.
type PaymentRequest struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	Kind              string     `json:"kind"`
	Amount            int64      `json:"amount"`
	TransactionRef    *string    `json:"transaction_ref,omitempty"`
	PayoutDestination *string    `json:"payout_destination,omitempty"`
	Status            string     `json:"status"`
	ReviewedBy        *string    `json:"reviewed_by,omitempty"`
	ReviewNote        *string    `json:"review_note,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ReviewedAt        *time.Time `json:"reviewed_at,omitempty"`
}
