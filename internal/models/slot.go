package models

import (
	"time"

	"github.com/google/uuid"
)

// Slot status enums.
const (
	SlotStatusAvailable = "AVAILABLE"
	SlotStatusBooked    = "BOOKED"
)

// Slot is one numbered seat in a tournament.
// Status is BOOKED exactly when HolderUserID and BookedAt are set.
type Slot struct {
	ID           uuid.UUID  `json:"id"`
	TournamentID uuid.UUID  `json:"tournament_id"`
	SlotNumber   int        `json:"slot_number"`
	Status       string     `json:"status"`
	HolderUserID *uuid.UUID `json:"holder_user_id,omitempty"`
	PlayerName   *string    `json:"player_name,omitempty"`
	BookedAt     *time.Time `json:"booked_at,omitempty"`
}

// Book marks the slot as held by userID.
func (s *Slot) Book(userID uuid.UUID, playerName string, at time.Time) {
	s.Status = SlotStatusBooked
	s.HolderUserID = &userID
	s.PlayerName = &playerName
	s.BookedAt = &at
}

// Release returns the slot to AVAILABLE and clears the holder fields.
func (s *Slot) Release() {
	s.Status = SlotStatusAvailable
	s.HolderUserID = nil
	s.PlayerName = nil
	s.BookedAt = nil
}

// HeldBy reports whether the slot is booked by userID.
func (s *Slot) HeldBy(userID uuid.UUID) bool {
	return s.Status == SlotStatusBooked && s.HolderUserID != nil && *s.HolderUserID == userID
}

// SlotSummary is the fill state of a tournament.
type SlotSummary struct {
	TournamentID uuid.UUID `json:"tournament_id"`
	Total        int       `json:"total"`
	Booked       int       `json:"booked"`
	Available    int       `json:"available"`
	FillRate     string    `json:"fill_rate"` // percentage, two decimals
}
