package models

import (
	"time"

	"github.com/google/uuid"
)

// Tournament status enums, owned by the tournament lifecycle service.
const (
	TournamentStatusUpcoming  = "UPCOMING"
	TournamentStatusOngoing   = "ONGOING"
	TournamentStatusCompleted = "COMPLETED"
	TournamentStatusCancelled = "CANCELLED"
)

// TeamSize is the number of players that share one team booking.
type TeamSize int

const (
	TeamSizeSolo  TeamSize = 1
	TeamSizeDuo   TeamSize = 2
	TeamSizeSquad TeamSize = 4
	TeamSizeHexa  TeamSize = 6
)

// Valid reports whether n is one of the supported team sizes. Unknown values
// are rejected rather than coerced to SOLO.
func (n TeamSize) Valid() bool {
	switch n {
	case TeamSizeSolo, TeamSizeDuo, TeamSizeSquad, TeamSizeHexa:
		return true
	}
	return false
}

// Tournament is the subset of tournament metadata the booking engine reads
// for validation.
type Tournament struct {
	ID         uuid.UUID `json:"id"`
	EntryFee   int64     `json:"entry_fee"`
	MaxPlayers int       `json:"max_players"`
	TeamSize   TeamSize  `json:"team_size"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
}

// Started reports whether the tournament start time is at or before now.
func (t *Tournament) Started(now time.Time) bool {
	return !t.StartTime.After(now)
}
