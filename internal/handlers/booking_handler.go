package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/services"
)

// Bookings is the subset of *services.BookingService the handler calls.
type Bookings interface {
	BookSlot(ctx context.Context, tournamentID, userID uuid.UUID, playerName string, slotNumber int) (*services.BookingResult, error)
	BookNextAvailable(ctx context.Context, tournamentID, userID uuid.UUID, playerName string) (*services.BookingResult, error)
	BookTeamSlots(ctx context.Context, tournamentID, userID uuid.UUID, players []services.PlayerSlot) (*services.BookingResult, error)
	CancelBooking(ctx context.Context, slotID, userID uuid.UUID) (*services.CancellationResult, error)
	AdminCancelBooking(ctx context.Context, slotID uuid.UUID, adminActor string) (*services.CancellationResult, error)
	GenerateSlots(ctx context.Context, tournamentID uuid.UUID, maxPlayers int, actor string) ([]*models.Slot, error)
	GetSlotSummary(ctx context.Context, tournamentID uuid.UUID) (*models.SlotSummary, error)
	GetTournamentSlots(ctx context.Context, tournamentID uuid.UUID) ([]*models.Slot, error)
	GetUserBookedSlots(ctx context.Context, userID uuid.UUID) ([]*models.Slot, error)
}

// BookingHandler serves slot and booking endpoints.
type BookingHandler struct {
	Bookings Bookings
	Logger   *slog.Logger
}

// --- POST /v1/tournaments/{id}/bookings ---

type bookSlotRequest struct {
	PlayerName string `json:"player_name"`
	SlotNumber int    `json:"slot_number"`
}

func (h *BookingHandler) BookSlot(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	tid, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bookSlotRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PlayerName == "" {
		badRequest(w, "player_name is required")
		return
	}
	res, err := h.Bookings.BookSlot(r.Context(), tid, p.UserID, req.PlayerName, req.SlotNumber)
	if err != nil {
		writeError(w, h.Logger, "book slot", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- POST /v1/tournaments/{id}/bookings/next ---

type bookNextRequest struct {
	PlayerName string `json:"player_name"`
}

func (h *BookingHandler) BookNextAvailable(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	tid, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bookNextRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PlayerName == "" {
		badRequest(w, "player_name is required")
		return
	}
	res, err := h.Bookings.BookNextAvailable(r.Context(), tid, p.UserID, req.PlayerName)
	if err != nil {
		writeError(w, h.Logger, "book next available", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- POST /v1/tournaments/{id}/bookings/team ---

type bookTeamRequest struct {
	Players []services.PlayerSlot `json:"players"`
}

func (h *BookingHandler) BookTeamSlots(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	tid, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bookTeamRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Players) == 0 {
		badRequest(w, "players is required")
		return
	}
	for _, pl := range req.Players {
		if pl.PlayerName == "" {
			badRequest(w, "every player needs a player_name")
			return
		}
	}
	res, err := h.Bookings.BookTeamSlots(r.Context(), tid, p.UserID, req.Players)
	if err != nil {
		writeError(w, h.Logger, "book team slots", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// --- DELETE /v1/slots/{id}/booking ---

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	slotID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.Bookings.CancelBooking(r.Context(), slotID, p.UserID)
	if err != nil {
		writeError(w, h.Logger, "cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- DELETE /v1/admin/slots/{id}/booking ---

func (h *BookingHandler) AdminCancelBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	slotID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.Bookings.AdminCancelBooking(r.Context(), slotID, p.UserID.String())
	if err != nil {
		writeError(w, h.Logger, "admin cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- POST /v1/tournaments/{id}/slots/generate ---

type generateSlotsRequest struct {
	MaxPlayers int `json:"max_players"`
}

func (h *BookingHandler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	tid, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req generateSlotsRequest
	if !decode(w, r, &req) {
		return
	}
	slots, err := h.Bookings.GenerateSlots(r.Context(), tid, req.MaxPlayers, p.UserID.String())
	if err != nil {
		writeError(w, h.Logger, "generate slots", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tournament_id": tid, "count": len(slots)})
}

// --- GET /v1/tournaments/{id}/slots/summary ---

func (h *BookingHandler) GetSlotSummary(w http.ResponseWriter, r *http.Request) {
	tid, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.Bookings.GetSlotSummary(r.Context(), tid)
	if err != nil {
		writeError(w, h.Logger, "slot summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- GET /v1/tournaments/{id}/slots ---

func (h *BookingHandler) GetTournamentSlots(w http.ResponseWriter, r *http.Request) {
	tid, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	slots, err := h.Bookings.GetTournamentSlots(r.Context(), tid)
	if err != nil {
		writeError(w, h.Logger, "tournament slots", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(slots))
}

// --- GET /v1/me/slots ---

func (h *BookingHandler) GetMySlots(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	slots, err := h.Bookings.GetUserBookedSlots(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.Logger, "user slots", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(slots))
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
