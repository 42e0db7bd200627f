package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/middleware"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an engine rejection to its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, services.ErrInsufficientFunds) {
		return http.StatusPaymentRequired
	}
	switch services.KindOf(err) {
	case services.KindConflict:
		return http.StatusConflict
	case services.KindPrecondition:
		return http.StatusUnprocessableEntity
	case services.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError writes {"error","code"}. Internal details never reach the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Code: services.CodeOf(err)}
	if status == http.StatusInternalServerError {
		logger.Error(op, "error", err, "code", body.Code)
		if services.KindOf(err) != services.KindInvariant {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "BAD_REQUEST"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON")
		return false
	}
	return true
}

// pathID parses the named path wildcard as a UUID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func principal(w http.ResponseWriter, r *http.Request) (*middleware.Principal, bool) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "UNAUTHORIZED"})
		return nil, false
	}
	return p, true
}
