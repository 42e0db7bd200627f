package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/audit"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/models"
)

// Auditor receives one event per operation attempt. Implementations must not block.
type Auditor interface {
	Emit(e audit.Event)
}

// Notifier forwards committed facts to the notification service.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Hooks are the post-commit side channels shared by the engine services.
// Neither can affect the outcome of an operation.
type Hooks struct {
	Audit    Auditor
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h Hooks) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h Hooks) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// record emits the audit event for op. A non-nil err turns the event into a
// rejection or failure carrying its reason code.
func (h Hooks) record(ev audit.Event, err error) {
	ev.At = h.now()
	switch {
	case err == nil:
		ev.Outcome = audit.OutcomeSuccess
	case KindOf(err) == KindInternal || KindOf(err) == KindInvariant:
		ev.Outcome = audit.OutcomeFailed
		ev.Code = CodeOf(err)
		ev.Error = err.Error()
	default:
		ev.Outcome = audit.OutcomeRejected
		ev.Code = CodeOf(err)
		ev.Error = err.Error()
	}
	if KindOf(err) == KindInvariant {
		h.log().Error("ledger invariant violated", "operation", ev.Operation, "user_id", ev.UserID, "error", err)
	}
	if h.Audit != nil {
		h.Audit.Emit(ev)
	}
}

// notify delivers n off the request path. Failures are logged only.
func (h Hooks) notify(n models.Notification) {
	if h.Notifier == nil {
		return
	}
	n.At = h.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Notifier.Notify(ctx, n); err != nil {
			h.log().Warn("notification failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
		}
	}()
}
