package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome of an audited operation.
const (
	OutcomeSuccess  = "SUCCESS"
	OutcomeRejected = "REJECTED"
	OutcomeFailed   = "FAILED"
)

// Event is one audit record. Zero-valued optional fields are omitted on the wire.
type Event struct {
	Operation    string    `json:"operation"`
	Outcome      string    `json:"outcome"`
	Code         string    `json:"code,omitempty"`
	Actor        string    `json:"actor"`
	UserID       string    `json:"user_id,omitempty"`
	TournamentID string    `json:"tournament_id,omitempty"`
	SlotNumbers  []int     `json:"slot_numbers,omitempty"`
	Amount       int64     `json:"amount,omitempty"`
	BalanceAfter *int64    `json:"balance_after,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Sink persists or forwards audit events.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// Emitter fans events out to its sinks on a background goroutine.
// Emit never blocks; when the buffer is full the event is dropped.
type Emitter struct {
	events chan Event
	sinks  []Sink
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64

	writeTimeout time.Duration
}

func NewEmitter(logger *slog.Logger, buffer int, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = 1
	}
	e := &Emitter{
		events:       make(chan Event, buffer),
		sinks:        sinks,
		logger:       logger,
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}
	go e.run()
	return e
}

// Emit queues ev for delivery.
func (e *Emitter) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
		n := e.dropped.Add(1)
		e.logger.Warn("audit buffer full, event dropped", "operation", ev.Operation, "dropped_total", n)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Close stops accepting events and waits for the buffer to drain or ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.events {
		for _, s := range e.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), e.writeTimeout)
			if err := s.Write(ctx, ev); err != nil {
				e.logger.Error("audit sink write failed", "sink", s.Name(), "operation", ev.Operation, "error", err)
			}
			cancel()
		}
	}
}
