package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/services"
)

// LedgerChecker replays every wallet's ledger against its balance.
type LedgerChecker interface {
	ReconcileAll(ctx context.Context) (*services.ReconcileReport, error)
}

// Reconciler periodically sweeps all wallets and logs ledger mismatches.
type Reconciler struct {
	checker LedgerChecker
	logger  *slog.Logger
	sched   gocron.Scheduler
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewReconciler(checker LedgerChecker, interval time.Duration, logger *slog.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{checker: checker, logger: logger, sched: sched, ctx: ctx, cancel: cancel}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { r.Sweep(r.ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("ledger-reconcile"),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return r, nil
}

func (r *Reconciler) Start() { r.sched.Start() }

// Shutdown cancels a running sweep and stops the scheduler.
func (r *Reconciler) Shutdown() error {
	r.cancel()
	return r.sched.Shutdown()
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	start := time.Now()
	report, err := r.checker.ReconcileAll(ctx)
	if err != nil {
		r.logger.Error("Ledger reconciliation aborted", "error", err)
		return
	}
	if len(report.Mismatched) > 0 {
		r.logger.Error("Ledger mismatches found", "checked", report.Checked, "wallets", report.Mismatched)
		return
	}
	r.logger.Info("Ledger reconciliation clean", "checked", report.Checked, "took", time.Since(start))
}
