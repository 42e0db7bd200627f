package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/audit"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/cache"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/config"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/database"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/execution"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/identity"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/ledger"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/repository"
	"github.com/aryansingh32/grand-battle-arena-backend-sub000/internal/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool, logger); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Optional Redis: idempotency keys, notifications and the audit channel.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable, continuing without replay protection", "error", err)
		}
	}

	// Audit
	sinks := []audit.Sink{audit.LogSink{Logger: logger}}
	if rdb != nil {
		sinks = append(sinks, audit.NewRedisSink(rdb, audit.RedisChannel))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kw := audit.NewKafkaWriter(cfg.KafkaBrokers, cfg.AuditTopic)
		defer kw.Close()
		sinks = append(sinks, audit.NewKafkaSink(kw))
	}
	emitter := audit.NewEmitter(logger, cfg.AuditBuffer, sinks...)

	hooks := services.Hooks{Audit: emitter, Logger: logger}
	if rdb != nil {
		hooks.Notifier = cache.NewNotifier(rdb, cache.NotificationsChannel)
	}

	var users services.UserDirectory = identity.AllowAll{}
	if cfg.IdentityURL != "" {
		users = identity.NewClient(cfg.IdentityURL, cfg.ServiceToken)
	} else {
		slog.Warn("IDENTITY_URL not set, user existence checks disabled")
	}

	// Engine
	tournamentRepo := repository.NewTournamentRepo(pool)
	slotRepo := repository.NewSlotRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))

	txRunner := services.NewTxRunner(pool, cfg.LockTimeout, cfg.TxMaxAttempts, logger)
	walletSvc := services.NewWalletService(txRunner, walletRepo, ledgerSvc, users, hooks)
	bookingSvc := services.NewBookingService(txRunner, tournamentRepo, slotRepo, walletRepo, walletSvc, hooks)
	paymentSvc := services.NewPaymentService(txRunner, paymentRepo, walletRepo, walletSvc, hooks)
	refunds := services.NewRefundProcessor(bookingSvc, tournamentRepo, slotRepo, cfg.RefundConcurrency, hooks)

	// Background jobs
	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewRefundTournamentWorker(refunds, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 4},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("Failed to start River client", "error", err)
		os.Exit(1)
	}

	reconciler, err := execution.NewReconciler(walletSvc, cfg.ReconcileInterval, logger)
	if err != nil {
		slog.Error("Failed to create reconciler", "error", err)
		os.Exit(1)
	}
	reconciler.Start()

	var idem *cache.Idempotency
	if rdb != nil {
		idem = cache.NewIdempotency(rdb, 24*time.Hour)
	}
	api := buildRouter(cfg, routerDeps{
		bookings:    bookingSvc,
		wallets:     walletSvc,
		payments:    paymentSvc,
		refunds:     execution.NewEnqueuer(riverClient),
		idempotency: idem,
	}, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: true,
	}).Handler(api)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	if err := reconciler.Shutdown(); err != nil {
		slog.Error("Reconciler shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown", "error", err)
	}
	if err := emitter.Close(shutdownCtx); err != nil {
		slog.Warn("Audit emitter did not drain", "error", err, "dropped", emitter.Dropped())
	}
}
