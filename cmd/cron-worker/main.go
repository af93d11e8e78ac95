package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/laundrytrack-backend/api/controllers"
	"github.com/angelmondragon/laundrytrack-backend/api/routes"
	"github.com/angelmondragon/laundrytrack-backend/internal/cron"
	"github.com/angelmondragon/laundrytrack-backend/internal/ledger"
	"github.com/angelmondragon/laundrytrack-backend/internal/notifications"
	"github.com/angelmondragon/laundrytrack-backend/internal/operations"
	"github.com/angelmondragon/laundrytrack-backend/internal/orders"
	"github.com/angelmondragon/laundrytrack-backend/internal/timeline"
	"github.com/angelmondragon/laundrytrack-backend/internal/tracking"
	"github.com/angelmondragon/laundrytrack-backend/internal/wallet"
	"github.com/angelmondragon/laundrytrack-backend/pkg/config"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/instance"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/metrics"
	"github.com/angelmondragon/laundrytrack-backend/pkg/migrate"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox"
	"github.com/angelmondragon/laundrytrack-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/laundrytrack-backend/pkg/redis"
)

const (
	serviceKind     = "cron-worker"
	shutdownTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	holder := instance.ID(serviceKind + "-0")
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    holder,
	})

	if err := run(ctx, cfg, logg, holder); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, holder string) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	facade, ledgerRepo, err := buildFacade(cfg, logg, dbClient, redisClient, metrics.NewOperationMetrics(reg))
	if err != nil {
		logg.Error(ctx, "failed to build tracking facade", err)
		return err
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.OutboxRetention,
		BatchSize:  cfg.Cron.OutboxDeleteBatch,
	})
	if err != nil {
		return err
	}
	reconcile, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:     logg,
		Payments:   ledgerRepo,
		Reconciler: facade,
		Lookback:   cfg.Cron.ReconcileLookback,
		BatchSize:  cfg.Cron.ReconcileBatch,
	})
	if err != nil {
		return err
	}
	jobs, err := cron.NewRegistry(retention, reconcile)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+lockScope(cfg.App.Env)), holder, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Schedule: cfg.Cron.Schedule,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		return err
	}

	opsRouter := routes.NewOpsRouter(cfg, logg, map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}, reg)
	opsServer := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Ops.Port),
		Handler:           opsRouter,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(logg.WithField(groupCtx, "addr", opsServer.Addr), "ops server listening")
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logg.Info(logg.WithFields(groupCtx, map[string]any{
			"schedule": cfg.Cron.Schedule,
			"interval": cfg.Cron.Interval.String(),
		}), "starting cron worker")
		return service.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return opsServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// buildFacade assembles the tracking facade the reconcile sweep repairs
// orders through. Status notifications go out via the outbox.
func buildFacade(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	opMetrics *metrics.OperationMetrics,
) (tracking.Service, ledger.Repository, error) {
	ordersRepo := orders.NewRepository(dbClient.DB())
	coordinator, err := orders.NewService(ordersRepo, dbClient, orders.Config{
		AutoAdvanceOnPaid: cfg.Ledger.AutoAdvanceOnPaid,
	}, logg, opMetrics)
	if err != nil {
		return nil, nil, err
	}
	wallets, err := wallet.NewService(wallet.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, nil, err
	}
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	ledgerSvc, err := ledger.NewService(ledgerRepo, ordersRepo, coordinator, wallets, dbClient, ledger.Config{
		Currency:    cfg.Ledger.Currency,
		AmountScale: cfg.Ledger.AmountScale,
	}, logg, opMetrics)
	if err != nil {
		return nil, nil, err
	}
	opsRepo := operations.NewRepository(dbClient.DB())
	timelineSvc, err := timeline.NewService(ordersRepo, opsRepo, logg, opMetrics)
	if err != nil {
		return nil, nil, err
	}
	notifier, err := notifications.NewOutboxNotifier(dbClient, outbox.NewService(outbox.NewRepository(dbClient.DB()), logg), logg)
	if err != nil {
		return nil, nil, err
	}
	settlements, err := idempotency.NewManager(redisClient, cfg.Tracking.SettlementDedupeTTL)
	if err != nil {
		return nil, nil, err
	}

	facade, err := tracking.NewService(tracking.ServiceParams{
		Config: tracking.Config{
			MaxConflictRetries:  cfg.Tracking.MaxConflictRetries,
			ConflictBackoffBase: cfg.Tracking.ConflictBackoffBase,
			ConflictBackoffCap:  cfg.Tracking.ConflictBackoffCap,
		},
		Coordinator: coordinator,
		Orders:      ordersRepo,
		Ledger:      ledgerSvc,
		Timeline:    timelineSvc,
		Operations:  opsRepo,
		Tx:          dbClient,
		Notifier:    notifier,
		Settlements: settlements,
		Logger:      logg,
		Metrics:     opMetrics,
	})
	if err != nil {
		return nil, nil, err
	}
	return facade, ledgerRepo, nil
}

func lockScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
