package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/lead-router/internal/api/http"
	"github.com/spec-kit/lead-router/internal/api/http/handlers"
	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/erp"
	"github.com/spec-kit/lead-router/internal/events"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/persistence"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/service"
	"github.com/spec-kit/lead-router/internal/worker"
)

const erpTokenKey = "lead-router:erp:token"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	store := repository.NewPostgresStore(pg.PoolHandle())

	dispatcher := events.NewInMemoryDispatcher(logger)
	events.NewRedisPublisher(redis.Client, cfg.Redis.EventsChannel, logger).RegisterHandlers(dispatcher)

	erpClient := erp.NewClient(cfg.ERP, erp.NewRedisTokenCache(redis.Client, erpTokenKey), logger)

	dispatchService := service.NewDispatchService(service.DispatchDependencies{
		Store:       store,
		Client:      erpClient,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Backoff:     cfg.Dispatch.Backoff(),
		MaxBackoff:  time.Hour,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	queueAssignments := service.NewQueueAssignmentService(nil, logger)
	commitService := service.NewCommitService(service.CommitDependencies{
		Store:          store,
		Queues:         queueAssignments,
		Deliverer:      dispatchService,
		InlineDispatch: cfg.Dispatch.Inline,
		DispatchDelay:  cfg.Dispatch.LockTimeout(),
		Validator:      validator.New(validator.WithRequiredStructEnabled()),
		PhoneRegion:    cfg.Phone.DefaultRegion,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
	})
	leaseService := service.NewLeaseService(service.LeaseDependencies{
		Store:         store,
		LeaseDuration: cfg.Lease.Duration(),
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Logger:        logger,
	})
	orderQueries := service.NewOrderQueryService(store)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, store.Operators(), cfg.Auth.DefaultRole)

	app := httptransport.NewApp(cfg.App.Name, logger, metrics)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
			handlers.DependencyCheck{Name: "postgres", Pinger: pg},
			handlers.DependencyCheck{Name: "redis", Pinger: redis},
		),
		Orders:         handlers.NewOrdersHandler(commitService, orderQueries, dispatchService),
		Call:           handlers.NewCallHandler(leaseService, commitService, orderQueries),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics.Handler(),
	})

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down http server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if cfg.Dispatch.WorkerEnabled {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		taskClient := asynq.NewClient(redisOpt)
		defer taskClient.Close()

		relay := worker.NewDispatchRelay(store.Dispatches(), taskClient, worker.RelayConfig{
			Queue:       cfg.Dispatch.Queue,
			Interval:    cfg.Dispatch.PollInterval(),
			LockTimeout: cfg.Dispatch.LockTimeout(),
			BatchSize:   cfg.Dispatch.BatchSize,
		}, logger)
		dispatchWorker := worker.NewDispatchWorker(redisOpt, worker.WorkerConfig{
			Queue:       cfg.Dispatch.Queue,
			Concurrency: cfg.Dispatch.Concurrency,
		}, dispatchService, logger)

		group.Go(func() error { return relay.Run(ctx) })
		group.Go(func() error { return dispatchWorker.Run(ctx) })
	} else {
		logger.Info("dispatch worker disabled; outbox jobs are only delivered inline or on request")
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped with error", zap.Error(err))
		return
	}
	logger.Info("service stopped")
}
