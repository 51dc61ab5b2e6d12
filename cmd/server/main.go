package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/database"
	"github.com/arcanalabs/arcana-server/internal/health"
	"github.com/arcanalabs/arcana-server/internal/httpapi"
	"github.com/arcanalabs/arcana-server/internal/idempotency"
	"github.com/arcanalabs/arcana-server/internal/jobs"
	jobhandlers "github.com/arcanalabs/arcana-server/internal/jobs/handlers"
	"github.com/arcanalabs/arcana-server/internal/ledger"
	"github.com/arcanalabs/arcana-server/internal/lifecycle"
	appmiddleware "github.com/arcanalabs/arcana-server/internal/middleware"
	"github.com/arcanalabs/arcana-server/internal/oracle"
	"github.com/arcanalabs/arcana-server/internal/profilecache"
	"github.com/arcanalabs/arcana-server/internal/purchase"
	"github.com/arcanalabs/arcana-server/internal/ratelimit"
	"github.com/arcanalabs/arcana-server/internal/repository"
	"github.com/arcanalabs/arcana-server/internal/reward"
	"github.com/arcanalabs/arcana-server/internal/unlock"
	"github.com/arcanalabs/arcana-server/pkg/config"
	"github.com/arcanalabs/arcana-server/pkg/graceful"
	"github.com/arcanalabs/arcana-server/pkg/logger"
	"github.com/arcanalabs/arcana-server/pkg/metrics"
	appredis "github.com/arcanalabs/arcana-server/pkg/redis"

	_ "github.com/lib/pq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, viperInstance, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting arcana server",
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logger.Level),
	)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			log.Error("sentry init failed", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("error closing database", slog.Any("error", cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping database", slog.Any("error", err))
		os.Exit(1)
	}

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		log.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			log.Error("error closing redis", slog.Any("error", cerr))
		}
	}()

	watcher := config.NewWatcher(viperInstance, cfg, log)

	// Storage and services.
	repo := repository.NewProfileRepository(db, log)
	cache := profilecache.NewCache(appredis.NewMetricsClient(redisClient), cfg.Ledger.CacheTTL)
	ledgerSvc := ledger.NewService(repo, cache, cfg.Ledger, log)

	idemStore := idempotency.NewRedisStore(redisClient.Client, log)
	idemManager := idempotency.NewManager(idemStore, log)

	rules := ratelimit.NewRules(cfg.RateLimit)
	watcher.Subscribe(func(c *config.Config) { rules.Reload(c.RateLimit) })
	limiter := ratelimit.NewAdaptiveLimiter(
		ratelimit.NewRedisLimiter(redisClient.Client, log),
		ratelimit.NewMemoryLimiter(log),
		log,
	)

	flowStorage := reward.NewRedisStorage(redisClient.Client, log)
	machine := reward.NewMachine(flowStorage, log, redisClient.Client)
	rewardSvc := reward.NewService(machine, ledgerSvc, idemManager, limiter, rules, cfg.Ledger, log)

	catalog := purchase.NewCatalog(cfg.Products)
	catalog.Watch(watcher)
	purchaseSvc := purchase.NewService(repo, catalog, cache, log)

	gate := unlock.NewGate(ledgerSvc, redisClient.Client, cfg.Ledger, cfg.Unlock, log)
	previewer := unlock.NewPreviewer(cfg.Unlock)

	generator := oracle.NewHTTPGenerator(cfg.Oracle, log)
	horoscopes := oracle.NewHoroscopes(generator, redisClient.Client, log)

	verifier := auth.NewVerifier(cfg.Auth)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))
	checker.AddCheck("oracle", health.NewGeneratorChecker(generator))

	_, handler := httpapi.NewServer(httpapi.Deps{
		Ledger:      ledgerSvc,
		Rewards:     rewardSvc,
		Purchases:   purchaseSvc,
		Gate:        gate,
		Previewer:   previewer,
		Generator:   generator,
		Horoscopes:  horoscopes,
		Health:      checker,
		ErrHandler:  errHandler,
		Auth:        appmiddleware.NewAuthMiddleware(verifier, log),
		RateLimit:   appmiddleware.NewRateLimitMiddleware(limiter, rules, log),
		Idempotency: idemManager,
		Log:         log,
	})

	shutdown := lifecycle.NewShutdown(log)

	// Background maintenance loops.
	bgCtx, cancelBg := context.WithCancel(context.Background())
	idemCleaner := idempotency.NewCleaner(redisClient.Client, log, cfg.Jobs.CleanupInterval)
	go idemCleaner.Run(bgCtx)
	go ratelimit.NewCleaner(redisClient.Client, log, cfg.Jobs.CleanupInterval).Run(bgCtx)
	go reward.NewCleaner(machine, log, cfg.Jobs.CleanupInterval).Run(bgCtx)
	go metrics.NewStateCollector(machine).Run(bgCtx)
	shutdown.Register("background-loops", func(context.Context) error {
		cancelBg()
		return nil
	})

	if cfg.Jobs.Enabled {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}

		worker := jobs.NewWorker(redisOpt, map[string]int{
			jobs.QueueCritical: 6,
			jobs.QueueDefault:  3,
			jobs.QueueLow:      1,
		}, cfg.Jobs.Concurrency, log)
		worker.RegisterHandler(jobs.TaskTypeHoroscopePrecompute, jobhandlers.NewHoroscopeHandler(horoscopes, log))
		worker.RegisterHandler(jobs.TaskTypeCleanupRecords, jobhandlers.NewCleanupHandler(idemCleaner, log))

		go func() {
			if err := worker.Run(); err != nil {
				log.Error("jobs worker stopped", slog.Any("error", err))
			}
		}()
		shutdown.Register("jobs-worker", func(context.Context) error {
			worker.Shutdown()
			return nil
		})

		scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.HoroscopeCron, log)
		if err := scheduler.RegisterTasks(); err != nil {
			log.Error("failed to register scheduled tasks", slog.Any("error", err))
		} else {
			scheduler.Run()
			shutdown.Register("jobs-scheduler", func(context.Context) error {
				scheduler.Shutdown()
				return nil
			})
		}
	}

	srv := graceful.NewServer(log, &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout)

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("http server exited with error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
	}

	log.Info("arcana server stopped")
}
