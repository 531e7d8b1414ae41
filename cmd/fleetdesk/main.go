package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetdesk/fleetdesk/internal/app"
	"github.com/fleetdesk/fleetdesk/internal/auth"
	"github.com/fleetdesk/fleetdesk/internal/gate"
	"github.com/fleetdesk/fleetdesk/internal/packages"
	"github.com/fleetdesk/fleetdesk/internal/platform/cache"
	"github.com/fleetdesk/fleetdesk/internal/platform/db"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
	"github.com/fleetdesk/fleetdesk/internal/roles"
	"github.com/fleetdesk/fleetdesk/internal/screenview"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/tweaks"
	"github.com/fleetdesk/fleetdesk/internal/users"
	"github.com/fleetdesk/fleetdesk/internal/webhook"
	"github.com/fleetdesk/fleetdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "fleetdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	dispatcher := webhook.NewDispatcher(queueClient, logger)
	auditLogger := webhook.NewAuditFanout(shared.NewAuditLogger(dbpool), dispatcher)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)

	authService := auth.NewService(usersRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	resolver := rbac.NewResolver(rbac.NewRepository(dbpool))
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, resolver)

	rolesService := roles.NewService(roles.NewRepository(dbpool), auditLogger)
	rolesHandler := roles.NewHandler(logger, rolesService)

	gateRepo := gate.NewRepository(dbpool)
	executor := gate.NewExecutor(
		gateRepo,
		gate.NewShellRunner(cfg.RunnerTimeout),
		jobs.NewVerificationNotifier(queueClient),
		usersService,
		gate.NewRedisLocker(redisClient),
		auditLogger,
		logger,
		gate.Config{
			CodeTTL:     cfg.VerificationCodeTTL,
			MaxAttempts: cfg.VerificationMaxAttempts,
			LockTTL:     cfg.GateInflightLockDuration,
		},
	)

	tweaksService := tweaks.NewService(tweaks.NewRepository(dbpool), resolver, executor)
	tweaksHandler := tweaks.NewHandler(logger, tweaksService, rbacMiddleware)

	packagesService := packages.NewService(
		packages.NewRepository(dbpool),
		packages.NewInstalledAppsRepository(dbpool),
		resolver,
		executor,
	)
	packagesHandler := packages.NewHandler(logger, packagesService, rbacMiddleware)

	screenViewService := screenview.NewService(screenview.NewRepository(dbpool), auditLogger, screenview.Config{
		MaxPending:      cfg.ScreenViewMaxPending,
		DefaultDuration: cfg.ScreenViewDefaultDuration,
	})
	screenViewHandler := screenview.NewHandler(logger, screenViewService, rbacMiddleware)
	actionsHandler := gate.NewHandler(logger, gateRepo)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		RolesHandler:      rolesHandler,
		TweaksHandler:     tweaksHandler,
		PackagesHandler:   packagesHandler,
		ScreenViewHandler: screenViewHandler,
		ActionsHandler:    actionsHandler,
		RBACHandler:       rbacHandler,
		JobHandler:        jobHandler,
		RBACMiddleware:    rbacMiddleware,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
