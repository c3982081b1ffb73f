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
	"golang.org/x/sync/errgroup"

	"github.com/procureflow/procureflow/internal/app"
	"github.com/procureflow/procureflow/internal/auth"
	"github.com/procureflow/procureflow/internal/invitation"
	"github.com/procureflow/procureflow/internal/invoice"
	"github.com/procureflow/procureflow/internal/masterdata"
	"github.com/procureflow/procureflow/internal/messaging"
	"github.com/procureflow/procureflow/internal/notify"
	"github.com/procureflow/procureflow/internal/observability"
	"github.com/procureflow/procureflow/internal/platform/cache"
	"github.com/procureflow/procureflow/internal/platform/db"
	"github.com/procureflow/procureflow/internal/quotation"
	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/storage"
	"github.com/procureflow/procureflow/internal/users"
	"github.com/procureflow/procureflow/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "procureflow_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	store, err := storage.NewLocalStore(storage.LocalConfig{
		Root:         cfg.DocStoreRoot,
		Secret:       cfg.DocStoreSecret,
		MaxSizeBytes: cfg.DocMaxSizeBytes,
		ContentTypes: []string{"application/pdf", "image/jpeg", "image/png"},
	})
	if err != nil {
		logger.Error("init document store", slog.Any("error", err))
		os.Exit(1)
	}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	notifier := notify.New(jobsClient, logger)

	usersService := users.NewService(users.NewRepository(pool))
	authService := auth.NewService(auth.NewRepository(pool))
	rbacService := rbac.NewService(pool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)
	mdService := masterdata.NewService(masterdata.NewRepository(pool), auditLogger, logger)
	invitationService := invitation.NewService(invitation.NewRepository(pool), authService, usersService, rbacService, jobsClient, logger)

	requisitionRepo := requisition.NewRepository(pool)
	requisitionService := requisition.NewService(requisitionRepo, usersService, mdService, notifier, logger)

	quotationService := quotation.NewService(quotation.NewRepository(pool), requisitionRepo, mdService, notifier, logger)

	messagingService := messaging.NewService(messaging.NewRepository(pool), requisitionRepo)

	invoiceService := invoice.NewService(invoice.NewRepository(pool), store, quotationService, mdService, messagingService, notifier, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager),
		InvitationHandler:  invitation.NewHandler(logger, invitationService),
		MasterDataHandler:  masterdata.NewHandler(logger, mdService),
		RequisitionHandler: requisition.NewHandler(logger, requisitionService),
		QuotationHandler:   quotation.NewHandler(logger, quotationService),
		InvoiceHandler:     invoice.NewHandler(logger, invoiceService),
		MessagingHandler:   messaging.NewHandler(logger, messagingService),
		DocumentHandler:    storage.NewHandler(logger, store),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
