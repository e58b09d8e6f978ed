package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/config"
	handler "qonto-reconciliation-backend/internal/handlers"
	"qonto-reconciliation-backend/internal/logger"
	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/repository"
	"qonto-reconciliation-backend/internal/routes"
	"qonto-reconciliation-backend/internal/scheduler"
	"qonto-reconciliation-backend/internal/services/attachments"
	"qonto-reconciliation-backend/internal/services/matching"
	"qonto-reconciliation-backend/internal/services/qontosync"
	"qonto-reconciliation-backend/internal/services/quotes"
	service "qonto-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env and environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	appLog := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(appLog)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect database")
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// A misconfigured client still starts; /api/health reports it
	qontoClient := qonto.NewClient(cfg.Qonto, appLog)
	if err := qontoClient.ConfigError(); err != nil {
		log.Warn().Err(err).Msg("Qonto client is not configured")
	}

	txRepo := repository.NewBankTransactionRepository(db)
	docRepo := repository.NewFinancialDocumentRepository(db)
	runRepo := repository.NewSyncRunRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	matcher := matching.NewEngine(txRepo, docRepo, auditRepo, cfg.Matching.Epsilon, appLog)
	syncEngine := qontosync.NewEngine(qontoClient, txRepo, docRepo, runRepo, auditRepo, matcher, cfg.Sync, appLog)
	reconService := service.NewReconciliationService(qontoClient, docRepo, txRepo, auditRepo, appLog)
	quoteService := quotes.NewService(qontoClient, syncEngine, docRepo, auditRepo, appLog)
	attachmentProxy := attachments.NewProxy(qontoClient, attachments.DefaultURLTTL, appLog)

	sched := scheduler.New(appLog)
	if cfg.Sync.Schedule != "" {
		job := scheduler.NewIncrementalSyncJob(syncEngine, cfg.Sync.TimeoutIncremental, cfg.Sync.AutoCreateExpenses, appLog)
		if err := sched.AddJob(cfg.Sync.Schedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Sync.Schedule).Msg("Invalid SYNC_SCHEDULE")
		}
	}
	sched.Start()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestLogger(appLog))
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-User-ID", "X-Request-ID", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Dependencies{
		Reconciliation: reconService,
		Matcher:        matcher,
		Syncer:         syncEngine,
		Quotes:         quoteService,
		Attachments:    attachmentProxy,
		Health:         qontoClient,
		Log:            appLog,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Str("auth_mode", string(qontoClient.AuthMode())).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("Server stopped")
}
