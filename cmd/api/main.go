package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	v1 "quality-portal/document-control-backend/api/v1"
	"quality-portal/document-control-backend/internal/config"
	"quality-portal/document-control-backend/internal/documents"
	"quality-portal/document-control-backend/internal/engine"
	"quality-portal/document-control-backend/internal/notifications"
	"quality-portal/document-control-backend/internal/scheduler"
	"quality-portal/document-control-backend/pkg/workflows"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatal("failed to build logger: ", err)
	}
	defer logger.Sync()

	repo, err := buildRepository(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	registry := workflows.NewRegistry(workflows.GuardConfig{
		ReviewSLA:   cfg.Workflow.ReviewSLA,
		ApprovalSLA: cfg.Workflow.ApprovalSLA,
	})

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		logger.Fatal("failed to configure notification dispatch", zap.Error(err))
	}

	api := v1.SetupDocumentsAPI(repo, registry, dispatcher, logger, engine.Config{
		PeriodicReviewInterval: cfg.Workflow.PeriodicReviewInterval,
	})

	sweeper := scheduler.New(repo, api.Engine, api.Versions, logger, scheduler.Config{
		EffectiveSweepCron: cfg.Scheduler.EffectiveSweepCron,
		TimeoutSweepCron:   cfg.Scheduler.TimeoutSweepCron,
		ReviewSweepCron:    cfg.Scheduler.ReviewSweepCron,
		ObsolescencePolicy: scheduler.ObsolescencePolicy(cfg.Scheduler.ObsolescencePolicy),
		ReviewSLA:          cfg.Workflow.ReviewSLA,
		ApprovalSLA:        cfg.Workflow.ApprovalSLA,
		SweepTimeout:       10 * time.Minute,
	})
	if err := sweeper.Start(); err != nil {
		logger.Fatal("failed to start sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1.RegisterDocumentRoutes(router.Group("/api/v1"), api)

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	return zapCfg.Build()
}

func buildRepository(cfg *config.Config, logger *zap.Logger) (documents.Repository, error) {
	if cfg.Database.InMemory {
		logger.Warn("using in-memory repository; state will not survive a restart")
		return documents.NewMemoryRepository(), nil
	}
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		return nil, err
	}
	return documents.NewPostgresRepository(db), nil
}

func buildDispatcher(cfg *config.Config, logger *zap.Logger) (notifications.Dispatcher, error) {
	sinks := notifications.Fanout{notifications.NewLogDispatcher(logger)}
	if cfg.Notifications.WebhookURL != "" {
		sinks = append(sinks, notifications.NewWebhookDispatcher(cfg.Notifications.WebhookURL, logger))
	}
	if cfg.Notifications.SNSTopicARN != "" {
		sns, err := notifications.NewSNSDispatcher(context.Background(), cfg.Notifications.AWSRegion, cfg.Notifications.SNSTopicARN, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sns)
	}
	return sinks, nil
}
