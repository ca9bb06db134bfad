package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	v1 "quality-portal/document-control-backend/api/v1"
	"quality-portal/document-control-backend/internal/config"
	"quality-portal/document-control-backend/internal/documents"
	"quality-portal/document-control-backend/internal/engine"
	"quality-portal/document-control-backend/internal/notifications"
	"quality-portal/document-control-backend/internal/scheduler"
	"quality-portal/document-control-backend/pkg/workflows"
)

// sweep_worker runs every sweep exactly once and exits. Intended for
// deployments that drive cadence from an external cron or job runner instead
// of the in-process scheduler.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to build logger: ", err)
	}
	defer logger.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	repo := documents.NewPostgresRepository(db)

	registry := workflows.NewRegistry(workflows.GuardConfig{
		ReviewSLA:   cfg.Workflow.ReviewSLA,
		ApprovalSLA: cfg.Workflow.ApprovalSLA,
	})

	api := v1.SetupDocumentsAPI(repo, registry, notifications.NewLogDispatcher(logger), logger, engine.Config{
		PeriodicReviewInterval: cfg.Workflow.PeriodicReviewInterval,
	})

	sweeper := scheduler.New(repo, api.Engine, api.Versions, logger, scheduler.Config{
		ObsolescencePolicy: scheduler.ObsolescencePolicy(cfg.Scheduler.ObsolescencePolicy),
		ReviewSLA:          cfg.Workflow.ReviewSLA,
		ApprovalSLA:        cfg.Workflow.ApprovalSLA,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	for _, run := range []struct {
		name string
		fn   func(ctx context.Context) scheduler.Result
	}{
		{"effective_date_sweep", sweeper.RunEffectiveSweep},
		{"timeout_sweep", sweeper.RunTimeoutSweep},
		{"obsolescence_sweep", sweeper.RunObsolescenceSweep},
	} {
		res := run.fn(ctx)
		logger.Info("sweep finished",
			zap.String("sweep", run.name),
			zap.Int("scanned", res.Scanned),
			zap.Int("transitioned", res.Transitioned),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", len(res.Failures)))
		for _, ferr := range res.Failures {
			logger.Error("sweep failure", zap.String("sweep", run.name), zap.Error(ferr))
		}
	}
}
