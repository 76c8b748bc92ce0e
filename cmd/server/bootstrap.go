package main

import (
	"github.com/huangang/campusgig/internal/config"
	"github.com/huangang/campusgig/internal/handlers"
	"github.com/huangang/campusgig/internal/models"
	"github.com/huangang/campusgig/internal/services"
	"github.com/huangang/campusgig/internal/utils"
	"github.com/huangang/campusgig/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg       *config.Config
	db        *gorm.DB
	taskQueue services.TaskQueue
	worker    *services.Worker
	sweep     *services.VisibilitySweep

	jobHandler       *handlers.JobHandler
	reviewHandler    *handlers.ReviewHandler
	sseHandler       *handlers.SSEHandler
	healthHandler    *handlers.HealthHandler
	systemLogHandler *handlers.SystemLogHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	db, err := models.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	services.InitSystemLogger(db)
	services.StartLogCleanupScheduler(db, cfg.Log.RetentionDays)

	// Reveal notifications: Redis-backed asynq queue when enabled, otherwise in-process
	hub := services.NewSSEHub()
	notificationService := services.NewNotificationService(&cfg.Notification, hub)
	taskQueue := services.NewTaskQueue(&cfg.Redis)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(notificationService.Process)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(notificationService.Process)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start notification worker")
			}
		}
	}

	gate := services.NewVisibilityGate(db, services.NewQueueNotifier(taskQueue))
	jobService := services.NewJobService(db, &cfg.Review)
	eligibilityService := services.NewEligibilityService(db)
	reviewService := services.NewReviewService(db, &cfg.Review, gate)
	statsService := services.NewStatsService(db)

	sweep := services.NewVisibilitySweep(db, &cfg.Review, gate, jobService)
	if err := sweep.Start(); err != nil {
		logger.Fatalf("Failed to start visibility sweep: %v", err)
	}

	return &appServices{
		cfg:              cfg,
		db:               db,
		taskQueue:        taskQueue,
		worker:           worker,
		sweep:            sweep,
		jobHandler:       handlers.NewJobHandler(jobService, eligibilityService),
		reviewHandler:    handlers.NewReviewHandler(reviewService, statsService, sweep),
		sseHandler:       handlers.NewSSEHandler(hub),
		healthHandler:    handlers.NewHealthHandler(db, taskQueue, hub),
		systemLogHandler: handlers.NewSystemLogHandler(db),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.sweep.Stop()
	logger.Info().Msg("Visibility sweep stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
