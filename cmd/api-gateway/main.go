package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/examsync/exam-bridge-api/api/swagger"
	"github.com/examsync/exam-bridge-api/internal/handler"
	"github.com/examsync/exam-bridge-api/internal/middleware"
	"github.com/examsync/exam-bridge-api/internal/repository"
	"github.com/examsync/exam-bridge-api/internal/service"
	"github.com/examsync/exam-bridge-api/pkg/cache"
	"github.com/examsync/exam-bridge-api/pkg/classifier"
	"github.com/examsync/exam-bridge-api/pkg/config"
	"github.com/examsync/exam-bridge-api/pkg/database"
	"github.com/examsync/exam-bridge-api/pkg/lms"
	"github.com/examsync/exam-bridge-api/pkg/logger"
	corsmiddleware "github.com/examsync/exam-bridge-api/pkg/middleware/cors"
	reqidmiddleware "github.com/examsync/exam-bridge-api/pkg/middleware/requestid"
	"github.com/examsync/exam-bridge-api/pkg/notify"
	"github.com/examsync/exam-bridge-api/pkg/storage"
)

// @title Exam Bridge API
// @version 0.1.0
// @description Bridges scanned examination answer scripts into the LMS
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var statsCache *service.RedisStatsCache
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
	} else {
		statsCache = service.NewRedisStatsCache(redisClient)
		defer redisClient.Close()
	}

	contentStore, err := storage.NewLocalContentStore(cfg.Storage.ScanDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare scan storage", "error", err)
	}

	lmsClient := lms.NewClient(lms.Config{
		BaseURL:         cfg.LMS.BaseURL,
		Token:           cfg.LMS.Token,
		Timeout:         cfg.LMS.Timeout,
		BreakerFailures: cfg.LMS.BreakerFailures,
		BreakerCooldown: cfg.LMS.BreakerCooldown,
	}, logr)
	opticalClient := classifier.NewClient(classifier.Config{
		BaseURL: cfg.Classifier.BaseURL,
		Timeout: cfg.Classifier.Timeout,
	}, logr)
	mailer := notify.NewSMTPNotifier(notify.Config{
		Enabled:  cfg.Notifier.Enabled,
		Host:     cfg.Notifier.SMTPHost,
		Port:     cfg.Notifier.SMTPPort,
		Username: cfg.Notifier.Username,
		Password: cfg.Notifier.Password,
		From:     cfg.Notifier.From,
	}, logr)

	artifactRepo := repository.NewArtifactRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	mappingRepo := repository.NewMappingRepository(db)

	metricsSvc := service.NewMetricsService()
	artifactSvc := service.NewArtifactService(artifactRepo, contentStore, ledgerRepo, opticalClient, statsCache,
		queueRepo, cfg.Storage, cfg.Classifier, cfg.Stats, logr)
	reportSvc := service.NewReportService(ledgerRepo, artifactRepo, logr)
	mappingSvc := service.NewMappingService(mappingRepo, ledgerRepo, logr)
	submissionSvc := service.NewSubmissionService(mappingRepo, lmsClient, logr)
	notificationSvc := service.NewNotificationService(mailer, mappingRepo, lmsClient, ledgerRepo, cfg.Notifier, logr)
	notificationSvc.SetMetrics(metricsSvc)
	artifactSvc.SetNotifier(notificationSvc)
	queueSvc := service.NewQueueService(queueRepo, artifactRepo, submissionSvc, notificationSvc, cfg.Queue, logr)
	exportSvc := service.NewExportService(artifactRepo, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, cfg.JWT, handler.Handlers{
		Uploads:   handler.NewUploadHandler(artifactSvc, metricsSvc),
		Artifacts: handler.NewArtifactHandler(artifactSvc),
		Reports:   handler.NewReportHandler(reportSvc, metricsSvc),
		Queue:     handler.NewQueueHandler(queueSvc, metricsSvc),
		Mappings:  handler.NewMappingHandler(mappingSvc),
		Ledger:    handler.NewLedgerHandler(ledgerRepo),
		Exports:   handler.NewExportHandler(exportSvc),
		Metrics:   handler.NewMetricsHandler(metricsSvc),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
		os.Exit(1)
	}
	logr.Sugar().Infow("server stopped")
}
