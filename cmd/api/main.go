package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/internlog-api/internal/config"
	"github.com/noah-isme/internlog-api/internal/database"
	"github.com/noah-isme/internlog-api/internal/handler"
	"github.com/noah-isme/internlog-api/internal/middleware"
	"github.com/noah-isme/internlog-api/internal/repository"
	"github.com/noah-isme/internlog-api/internal/router"
	"github.com/noah-isme/internlog-api/internal/service"
	cloud "github.com/noah-isme/internlog-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// NATS is optional; without it notifications still fan out over Redis.
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	storage, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	logRepo := repository.NewDailyLogRepository(db)
	aggregateRepo := repository.NewAggregateRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	activityService := service.NewActivityService(activityRepo, logRepo, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	notificationService.Start(ctx)
	progressService := service.NewProgressService(aggregateRepo, redisClient, cfg.ProgressCacheTTL, logger)
	logService := service.NewLogService(service.LogServiceDeps{
		Logs:          logRepo,
		Aggregates:    aggregateRepo,
		Storage:       storage,
		Notifier:      notificationService,
		Events:        service.NewNATSEventPublisher(natsConn, cfg.ChannelBase, logger),
		Activity:      activityService,
		Progress:      progressService,
		Validator:     validate,
		Logger:        logger,
		MaxUploadSize: cfg.AttachmentMaxSizeMB,
	})

	probes := map[string]handler.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if status := natsConn.Status(); status != nats.CONNECTED {
				return errors.New(status.String())
			}
			return nil
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.AttachmentMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: logger})
	router.Register(app, cfg, router.Dependencies{
		LogHandler:          handler.NewLogHandler(logService, activityService, logger),
		ProgressHandler:     handler.NewProgressHandler(progressService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		Probes:              probes,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("address", cfg.HTTPAddress()).Msg("internlog api started")

	waitForShutdown(app, cancel, logger)
}

func waitForShutdown(app *fiber.App, stopWorkers context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
