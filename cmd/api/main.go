package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arkan-dev/bugtrace-api/internal/config"
	"github.com/arkan-dev/bugtrace-api/internal/database"
	"github.com/arkan-dev/bugtrace-api/internal/handler"
	"github.com/arkan-dev/bugtrace-api/internal/middleware"
	"github.com/arkan-dev/bugtrace-api/internal/models"
	"github.com/arkan-dev/bugtrace-api/internal/repository"
	"github.com/arkan-dev/bugtrace-api/internal/router"
	"github.com/arkan-dev/bugtrace-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	auditRepo, err := buildAuditRepository(cfg)
	if err != nil {
		log.Fatalf("failed to initialise audit storage: %v", err)
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer cache.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	auditService := service.NewAuditService(auditRepo, cache, cfg.CacheTTL, logger)
	auditHandler := handler.NewAuditLogHandler(auditService, validate, logger)

	scheduler, err := service.NewRetentionScheduler(auditService, cfg.RetentionSchedule, cfg.RetentionDays, logger)
	if err != nil {
		log.Fatalf("failed to configure retention scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AuditLogHandler: auditHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildAuditRepository(cfg config.Config) (repository.AuditLogRepository, error) {
	if cfg.StorageDriver == config.StorageMemory {
		return repository.NewMemoryAuditLogRepository(), nil
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.AuditLogEntry{}); err != nil {
		return nil, err
	}

	return repository.NewGormAuditLogRepository(db), nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
