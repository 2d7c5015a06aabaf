package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bot/internal/api/http"
	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/persistence"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/platform/telegram"
	"github.com/spec-kit/ticket-bot/internal/repository"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/verify"
	"github.com/spec-kit/ticket-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var catalog repository.CatalogRepository
	if pool := pg.PoolHandle(); pool != nil {
		catalog = repository.NewCatalogRepository(pool)
	} else {
		logger.Warn("no postgres configured; catalog kept in memory")
		catalog = repository.NewMemoryCatalogRepository()
	}

	var redis *persistence.Redis
	var cooldowns repository.CooldownTracker
	if cfg.Redis.Addr != "" {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		cooldowns = repository.NewRedisCooldownTracker(redis.Client, cfg.Ticket.CooldownWindow)
	} else {
		logger.Warn("no redis configured; cooldowns kept in memory")
		cooldowns = repository.NewMemoryCooldownTracker(cfg.Ticket.CooldownWindow)
	}

	var chat platform.ChatPlatform
	var adapter *telegram.Adapter
	if cfg.Telegram.Token != "" {
		adapter, err = telegram.NewAdapter(cfg.Telegram.Token, cfg.Ticket.HistoryLimit, logger)
		if err != nil {
			logger.Fatal("failed to connect telegram", zap.Error(err))
		}
		chat = adapter
	} else {
		logger.Warn("no telegram token configured; chat platform runs in memory")
		chat = platform.NewMemoryPlatform()
	}

	var classifier verify.Classifier
	if cfg.OCR.TesseractPath != "" {
		classifier = verify.NewKeywordClassifier(verify.NewTesseractRecognizer(cfg.OCR.TesseractPath))
	} else {
		logger.Info("no OCR engine configured; evidence waits for manual review")
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	registry := repository.NewTicketRegistry()
	archiver := service.NewArchiverService(chat, cfg.Ticket.ArchiveChannelID, cfg.Ticket.HistoryLimit, cfg.Ticket.TranscriptBudget, logger)

	lifecycle := service.NewLifecycleService(cfg.Ticket, service.LifecycleDependencies{
		Registry:   registry,
		Cooldowns:  cooldowns,
		Catalog:    catalog,
		Chat:       chat,
		Classifier: classifier,
		Archiver:   archiver,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notifications)

	reaper := worker.NewReaper(cfg.Ticket, lifecycle, logger)
	go reaper.Run(ctx)

	if adapter != nil {
		listener := telegram.NewListener(adapter, lifecycle, logger)
		go listener.Run(ctx)
	}

	authService := service.NewAuthService(cfg.Auth)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		Catalog:        handlers.NewCatalogHandler(catalog, lifecycle),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
