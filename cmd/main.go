package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"botdesk/internal/bootstrap"
	"botdesk/internal/bot"
	"botdesk/internal/config"
	cronpkg "botdesk/internal/cron"
	"botdesk/internal/handler/api"
	"botdesk/internal/middleware"
	"botdesk/internal/models"
	"botdesk/internal/repository"
	"botdesk/internal/router"
	"botdesk/internal/selection"
)

func main() {
	// --- Logger ---
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db, cfg.Bootstrap); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Redis (optional, every consumer has an in-process fallback) ---
	rdb, err := config.NewRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process fallbacks", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	repos := api.NewRepos(db)

	// --- Bot selection ---
	feed := selection.NewFeed(rdb, logger)
	store := selection.NewStore(cfg.Selection.Store, rdb, repository.NewKeyValueRepository(db), logger)
	source := selection.SourceFunc(func(_ context.Context, tenantID string) ([]models.Bot, error) {
		return repos.Bot.FindByTenant(tenantID)
	})
	manager := selection.NewManager(source, store, feed, logger)

	feedCtx, stopFeed := context.WithCancel(context.Background())
	go feed.Listen(feedCtx)

	// --- Webhook relay ---
	relay := bot.NewRelay(&bot.Repos{
		Bot:      repos.Bot,
		Product:  repos.Product,
		Customer: repos.Customer,
		Order:    repos.Order,
		Log:      repos.Log,
	}, cfg.Telegram.APIURL, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.Server.IsDevelopment()

	router.Setup(e, router.Deps{
		Repos:         repos,
		Manager:       manager,
		Feed:          feed,
		Relay:         relay,
		UpdateDeduper: middleware.NewUpdateDeduper(rdb, 10*time.Minute),
		Options: api.Options{
			TelegramAPIURL: cfg.Telegram.APIURL,
			WebhookBaseURL: cfg.Telegram.WebhookBaseURL,
		},
		AdminKey:        cfg.API.Key,
		CheckTelegramIP: cfg.Telegram.CheckIP,
	}, logger)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg, &cronpkg.CronRepos{
		Bot:       repos.Bot,
		Customer:  repos.Customer,
		Order:     repos.Order,
		Broadcast: repos.Broadcast,
		Log:       repos.Log,
	}, manager, logger)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting botdesk server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopFeed()
	logger.Info("Server exited")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, seed, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, logger)
	if err != nil {
		return err
	}
	if err := bootstrap.MigrateAndSeed(db, seed); err != nil {
		return err
	}
	logger.Info("Schema migration and tenant seed completed")
	return nil
}
