package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"bookshelf/internal/bot"
	"bookshelf/internal/config"
	"bookshelf/internal/library"
	"bookshelf/internal/storage"
	"bookshelf/internal/storage/ch"
	"bookshelf/internal/storage/stubs"
)

// App represents the application
type App struct {
	config  *config.Config
	logger  *zap.Logger
	db      storage.Storage
	service *library.Service
	bot     *bot.Bot
	server  *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting Bookshelf...")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	app.service = library.NewService(app.db, logger.Named("library"), loc)

	if err := app.initBot(); err != nil {
		return nil, err
	}

	app.initHTTPServer()

	return app, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// initDatabase initializes the database connection
func (a *App) initDatabase() error {
	var db storage.Storage
	if a.config.UseMockDB {
		a.logger.Warn("Using mock database, records are lost on restart")
		db = stubs.NewMockDB()
	} else {
		chc := a.config.ClickHouse
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", chc.Host),
			zap.Int("port", chc.Port),
			zap.String("database", chc.Database),
			zap.String("user", chc.User),
			zap.Bool("tls", chc.UseTLS),
		)
		clickhouseDB, err := ch.NewClickHouseDB(chc.Host, chc.Port, chc.Database, chc.User, chc.Password, chc.UseTLS)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	}

	if err := db.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.service, a.config.AllowedUsers, a.logger.Named("bot"))
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	a.logger.Info("Bot created successfully", zap.Int("allowed_users", len(a.config.AllowedUsers)))

	a.bot = telegramBot
	return nil
}

// initHTTPServer serves health checks, the webhook and the Mini App API
func (a *App) initHTTPServer() {
	hs := bot.NewHTTPServer(a.bot, a.config.WebhookMode)

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      hs.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
		a.logger.Info("Webhook configured", zap.String("path", bot.WebhookPath))
	} else {
		go func() {
			a.logger.Info("Starting bot in POLLING mode...")
			if err := a.bot.Start(); err != nil {
				errChan <- fmt.Errorf("failed to start bot: %w", err)
			}
		}()
	}

	select {
	case <-sigChan:
		a.logger.Info("Shutting down...")
		return a.Shutdown()
	case err := <-errChan:
		_ = a.Shutdown()
		return err
	}
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	defer func() { _ = a.logger.Sync() }()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if !a.config.WebhookMode {
		a.bot.Stop()
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	return nil
}
