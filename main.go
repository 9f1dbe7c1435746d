package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/config"
	"github.com/fa-sharp/cs50-finance-plus/database"
	"github.com/fa-sharp/cs50-finance-plus/events"
	"github.com/fa-sharp/cs50-finance-plus/handlers"
	"github.com/fa-sharp/cs50-finance-plus/jobs"
	"github.com/fa-sharp/cs50-finance-plus/ledger"
	"github.com/fa-sharp/cs50-finance-plus/portfolio"
	"github.com/fa-sharp/cs50-finance-plus/quote"
	"github.com/fa-sharp/cs50-finance-plus/session"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables")
	}

	cfg := config.Load()
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL and Redis connections.
	if err := config.InitDB(cfg); err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	sqlDB, err := config.DB.DB()
	if err != nil {
		slog.Error("Failed to get database instance", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	if err := config.InitRedis(ctx, cfg); err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer config.Rdb.Close()

	if err := database.AutoMigrate(config.DB); err != nil {
		slog.Error("Failed to migrate models", "error", err)
		os.Exit(1)
	}

	repo := database.NewRepository(config.DB)
	quotes := quote.NewClient(cfg.FinnhubURL, cfg.FinnhubAPIKey,
		quote.WithCache(quote.NewRedisCache(config.Rdb), cfg.QuoteCacheTTL),
		quote.WithStore(repo),
	)

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	defer publisher.Close()

	service := portfolio.NewService(repo, quotes, portfolio.Options{
		InitialDeposit: cfg.InitialDeposit,
		PageSize:       cfg.HistoryPageSize,
		Publisher:      publisher,
		Cursors:        ledger.NewCursorCodec(cfg.JWTSecret, cfg.SessionTTL),
	})

	scheduler := jobs.NewScheduler(repo, cfg.SnapshotRetention, cfg.RetentionSchedule)
	if err := scheduler.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	h := handlers.New(service, quotes, session.NewStore(config.Rdb, cfg.SessionTTL, cfg.RefreshTTL), handlers.Config{
		JWTSecret:  cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
		RefreshTTL: cfg.RefreshTTL,
		Checks: map[string]handlers.HealthCheck{
			"postgres": sqlDB.PingContext,
			"redis":    func(ctx context.Context) error { return config.Rdb.Ping(ctx).Err() },
		},
	})
	handlers.SetupRoutes(router, h)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}
	slog.Info("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	level := slog.LevelInfo
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}
