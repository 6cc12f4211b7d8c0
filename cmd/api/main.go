package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"p5glab/internal/api"
	"p5glab/internal/catalog"
	"p5glab/internal/clock"
	"p5glab/internal/config"
	"p5glab/internal/database"
	"p5glab/internal/domain"
	"p5glab/internal/events"
	"p5glab/internal/export"
	"p5glab/internal/logging"
	"p5glab/internal/metrics"
	"p5glab/internal/notify"
	"p5glab/internal/repository"
	"p5glab/internal/runner"
	"p5glab/internal/service"
	"p5glab/internal/sheets"
	"p5glab/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, cat, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	redisClient, limiter := initRateLimiter(ctx, cfg, &logger)
	eventBus := events.NewEventBus()
	clk := clock.New()

	scheduleWorker := initScheduleWorker(ctx, cfg, db, cat, redisClient, &logger)

	var syncWorker domain.SyncWorker
	if scheduleWorker != nil {
		syncWorker = scheduleWorker
	}

	bookingService := service.NewBookingService(db, cat, clk, eventBus, syncWorker, limiter, cfg.Booking, &logger)
	planner := service.NewSlotPlanner(db, cat)
	gate := service.NewActivationGate(db, cat, clk, eventBus, &logger)

	scriptRunner := runner.NewScriptRunner(cfg.Runner, &logger)
	scriptRunner.Start(ctx)
	defer scriptRunner.Stop()

	initNotifier(cfg, eventBus, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetricsServer(ctx, cfg, &logger)

	exporter := export.NewExporter(cfg.Exports.Path, &logger)

	apiServer := api.NewHTTPServer(cfg.API, cfg.Booking, api.Deps{
		Bookings: bookingService,
		Planner:  planner,
		Gate:     gate,
		Runner:   scriptRunner,
		Exporter: exporter,
		Catalog:  cat,
		Clock:    clk,
		Logger:   &logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *catalog.Catalog, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	experimentsPath := os.Getenv("EXPERIMENTS_PATH")
	if experimentsPath == "" {
		experimentsPath = "configs/experiments.yaml"
	}
	cat, err := catalog.Load(experimentsPath)
	if err != nil {
		logger.Error().Err(err).Str("path", experimentsPath).Msg("load experiments catalog")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	return cfg, cat, logger, closer, nil
}

func prepareDirectories(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func initRateLimiter(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.RateLimiter) {
	memory := repository.NewMemoryRateLimiter()

	if cfg.Redis.Address == "" {
		return nil, memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, rate limiting falls back to memory")
	}

	primary := repository.NewRedisRateLimiter(redisClient)
	return redisClient, repository.NewFailoverRateLimiter(primary, memory, logger)
}

func initScheduleWorker(ctx context.Context, cfg *config.Config, db *database.DB, cat *catalog.Catalog, redisClient *redis.Client, logger *zerolog.Logger) *worker.ScheduleWorker {
	if !cfg.Google.Enabled {
		return nil
	}

	scheduleService, err := sheets.NewScheduleService(cfg.Google.GoogleCredentialsFile, cfg.Google.ScheduleSpreadSheetID)
	if err != nil {
		logger.Error().Err(err).Msg("schedule sheet disabled: init failed")
		return nil
	}
	if err := scheduleService.TestConnection(ctx); err != nil {
		if email, emailErr := sheets.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); emailErr == nil {
			logger.Error().Err(err).Str("service_account", email).Msg("schedule sheet connection test failed; share the spreadsheet with the service account")
		} else {
			logger.Error().Err(err).Msg("schedule sheet connection test failed")
		}
		return nil
	}

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	scheduleWorker := worker.NewScheduleWorker(db, scheduleService, cat, redisClient, retryPolicy, logger)
	go scheduleWorker.Start(ctx)
	return scheduleWorker
}

func initNotifier(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled || len(cfg.Managers) == 0 {
		return
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("telegram notifications disabled: bot init failed")
		return
	}
	botAPI.Debug = cfg.Telegram.Debug

	notify.NewTelegramNotifier(botAPI, cfg.Managers, logger).Register(bus)
	logger.Info().Int("managers", len(cfg.Managers)).Msg("telegram notifications enabled")
}

func startMetricsServer(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
