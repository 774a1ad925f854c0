package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mockai/mockai-backend/internal/config"
	"github.com/mockai/mockai-backend/internal/database"
	"github.com/mockai/mockai-backend/internal/handler"
	"github.com/mockai/mockai-backend/internal/interview"
	"github.com/mockai/mockai-backend/internal/logger"
	"github.com/mockai/mockai-backend/internal/questions"
	"github.com/mockai/mockai-backend/internal/repository"
	"github.com/mockai/mockai-backend/internal/router"
	"github.com/mockai/mockai-backend/internal/service"
	"github.com/mockai/mockai-backend/internal/telemetry"
	"github.com/mockai/mockai-backend/internal/validator"
	"github.com/mockai/mockai-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Bool("question_generator", cfg.GeminiAPIKey != "").
		Msg("Starting MockAI Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Metrics ───────────────────────────────────────────────────────
	metrics, shutdownMetrics, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up metrics")
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Question Source ───────────────────────────────────────────────
	// Without an API key the source serves the no-credential fallback list.
	var completer questions.Completer
	if cfg.GeminiAPIKey != "" {
		completer = questions.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	}
	source := questions.NewSource(completer, log,
		questions.WithTimeout(cfg.QuestionTimeout),
		questions.WithMetrics(metrics),
	)

	// ─── Initialize Services ───────────────────────────────────────────
	interviewRepo := repository.NewInterviewRepository(pool)
	authService := service.NewAuthService(cfg)
	interviewService := service.NewInterviewService(interviewRepo, rdb, source, authService, metrics, cfg, log)
	monitorService := service.NewMonitorService(interviewService)

	liveCfg := service.LiveConfig{
		SettleDelay: cfg.SettleDelay,
		Rate:        cfg.NarrationRate,
		Voice:       interview.VoicePreference{AnyOf: cfg.VoiceAnyOf, AllOf: cfg.VoiceAllOf},
	}

	// ─── Initialize Handlers ───────────────────────────────────────────
	handlers := &router.Handlers{
		Interview: handler.NewInterviewHandler(interviewService, log),
		WS:        handler.NewWSHandler(interviewService, metrics, liveCfg, log, cfg.AllowedOrigins),
		Monitor:   handler.NewMonitorHandler(rdb, monitorService, log),
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
	}

	// ─── Start Background Workers ──────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationWorker(pool, rdb, cfg.ViolationBatchSize, log)
	resultWorker := worker.NewResultWorker(pool, rdb, interviewRepo, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		violationWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		resultWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	cancel()

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not drain in time")
	}

	// 3. Push the last metric readings.
	metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer metricsCancel()
	if err := shutdownMetrics(metricsCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}
