package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"neon-storyboard-server/modules/api"
	"neon-storyboard-server/modules/common/config"
	"neon-storyboard-server/modules/common/gemini"
	"neon-storyboard-server/modules/common/logger"
	"neon-storyboard-server/modules/common/metrics"
	"neon-storyboard-server/modules/common/redis"
	"neon-storyboard-server/modules/session"
	"neon-storyboard-server/modules/worker"
)

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	zapLog, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	defer func() { _ = zapLog.Sync() }()

	if cfg.UsesDefaultPassword() {
		zapLog.Warn("APP_PASSWORD is not set, the auth gate uses the shipped default password")
	}
	if cfg.GeminiAPIKey == "" && cfg.GeminiDefaultAPIKey == "" {
		zapLog.Warn("No Gemini API key configured, every session must supply one")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	sessions := session.NewManager(session.Deps{
		Config:  cfg,
		Factory: gemini.NewGenAIFactory(),
		Metrics: m,
		Logger:  zapLog,
	})

	// 정리 루틴 시작
	sessions.StartCleanupRoutine(ctx)

	pool := worker.NewPool(sessions, cfg.MaxConcurrentGenerations, zapLog, m)
	var dispatcher worker.Dispatcher = pool

	if cfg.QueueBackend == config.QueueBackendRedis {
		rdb, err := redis.Connect(ctx, cfg, zapLog)
		if err != nil {
			zapLog.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()

		queue := worker.NewRedisQueue(rdb, cfg.RedisQueueKey, pool, zapLog, m)
		dispatcher = queue

		// Redis Queue Worker 시작 (백그라운드)
		go func() {
			if err := queue.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLog.Error("Queue consumer exited", zap.Error(err))
			}
		}()
	}

	handler := api.NewHandler(sessions, dispatcher, m, zapLog)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("🚀 Neon Storyboard Server starting",
			zap.String("port", cfg.Port),
			zap.String("queue_backend", cfg.QueueBackend),
			zap.Int("max_concurrent_generations", cfg.MaxConcurrentGenerations),
		)
		zapLog.Info("📡 WebSocket endpoint: ws://localhost:" + cfg.Port + "/ws?sessionId=<id>")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("HTTP server shutdown", zap.Error(err))
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("Worker pool shutdown", zap.Error(err))
	}
	sessions.Shutdown()
	zapLog.Info("Server stopped")
}
