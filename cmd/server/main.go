package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/leadflow/internal/di"
	"github.com/prohmpiriya/leadflow/internal/event"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/prohmpiriya/leadflow/pkg/database"
	"github.com/prohmpiriya/leadflow/pkg/kafka"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"github.com/prohmpiriya/leadflow/pkg/redis"
	"github.com/prohmpiriya/leadflow/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Development: !cfg.IsProduction(),
	})
	defer func() { _ = logger.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.App, cfg.OTel)); err != nil {
		log.Warn("Telemetry disabled", zap.Error(err))
	}

	containerCfg := &di.ContainerConfig{Config: cfg, Logger: log}

	if cfg.Storage.Driver == "memory" {
		log.Warn("Using in-memory storage, data is lost on restart")
	} else {
		db, err := database.NewPostgres(ctx, database.FromConfig(cfg.Database))
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		containerCfg.DB = db
	}

	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		containerCfg.KV = rdb
	} else {
		log.Warn("Redis disabled, using an embedded in-process server")
		embedded, err := redis.NewEmbedded(time.Second)
		if err != nil {
			log.Fatal("Failed to start embedded redis", zap.Error(err))
		}
		defer func() { _ = embedded.Close() }()
		containerCfg.KV = embedded
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			log.Fatal("Failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close()
		containerCfg.Publisher = event.NewKafkaPublisher(producer)
	}

	container, err := di.NewContainer(containerCfg)
	if err != nil {
		log.Fatal("Failed to build container", zap.Error(err))
	}
	defer container.Close()

	container.FollowupWorker.Start(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Warn("Telemetry shutdown failed", zap.Error(err))
	}
	log.Info("Server exited")
}
