package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ppe-monitor-service/internal/config"
	"ppe-monitor-service/internal/db"
	"ppe-monitor-service/internal/engine"
	httpapi "ppe-monitor-service/internal/http"
	"ppe-monitor-service/internal/penalty"
	"ppe-monitor-service/internal/publish"
	"ppe-monitor-service/internal/repository"
	"ppe-monitor-service/internal/service"
	"ppe-monitor-service/internal/snapshot"
	"ppe-monitor-service/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	gdb, err := db.Open(cfg.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}

	repo := repository.NewViolationRepository(gdb)

	var strategy tracker.MatchStrategy
	switch cfg.Tracker.Strategy {
	case "spatial_hash":
		strategy = tracker.SpatialHashStrategy{}
	default:
		strategy = tracker.IoUStrategy{MinIoU: cfg.Tracker.IoUThreshold}
	}

	eng := engine.New(engine.Options{
		IoUThreshold:   cfg.Tracker.IoUThreshold,
		PersonTimeout:  cfg.Tracker.PersonTimeout,
		CooldownPeriod: cfg.Sweeper.CooldownPeriod,
		Strategy:       strategy,
	}, time.Now, logger)

	publisher := publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer publisher.Close()

	var snaps snapshot.Store = snapshot.NopStore{}
	if cfg.Snapshot.Dir != "" {
		fsStore, err := snapshot.NewFSStore(cfg.Snapshot.Dir)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init snapshot store")
		}
		snaps = fsStore
	}

	svc := service.New(eng, repo, publisher, snaps, penalty.NewAggregator(nil), time.Now, logger)

	sweeper := engine.NewSweeper(eng, cfg.Sweeper.Interval, time.Now, svc.HandleAutoResolved, logger)
	sweeper.Start()
	defer sweeper.Close()

	if cfg.Retention.Days > 0 {
		interval := cfg.Retention.Interval
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for range ticker.C {
				cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				svc.CleanupOldEvents(cleanupCtx, cfg.Retention.Days)
				cancel()
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"tracked_persons": eng.TrackedPersons(),
		})
	})

	handler := httpapi.NewHandler(svc, cfg, logger)
	handler.Register(router, httpapi.JWTAuth(cfg.Auth.JWTSecret))

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
