package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pagerduty-analytics/internal/analytics"
	"pagerduty-analytics/internal/api"
	"pagerduty-analytics/internal/config"
	"pagerduty-analytics/internal/db"
	"pagerduty-analytics/internal/kafka"
	"pagerduty-analytics/internal/logging"
	"pagerduty-analytics/internal/notify"
	"pagerduty-analytics/internal/pagerduty"
	syncsvc "pagerduty-analytics/internal/sync"
	"pagerduty-analytics/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	// Connect to database, retrying while it comes up
	var database *db.DB
	err = utils.Retry(context.Background(), logger, 5, 3*time.Second, func() error {
		var err error
		database, err = db.New(cfg.DB.DSN)
		if err != nil {
			return err
		}
		return database.Ping(context.Background())
	})
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.Setup(context.Background()); err != nil {
		log.Fatalf("Schema setup failed: %v", err)
	}

	client := pagerduty.New(cfg, logger)
	syncService := syncsvc.New(database, client, logger)
	analyticsService := analytics.New(database, cfg.Analytics.LookbackDays, cfg.Analytics.LookaheadDays)

	hub := api.NewHub(logger)
	syncService.OnProgress(hub.Broadcast)

	notifier, err := notify.New(cfg.Telegram, cfg.Email, logger)
	if err != nil {
		log.Fatalf("Failed to init notifier: %v", err)
	}
	syncService.OnFinished(notifier.RunFinished)

	var wg sync.WaitGroup
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer(cfg.Kafka, syncService, logger)
		consumer.Start(&wg)
	}

	handler := api.NewHandler(syncService, analyticsService, database, client, logger)
	router := api.NewRouter(cfg.API.BasePath, handler, hub, logger)
	server := &http.Server{Addr: cfg.API.Port, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")

	syncService.Stop()
	if consumer != nil {
		consumer.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	wg.Wait()
}
