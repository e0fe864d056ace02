package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"abandoned-tracker/internal/config"
	"abandoned-tracker/internal/db"
	"abandoned-tracker/internal/httpserver"
	metricsrepo "abandoned-tracker/internal/repository/metrics"
	sessionrepo "abandoned-tracker/internal/repository/session"
	todorepo "abandoned-tracker/internal/repository/todo"
	abandonedsvc "abandoned-tracker/internal/service/abandoned"
	metricssvc "abandoned-tracker/internal/service/metrics"
	todosvc "abandoned-tracker/internal/service/todo"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	client, err := db.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatalf("connect to mongodb: %v", err)
	}
	database := client.Database(cfg.MongoDatabase)

	sessionRepo := sessionrepo.NewMongo(database)
	metricsRepo := metricsrepo.NewMongo(database, logger)
	todoRepo := todorepo.NewMongo(database)

	scheduler := metricssvc.NewScheduler(metricsRepo, logger, cfg.MetricsFlushDelay)
	abandonedService := abandonedsvc.New(sessionRepo, metricsRepo, scheduler, logger)
	todoService := todosvc.New(todoRepo)

	srv := httpserver.New(cfg.HTTPAddr, logger, client, httpserver.Deps{
		Abandoned: abandonedService,
		Todos:     todoService,
		Metrics:   scheduler,
	}, cfg.CORSOrigins)

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}

	// Flush buffered metric deltas before the store connection goes away.
	scheduler.ForceFlush(shutdownCtx)

	if err := client.Disconnect(shutdownCtx); err != nil {
		logger.Printf("mongodb disconnect failed: %v", err)
	}
}
