// Copernicus API — каталог процессов, запуск jobs, статусы и schedules.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Copernicus/internal/api"
	"github.com/shaiso/Copernicus/internal/config"
	"github.com/shaiso/Copernicus/internal/mq"
	"github.com/shaiso/Copernicus/internal/process"
	"github.com/shaiso/Copernicus/internal/recipe"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/storage"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting copernicus-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	processes, err := process.NewCatalog(recipe.FlavorForStyle(cfg.Toolchain.Style), logger)
	if err != nil {
		logger.Error("failed to load process catalog", "error", err)
		os.Exit(1)
	}

	handlerCfg := api.Config{
		Jobs:      repo.NewJobRepo(pool),
		Schedules: repo.NewScheduleRepo(pool),
		Processes: processes,
		Logger:    logger,
	}

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, workers will pick jobs up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		handlerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	if cfg.Storage.Enabled() {
		client, err := storage.NewMinIOClient(cfg.Storage)
		if err != nil {
			logger.Error("failed to create storage client", "error", err)
			os.Exit(1)
		}
		handlerCfg.Presigner = storage.NewMinIOPublisher(client, cfg.Storage.Bucket, logger)
	}

	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.APIPort
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
