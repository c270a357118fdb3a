// Copernicus Worker — выполняет диагностические jobs.
//
// Worker:
//   - Получает job.ready из RabbitMQ и опрашивает БД как fallback
//   - Генерирует рецепт, готовит копию toolchain и запускает её
//   - Публикует артефакты (MinIO, если настроен)
//   - Сообщает о завершении через job.completed
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Copernicus/internal/config"
	"github.com/shaiso/Copernicus/internal/mq"
	"github.com/shaiso/Copernicus/internal/output"
	"github.com/shaiso/Copernicus/internal/process"
	"github.com/shaiso/Copernicus/internal/recipe"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/storage"
	"github.com/shaiso/Copernicus/internal/telemetry"
	"github.com/shaiso/Copernicus/internal/toolchain"
	"github.com/shaiso/Copernicus/internal/worker"
	"github.com/shaiso/Copernicus/internal/workspace"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting copernicus-worker")

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
	logger.Info("database connected")

	runtime, err := newRuntime(cfg, logger)
	if err != nil {
		logger.Error("failed to set up toolchain", "error", err)
		os.Exit(1)
	}

	workerCfg := worker.Config{
		Jobs:         repo.NewJobRepo(pool),
		Processes:    process.NewDefaultRegistry(runtime),
		WorkdirRoot:  cfg.Worker.WorkdirRoot,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		Logger:       logger,
	}

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		workerCfg.Conn = mqConn
		workerCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	if cfg.Storage.Enabled() {
		client, err := storage.NewMinIOClient(cfg.Storage)
		if err != nil {
			logger.Error("failed to create storage client", "error", err)
			os.Exit(1)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
			logger.Error("failed to ensure bucket", "bucket", cfg.Storage.Bucket, "error", err)
			os.Exit(1)
		}
		workerCfg.Store = storage.NewMinIOPublisher(client, cfg.Storage.Bucket, logger)
		logger.Info("object storage enabled", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)
	}

	w := worker.New(workerCfg)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.WorkerPort
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("copernicus-worker stopped")
}

// newRuntime собирает генератор рецептов и invoker по стилю toolchain.
func newRuntime(cfg config.Config, logger *slog.Logger) (process.Runtime, error) {
	preparer := workspace.NewPreparer(workspace.PreparerConfig{
		Source:  cfg.Toolchain.Root,
		Name:    cfg.Toolchain.Name,
		Exclude: cfg.Toolchain.Exclude,
		Logger:  logger,
	})

	var invoker toolchain.Invoker
	switch cfg.Toolchain.Style {
	case config.StyleExternal:
		invoker = toolchain.NewExternalInvoker(toolchain.ExternalConfig{
			Preparer:     preparer,
			Interpreter:  cfg.Toolchain.Interpreter,
			SentinelFile: cfg.Toolchain.SentinelFile,
			Logger:       logger,
		})
	default:
		invoker = toolchain.NewInProcessInvoker(toolchain.InProcessConfig{
			Toolchain:    &toolchain.CommandToolchain{Binary: cfg.Toolchain.Binary},
			Preparer:     preparer,
			SentinelFile: cfg.Toolchain.SentinelFile,
			Logger:       logger,
		})
	}

	templates, err := recipe.DefaultRegistry(recipe.FlavorForStyle(cfg.Toolchain.Style))
	if err != nil {
		return process.Runtime{}, err
	}

	return process.Runtime{
		Generator: recipe.NewGenerator(recipe.GeneratorConfig{
			Registry:    templates,
			Preparer:    preparer,
			ArchiveRoot: cfg.Data.ArchiveRoot,
			ObsRoot:     cfg.Data.ObsRoot,
			Logger:      logger,
		}),
		Invoker: invoker,
		Locator: output.NewLocator(logger),
		Logger:  logger,
	}, nil
}
