// Copernicus Scheduler — создаёт jobs по cron/interval расписаниям
// и следит за завершением запущенных jobs.
//
// Одновременно тики выполняет только один экземпляр: лидер удерживает
// PostgreSQL advisory lock на выделенном соединении. Supervisor работает
// в каждом экземпляре.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Copernicus/internal/config"
	"github.com/shaiso/Copernicus/internal/mq"
	"github.com/shaiso/Copernicus/internal/process"
	"github.com/shaiso/Copernicus/internal/recipe"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/scheduler"
	"github.com/shaiso/Copernicus/internal/supervisor"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting copernicus-scheduler")

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

	jobRepo := repo.NewJobRepo(pool)

	processes, err := process.NewCatalog(recipe.FlavorForStyle(cfg.Toolchain.Style), logger)
	if err != nil {
		logger.Error("failed to load process catalog", "error", err)
		os.Exit(1)
	}

	schedCfg := scheduler.Config{
		Schedules: repo.NewScheduleRepo(pool),
		Jobs:      jobRepo,
		Known: func(id string) bool {
			_, err := processes.Get(id)
			return err == nil
		},
		Logger:    logger,
		BatchSize: cfg.Scheduler.BatchSize,
	}

	supCfg := supervisor.Config{
		Jobs:         jobRepo,
		JobTimeout:   cfg.Scheduler.JobTimeout,
		PollInterval: cfg.Scheduler.ReapInterval,
		Logger:       logger,
	}

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, workers will pick jobs up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher := mq.NewPublisher(mqConn, logger)
		schedCfg.Publisher = publisher
		supCfg.Publisher = publisher
		supCfg.Conn = mqConn
	}

	sched := scheduler.New(schedCfg)

	sup := supervisor.New(supCfg)
	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go run(ctx, pool, sched, cfg.Scheduler.TickInterval, logger)

	port := ":" + cfg.SchedPort
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sup.Stop()
	logger.Info("copernicus-scheduler stopped")
}

// run выполняет тики, пока процесс является лидером.
func run(ctx context.Context, pool *pgxpool.Pool, sched *scheduler.Scheduler, interval time.Duration, logger *slog.Logger) {
	tk := time.NewTicker(interval)
	defer tk.Stop()

	var lock *pgxpool.Conn
	defer func() {
		if lock != nil {
			_, _ = lock.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			lock.Release()
		}
	}()

	for {
		select {
		case <-tk.C:
			if lock == nil {
				lock = tryLead(ctx, pool, logger)
				if lock == nil {
					continue
				}
				logger.Info("acquired scheduler leadership")
			} else if err := lock.Ping(ctx); err != nil {
				// Соединение потеряно вместе с блокировкой.
				logger.Warn("lost scheduler leadership", "error", err)
				lock.Release()
				lock = nil
				continue
			}

			if err := sched.Tick(ctx); err != nil {
				logger.Error("scheduler tick failed", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// tryLead пытается взять advisory lock. Возвращает удерживающее соединение или nil.
func tryLead(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) *pgxpool.Conn {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		logger.Warn("failed to acquire connection", "error", err)
		return nil
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil || !ok {
		if err != nil {
			logger.Warn("advisory lock failed", "error", err)
		}
		conn.Release()
		return nil
	}
	return conn
}
