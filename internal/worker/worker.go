package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/mq"
	"github.com/shaiso/Copernicus/internal/process"
	"github.com/shaiso/Copernicus/internal/storage"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 10
	defaultConcurrency  = 2
	defaultWorkdirRoot  = "/var/lib/copernicus/jobs"
)

// JobStore — хранилище jobs, нужное воркеру. Реализуется repo.JobRepo.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListQueued(ctx context.Context, limit int) ([]domain.Job, error)
	Claim(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, job *domain.Job) error
	UpdateProgress(ctx context.Context, id uuid.UUID, message string, percent int) error
}

// CompletionPublisher публикует события job.completed. Реализуется mq.Publisher.
type CompletionPublisher interface {
	PublishJobCompleted(ctx context.Context, payload mq.JobCompletedPayload) error
}

// Worker выполняет jobs диагностических процессов.
type Worker struct {
	jobs      JobStore
	publisher CompletionPublisher
	conn      *mq.Connection
	processes *process.Registry
	store     storage.Publisher

	consumer *mq.Consumer

	workdirRoot  string
	concurrency  int
	pollInterval time.Duration
	batchSize    int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Jobs JobStore

	// Publisher — события job.completed (опционально).
	Publisher CompletionPublisher

	// Conn — соединение RabbitMQ. Если nil — только polling.
	Conn *mq.Connection

	Processes *process.Registry

	// Store — публикация артефактов. Если nil — артефакты остаются на диске.
	Store storage.Publisher

	WorkdirRoot  string
	Concurrency  int           // параллельных jobs за один poll (default: 2)
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // jobs за один poll (default: 10)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	workdirRoot := cfg.WorkdirRoot
	if workdirRoot == "" {
		workdirRoot = defaultWorkdirRoot
	}

	store := cfg.Store
	if store == nil {
		store = storage.LocalPublisher{}
	}

	processes := cfg.Processes
	if processes == nil {
		processes = process.NewRegistry()
	}

	return &Worker{
		jobs:         cfg.Jobs,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		processes:    processes,
		store:        store,
		workdirRoot:  workdirRoot,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       telemetry.OrDefault(cfg.Logger),
	}
}

// Start запускает consumer jobs.ready и polling.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"concurrency", w.concurrency,
		"workdir_root", w.workdirRoot,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    mq.QueueJobsReady,
			Handler:  w.handleJobReady,
			Prefetch: w.concurrency,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("job consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущих jobs.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем jobs, созданные пока воркер был выключен
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет пачку QUEUED jobs, не больше concurrency одновременно.
func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.jobs.ListQueued(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list queued jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	w.logger.Debug("poll found queued jobs", "count", len(jobs))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, job := range jobs {
		g.Go(func() error {
			err := w.processJob(ctx, job.ID)
			if err != nil && !isExpected(err) {
				w.logger.Error("failed to process job from poll", "job_id", job.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}
