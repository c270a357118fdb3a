package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/mq"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// Default configuration values.
const (
	defaultJobTimeout   = 24 * time.Hour
	defaultPollInterval = time.Minute
	defaultBatchSize    = 100
)

// JobStore — операции с jobs, нужные Supervisor. Реализуется repo.JobRepo.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Job, error)
	FinishRunning(ctx context.Context, job *domain.Job) error
}

// CompletionPublisher публикует job.completed. Реализуется mq.Publisher.
type CompletionPublisher interface {
	PublishJobCompleted(ctx context.Context, payload mq.JobCompletedPayload) error
}

// Supervisor обрабатывает завершения jobs и завершает зависшие.
type Supervisor struct {
	jobs      JobStore
	publisher CompletionPublisher
	conn      *mq.Connection
	consumer  *mq.Consumer

	jobTimeout   time.Duration
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Supervisor.
type Config struct {
	Jobs JobStore

	// Publisher — опционально; о завершённых по таймауту jobs сообщается через job.completed.
	Publisher CompletionPublisher

	// Conn — соединение RabbitMQ. Если nil — только проверка зависших jobs.
	Conn *mq.Connection

	JobTimeout   time.Duration // после какого времени RUNNING job считается зависшим (default: 24h)
	PollInterval time.Duration // интервал проверки (default: 1m)
	BatchSize    int           // jobs за одну проверку (default: 100)

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Supervisor.
func New(cfg Config) *Supervisor {
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Supervisor{
		jobs:         cfg.Jobs,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		jobTimeout:   jobTimeout,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          now,
		logger:       telemetry.OrDefault(cfg.Logger),
	}
}

// Start запускает consumer jobs.completed (если есть соединение) и проверку зависших jobs.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting supervisor",
		"job_timeout", s.jobTimeout,
		"poll_interval", s.pollInterval,
	)

	if s.conn != nil {
		s.consumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
			Queue:    mq.QueueJobsCompleted,
			Handler:  s.handleJobCompleted,
			Prefetch: 10,
		})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("completion consumer error", "error", err)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()

	return nil
}

// Stop останавливает Supervisor.
func (s *Supervisor) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.wg.Wait()
	s.logger.Info("supervisor stopped")
}

// pollLoop периодически завершает зависшие jobs.
func (s *Supervisor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.reap(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap(ctx)
		}
	}
}
