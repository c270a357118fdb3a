package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// ScheduleStore — хранилище расписаний. Реализуется repo.ScheduleRepo.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	UpdateAfterRun(ctx context.Context, schedule *domain.Schedule) error
}

// JobStore — создание jobs. Реализуется repo.JobRepo.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error)
}

// ReadyPublisher сообщает воркерам о новом job. Реализуется mq.Publisher.
type ReadyPublisher interface {
	PublishJobReady(ctx context.Context, jobID uuid.UUID, processID string) error
}

// ProcessLookup проверяет, что процесс зарегистрирован.
type ProcessLookup func(id string) bool

// Scheduler создаёт jobs по расписаниям, время которых подошло.
type Scheduler struct {
	schedules ScheduleStore
	jobs      JobStore
	publisher ReadyPublisher
	known     ProcessLookup
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Jobs      JobStore

	// Publisher — опционально; без него воркеры найдут job через polling.
	Publisher ReadyPublisher

	// Known — опционально; расписания неизвестных процессов пропускаются.
	Known ProcessLookup

	Logger    *slog.Logger
	BatchSize int // количество schedules за один тик (default: 100)

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		jobs:      cfg.Jobs,
		publisher: cfg.Publisher,
		known:     cfg.Known,
		logger:    telemetry.OrDefault(cfg.Logger),
		batchSize: batchSize,
		now:       now,
	}
}

// Tick выполняет один тик планировщика.
//
//  1. Находит due schedules (enabled, next_due_at <= now)
//  2. Пропускает те, чей предыдущий job ещё не завершён (если перекрытие запрещено)
//  3. Для остальных создаёт QUEUED job с ключом идемпотентности
//  4. Сдвигает next_due_at
//  5. Публикует job.ready
//
// Ошибка одного schedule не блокирует остальные.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil
	}

	var processed, created int
	for i := range schedules {
		sched := &schedules[i]

		jobCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}

		processed++
		if jobCreated {
			created++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"jobs_created", created,
	)
	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если job создан (а не найден по ключу идемпотентности).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	logger := s.logger.With("schedule_id", sched.ID, "process", sched.ProcessID)

	if s.known != nil && !s.known(sched.ProcessID) {
		logger.Warn("process not registered for schedule, skipping")
		return false, nil
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		logger.Error("invalid schedule, disabling", "error", err)
		sched.Enabled = false
		sched.UpdatedAt = now
		return false, s.schedules.Update(ctx, sched)
	}

	if sched.Busy() {
		logger.Info("previous job still active, skipping tick",
			"last_job_id", sched.LastJob.ID,
			"last_job_status", sched.LastJob.Status,
			"next_due_at", nextDue,
		)
		telemetry.ScheduleSkipped(sched.ProcessID)
		sched.RecordSkip(nextDue)
		return false, s.schedules.UpdateAfterRun(ctx, sched)
	}

	job, created, err := s.createJob(ctx, sched, *sched.NextDueAt)
	if err != nil {
		return false, err
	}

	if created {
		logger.Info("created job from schedule", "job_id", job.ID, "idempotency_key", job.IdempotencyKey)
	} else {
		logger.Debug("job already exists (idempotency)", "job_id", job.ID, "idempotency_key", job.IdempotencyKey)
	}

	sched.RecordRun(job, &nextDue)
	if err := s.schedules.UpdateAfterRun(ctx, sched); err != nil {
		return created, fmt.Errorf("update schedule: %w", err)
	}

	if s.publisher != nil && created {
		if err := s.publisher.PublishJobReady(ctx, job.ID, job.ProcessID); err != nil {
			// job уже в БД, воркер подхватит его через polling
			logger.Warn("failed to publish job.ready", "job_id", job.ID, "error", err)
		}
	}

	return created, nil
}

// createJob создаёт job срабатывания dueAt или возвращает уже созданный.
func (s *Scheduler) createJob(ctx context.Context, sched *domain.Schedule, dueAt time.Time) (*domain.Job, bool, error) {
	job := sched.NewJob(dueAt)

	existing, err := s.jobs.GetByIdempotencyKey(ctx, job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, fmt.Errorf("check idempotency: %w", err)
	}

	err = s.jobs.Create(ctx, job)
	if errors.Is(err, repo.ErrAlreadyExists) {
		// Другой экземпляр успел создать job между проверкой и вставкой
		existing, getErr := s.jobs.GetByIdempotencyKey(ctx, job.IdempotencyKey)
		if getErr != nil {
			return nil, false, fmt.Errorf("get job after conflict: %w", getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	return job, true, nil
}
