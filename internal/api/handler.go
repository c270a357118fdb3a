package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/process"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/storage"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// defaultPresignTTL — время жизни ссылки на артефакт в объектном хранилище.
const defaultPresignTTL = 15 * time.Minute

// JobStore — операции с jobs. Реализуется repo.JobRepo.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error)
	List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// ScheduleStore — операции с schedules. Реализуется repo.ScheduleRepo.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	UpdateAfterRun(ctx context.Context, schedule *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// ReadyPublisher сообщает воркерам о новом job. Реализуется mq.Publisher.
type ReadyPublisher interface {
	PublishJobReady(ctx context.Context, jobID uuid.UUID, processID string) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	jobs       JobStore
	schedules  ScheduleStore
	processes  *process.Registry
	publisher  ReadyPublisher
	presigner  storage.Presigner
	presignTTL time.Duration
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs      JobStore
	Schedules ScheduleStore
	Processes *process.Registry

	// Publisher — опционально; без него воркеры найдут job через polling.
	Publisher ReadyPublisher

	// Presigner — опционально; нужен для артефактов в объектном хранилище.
	Presigner  storage.Presigner
	PresignTTL time.Duration

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	processes := cfg.Processes
	if processes == nil {
		processes = process.NewRegistry()
	}

	return &Handler{
		jobs:       cfg.Jobs,
		schedules:  cfg.Schedules,
		processes:  processes,
		publisher:  cfg.Publisher,
		presigner:  cfg.Presigner,
		presignTTL: ttl,
		logger:     telemetry.OrDefault(cfg.Logger),
	}
}
