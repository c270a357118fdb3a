package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Copernicus/internal/domain"
)

const jobColumns = `
	id, process_id, status, inputs, outputs, progress, status_message,
	workdir, log_file, started_at, finished_at, error, idempotency_key, created_at
`

// JobRepo — репозиторий для работы с jobs.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// JobFilter — параметры фильтрации jobs.
type JobFilter struct {
	ProcessID string
	Status    domain.JobStatus
	Limit     int
	Offset    int
}

// Create создаёт новый job.
// Повторный ключ идемпотентности — ErrAlreadyExists.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	inputsJSON, err := json.Marshal(job.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	query := `
		INSERT INTO jobs (id, process_id, status, inputs, progress, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ProcessID,
		job.Status,
		inputsJSON,
		job.Progress,
		nullString(job.IdempotencyKey),
		job.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: job with idempotency key %s", ErrAlreadyExists, job.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает job по ключу идемпотентности.
func (r *JobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key = $1`
	return scanJob(r.pool.QueryRow(ctx, query, key))
}

// List возвращает список jobs с фильтрацией.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE ($1::text IS NULL OR process_id = $1)
		  AND ($2::text IS NULL OR status = $2::job_status)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.ProcessID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListQueued возвращает jobs в статусе QUEUED, старые первыми.
func (r *JobRepo) ListQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'QUEUED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListStale возвращает RUNNING jobs, начатые раньше startedBefore.
func (r *JobRepo) ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'RUNNING' AND started_at < $1
		ORDER BY started_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, startedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return collectJobs(rows)
}

// FinishRunning сохраняет финальное состояние job, только если он ещё RUNNING.
// Иначе — ErrInvalidState.
func (r *JobRepo) FinishRunning(ctx context.Context, job *domain.Job) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, progress = $3, status_message = $4, finished_at = $5, error = $6
		WHERE id = $1 AND status = 'RUNNING'
	`,
		job.ID,
		job.Status,
		job.Progress,
		nullString(job.StatusMessage),
		job.FinishedAt,
		nullString(job.Error),
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Claim атомарно переводит QUEUED job в RUNNING.
//
// Если job уже взят другим воркером или отменён — ErrInvalidState.
func (r *JobRepo) Claim(ctx context.Context, job *domain.Job) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, workdir = $3, progress = $4, status_message = $5, started_at = $6
		WHERE id = $1 AND status = 'QUEUED'
	`,
		job.ID,
		job.Status,
		nullString(job.Workdir),
		job.Progress,
		nullString(job.StatusMessage),
		job.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Update обновляет job.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	outputsJSON, err := json.Marshal(job.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $2, outputs = $3, progress = $4, status_message = $5, workdir = $6,
		    log_file = $7, started_at = $8, finished_at = $9, error = $10
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		outputsJSON,
		job.Progress,
		nullString(job.StatusMessage),
		nullString(job.Workdir),
		nullString(job.LogFile),
		job.StartedAt,
		job.FinishedAt,
		nullString(job.Error),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress сохраняет сообщение и процент выполнения.
func (r *JobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, message string, percent int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status_message = $2, progress = $3 WHERE id = $1
	`, id, message, percent)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel отменяет job, который ещё не начал выполняться.
func (r *JobRepo) Cancel(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		UPDATE jobs SET status = 'CANCELLED', finished_at = NOW()
		WHERE id = $1 AND status = 'QUEUED'
		RETURNING ` + jobColumns
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, ErrNotFound) {
		// Отличаем "нет такого job" от "job уже выполняется"
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidState
	}
	return job, err
}

// --- Helpers ---

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// scanJob сканирует одну строку в Job. pgx.Rows тоже реализует pgx.Row.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var inputsJSON, outputsJSON []byte
	var statusMessage, workdir, logFile, jobError, idempotencyKey *string

	err := row.Scan(
		&job.ID,
		&job.ProcessID,
		&job.Status,
		&inputsJSON,
		&outputsJSON,
		&job.Progress,
		&statusMessage,
		&workdir,
		&logFile,
		&job.StartedAt,
		&job.FinishedAt,
		&jobError,
		&idempotencyKey,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if inputsJSON != nil {
		if err := json.Unmarshal(inputsJSON, &job.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &job.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}

	job.StatusMessage = deref(statusMessage)
	job.Workdir = deref(workdir)
	job.LogFile = deref(logFile)
	job.Error = deref(jobError)
	job.IdempotencyKey = deref(idempotencyKey)

	return &job, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
