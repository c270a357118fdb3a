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

// scheduleSelect читает schedule вместе с состоянием последнего job.
const scheduleSelect = `
	SELECT s.id, s.process_id, s.name, s.cron_expr, s.interval_sec, s.timezone,
	       s.enabled, s.allow_overlap, s.skipped_runs, s.next_due_at, s.last_run_at,
	       s.last_job_id, s.inputs, s.created_at, s.updated_at,
	       j.status::text, j.status_message, j.finished_at
	FROM schedules s
	LEFT JOIN jobs j ON j.id = s.last_job_id
`

// ScheduleRepo — репозиторий расписаний.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// ScheduleFilter — параметры фильтрации schedules.
type ScheduleFilter struct {
	ProcessID string
	Enabled   *bool
	Limit     int
	Offset    int
}

// Create сохраняет новое расписание.
func (r *ScheduleRepo) Create(ctx context.Context, s *domain.Schedule) error {
	inputs, err := json.Marshal(s.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO schedules (id, process_id, name, cron_expr, interval_sec, timezone,
		                       enabled, allow_overlap, next_due_at, inputs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		s.ID, s.ProcessID, nullString(s.Name), nullString(s.CronExpr), nullInt(s.IntervalSec),
		s.Timezone, s.Enabled, s.AllowOverlap, s.NextDueAt, inputs, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	return scanSchedule(r.pool.QueryRow(ctx, scheduleSelect+`WHERE s.id = $1`, id))
}

// List возвращает расписания, новые первыми.
func (r *ScheduleRepo) List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, scheduleSelect+`
		WHERE ($1::text IS NULL OR s.process_id = $1)
		  AND ($2::boolean IS NULL OR s.enabled = $2)
		ORDER BY s.created_at DESC
		LIMIT $3 OFFSET $4
	`, nullString(filter.ProcessID), filter.Enabled, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListDue возвращает включённые расписания с next_due_at <= now, самые просроченные первыми.
// Busy() у результата отражает состояние последнего job на момент запроса.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, scheduleSelect+`
		WHERE s.enabled AND s.next_due_at <= $1
		ORDER BY s.next_due_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// Update сохраняет изменяемые пользователем поля и план запуска.
func (r *ScheduleRepo) Update(ctx context.Context, s *domain.Schedule) error {
	inputs, err := json.Marshal(s.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET name = $2, cron_expr = $3, interval_sec = $4, timezone = $5, enabled = $6,
		    allow_overlap = $7, next_due_at = $8, inputs = $9, updated_at = $10
		WHERE id = $1
	`,
		s.ID, nullString(s.Name), nullString(s.CronExpr), nullInt(s.IntervalSec), s.Timezone,
		s.Enabled, s.AllowOverlap, s.NextDueAt, inputs, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAfterRun сохраняет результат срабатывания: последний job,
// счётчик пропусков и следующий запуск.
func (r *ScheduleRepo) UpdateAfterRun(ctx context.Context, s *domain.Schedule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET next_due_at = $2, last_run_at = $3, last_job_id = $4, skipped_runs = $5, updated_at = $6
		WHERE id = $1
	`, s.ID, s.NextDueAt, s.LastRunAt, s.LastJobID, s.SkippedRuns, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update after run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule. Созданные им jobs остаются.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает или выключает schedule.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	var name, cronExpr, jobStatus, jobMessage *string
	var intervalSec *int
	var jobFinished *time.Time
	var inputs []byte

	err := row.Scan(
		&s.ID, &s.ProcessID, &name, &cronExpr, &intervalSec, &s.Timezone,
		&s.Enabled, &s.AllowOverlap, &s.SkippedRuns, &s.NextDueAt, &s.LastRunAt,
		&s.LastJobID, &inputs, &s.CreatedAt, &s.UpdatedAt,
		&jobStatus, &jobMessage, &jobFinished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	s.Name = deref(name)
	s.CronExpr = deref(cronExpr)
	if intervalSec != nil {
		s.IntervalSec = *intervalSec
	}
	if inputs != nil {
		if err := json.Unmarshal(inputs, &s.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if s.LastJobID != nil && jobStatus != nil {
		s.LastJob = &domain.JobSummary{
			ID:            *s.LastJobID,
			Status:        domain.JobStatus(*jobStatus),
			StatusMessage: deref(jobMessage),
			FinishedAt:    jobFinished,
		}
	}

	return &s, nil
}
