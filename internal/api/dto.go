package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/process"
)

// Process DTOs

// ProcessSummary — краткое описание процесса для списка.
type ProcessSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Version  string `json:"version"`
}

// ProcessSummaryFromDescription конвертирует описание процесса.
func ProcessSummaryFromDescription(d process.Description) ProcessSummary {
	return ProcessSummary{
		ID:       d.ID,
		Title:    d.Title,
		Abstract: d.Abstract,
		Version:  d.Version,
	}
}

// Job DTOs

// SubmitJobRequest — запрос на выполнение процесса.
type SubmitJobRequest struct {
	Inputs         map[string]any `json:"inputs,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID             uuid.UUID         `json:"id"`
	ProcessID      string            `json:"process_id"`
	Status         string            `json:"status"`
	Progress       int               `json:"progress"`
	StatusMessage  string            `json:"status_message,omitempty"`
	Inputs         map[string]any    `json:"inputs,omitempty"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	Error          string            `json:"error,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
func JobFromDomain(j domain.Job) JobResponse {
	return JobResponse{
		ID:             j.ID,
		ProcessID:      j.ProcessID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		StatusMessage:  j.StatusMessage,
		Inputs:         j.Inputs,
		Outputs:        j.Outputs,
		Error:          j.Error,
		IdempotencyKey: j.IdempotencyKey,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
		CreatedAt:      j.CreatedAt,
	}
}

// LiteralOutput — значение литерального результата (например, success).
type LiteralOutput struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
// ProcessID берётся из пути, если schedule создаётся через /processes/{id}/schedules.
// Enabled по умолчанию true.
type CreateScheduleRequest struct {
	ProcessID    string         `json:"process_id,omitempty"`
	Name         string         `json:"name"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	IntervalSec  int            `json:"interval_sec,omitempty"`
	Timezone     string         `json:"timezone,omitempty"`
	Enabled      *bool          `json:"enabled,omitempty"`
	AllowOverlap bool           `json:"allow_overlap,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty"`
}

// UpdateScheduleRequest — частичное обновление schedule.
type UpdateScheduleRequest struct {
	Name         *string         `json:"name,omitempty"`
	CronExpr     *string         `json:"cron_expr,omitempty"`
	IntervalSec  *int            `json:"interval_sec,omitempty"`
	Timezone     *string         `json:"timezone,omitempty"`
	AllowOverlap *bool           `json:"allow_overlap,omitempty"`
	Inputs       *map[string]any `json:"inputs,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — schedule с описанием триггера и последним job.
type ScheduleResponse struct {
	ID           uuid.UUID          `json:"id"`
	ProcessID    string             `json:"process_id"`
	Name         string             `json:"name"`
	Trigger      string             `json:"trigger"`
	CronExpr     string             `json:"cron_expr,omitempty"`
	IntervalSec  int                `json:"interval_sec,omitempty"`
	Timezone     string             `json:"timezone"`
	Enabled      bool               `json:"enabled"`
	AllowOverlap bool               `json:"allow_overlap"`
	NextDueAt    *time.Time         `json:"next_due_at,omitempty"`
	LastRunAt    *time.Time         `json:"last_run_at,omitempty"`
	LastJob      *domain.JobSummary `json:"last_job,omitempty"`
	SkippedRuns  int                `json:"skipped_runs"`
	Inputs       map[string]any     `json:"inputs,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
// Последний job без прочитанного состояния отдаётся только с ID.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	last := s.LastJob
	if last == nil && s.LastJobID != nil {
		last = &domain.JobSummary{ID: *s.LastJobID}
	}
	return ScheduleResponse{
		ID:           s.ID,
		ProcessID:    s.ProcessID,
		Name:         s.Name,
		Trigger:      s.Trigger(),
		CronExpr:     s.CronExpr,
		IntervalSec:  s.IntervalSec,
		Timezone:     s.Timezone,
		Enabled:      s.Enabled,
		AllowOverlap: s.AllowOverlap,
		NextDueAt:    s.NextDueAt,
		LastRunAt:    s.LastRunAt,
		LastJob:      last,
		SkippedRuns:  s.SkippedRuns,
		Inputs:       s.Inputs,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
