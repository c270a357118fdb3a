package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Schedule — периодический запуск диагностики с фиксированными входами,
// например ежедневный perfmetrics по свежим данным архива.
//
// Триггер — cron-выражение в Timezone или интервал в секундах.
// Если задано оба, действует cron.
type Schedule struct {
	ID        uuid.UUID `json:"id"`
	ProcessID string    `json:"process_id"`
	Name      string    `json:"name,omitempty"`

	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone"`

	Enabled bool `json:"enabled"`

	// AllowOverlap разрешает новый job, пока предыдущий ещё в очереди или
	// выполняется. Без него такой тик пропускается.
	AllowOverlap bool `json:"allow_overlap"`

	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastJobID *uuid.UUID `json:"last_job_id,omitempty"`

	// LastJob — состояние последнего job на момент чтения.
	LastJob *JobSummary `json:"last_job,omitempty"`

	// SkippedRuns — тики, пропущенные из-за незавершённого job.
	SkippedRuns int `json:"skipped_runs"`

	// Inputs копируются в каждый созданный job.
	Inputs map[string]any `json:"inputs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobSummary — краткое состояние job.
type JobSummary struct {
	ID            uuid.UUID  `json:"id"`
	Status        JobStatus  `json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// NewSchedule создаёт включённое расписание в UTC.
// Триггер задаётся отдельно.
func NewSchedule(processID, name string, inputs map[string]any, now time.Time) *Schedule {
	if inputs == nil {
		inputs = make(map[string]any)
	}
	return &Schedule{
		ID:        uuid.New(),
		ProcessID: processID,
		Name:      name,
		Timezone:  "UTC",
		Enabled:   true,
		Inputs:    inputs,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// Interval возвращает интервал запуска.
func (s *Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalSec) * time.Second
}

// Trigger описывает триггер для людей: "cron 0 3 * * * UTC" или "every 10m0s".
func (s *Schedule) Trigger() string {
	switch {
	case s.IsCron():
		return fmt.Sprintf("cron %s %s", s.CronExpr, s.Timezone)
	case s.IsInterval():
		return "every " + s.Interval().String()
	default:
		return ""
	}
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// Busy возвращает true, если новый job создавать нельзя:
// предыдущий не завершён, а перекрытие запрещено.
func (s *Schedule) Busy() bool {
	return !s.AllowOverlap && s.LastJob != nil && !s.LastJob.Status.IsTerminal()
}

// NewJob создаёт QUEUED job для срабатывания на момент dueAt.
// Ключ идемпотентности — IdempotencyKey(dueAt).
func (s *Schedule) NewJob(dueAt time.Time) *Job {
	job := s.ManualJob()
	job.IdempotencyKey = s.IdempotencyKey(dueAt)
	return job
}

// ManualJob создаёт QUEUED job для запуска вне расписания, без ключа идемпотентности.
// Входы копируются.
func (s *Schedule) ManualJob() *Job {
	inputs := make(map[string]any, len(s.Inputs))
	for k, v := range s.Inputs {
		inputs[k] = v
	}
	return NewJob(s.ProcessID, inputs)
}

// RecordRun запоминает созданный job. nextDue nil оставляет NextDueAt как есть.
func (s *Schedule) RecordRun(job *Job, nextDue *time.Time) {
	now := time.Now()
	summary := job.Summary()
	s.LastRunAt = &now
	s.LastJobID = &job.ID
	s.LastJob = &summary
	if nextDue != nil {
		s.NextDueAt = nextDue
	}
	s.UpdatedAt = now
}

// RecordSkip сдвигает NextDueAt без создания job.
func (s *Schedule) RecordSkip(nextDue time.Time) {
	s.SkippedRuns++
	s.NextDueAt = &nextDue
	s.UpdatedAt = time.Now()
}

// IdempotencyKey возвращает ключ для job, созданного на момент dueAt.
// Повторная обработка того же тика не создаёт дубликат.
func (s *Schedule) IdempotencyKey(dueAt time.Time) string {
	return s.ID.String() + "_" + dueAt.UTC().Format(time.RFC3339)
}
