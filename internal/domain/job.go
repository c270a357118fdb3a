package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job — один запуск диагностического процесса.
//
// Job создаётся когда:
// - Пользователь отправляет запрос на выполнение процесса (через API/CLI)
// - Scheduler создаёт job по расписанию
//
// Каждый job владеет собственной рабочей директорией и никогда
// не переиспользует её: toolchain отказывается перезаписывать run_dir.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// ProcessID — идентификатор процесса ("perfmetrics", "rainfarm", ...).
	ProcessID string `json:"process_id"`

	// Status — текущий статус выполнения.
	Status JobStatus `json:"status"`

	// Inputs — входные параметры запроса (model, experiment, start_year, ...).
	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs — артефакты результата: логическое имя → путь к файлу или ссылка.
	// Заполняется Worker'ом. Для неуспешного job содержит только log.
	Outputs map[string]string `json:"outputs,omitempty"`

	// Progress — процент выполнения (0..100).
	Progress int `json:"progress"`

	// StatusMessage — последнее сообщение о ходе выполнения ("running diagnostic ...").
	StatusMessage string `json:"status_message,omitempty"`

	// Workdir — рабочая директория job на узле воркера.
	Workdir string `json:"workdir,omitempty"`

	// LogFile — путь к подробному логу toolchain (если есть).
	LogFile string `json:"log_file,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — человекочитаемое сообщение об ошибке, если job завершился с FAILED.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для предотвращения дубликатов.
	// Для scheduled jobs: "{schedule_id}_{next_due_at}"
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`
}

// NewJob создаёт job в статусе QUEUED.
func NewJob(processID string, inputs map[string]any) *Job {
	if inputs == nil {
		inputs = make(map[string]any)
	}
	return &Job{
		ID:        uuid.New(),
		ProcessID: processID,
		Status:    JobStatusQueued,
		Inputs:    inputs,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если job ещё не завершён.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// Turnaround возвращает время от постановки в очередь до завершения.
// Возвращает 0, если job ещё не завершён.
func (j *Job) Turnaround() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.CreatedAt)
}

// Summary возвращает краткое состояние job.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:            j.ID,
		Status:        j.Status,
		StatusMessage: j.StatusMessage,
		FinishedAt:    j.FinishedAt,
	}
}

// IsFinished возвращает true, если job завершён (в любом статусе).
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}

// MarkRunning переводит job в статус RUNNING.
func (j *Job) MarkRunning(workdir string) {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Workdir = workdir
	j.UpdateProgress("starting ...", 0)
}

// UpdateProgress сохраняет сообщение и процент выполнения.
func (j *Job) UpdateProgress(message string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	j.StatusMessage = message
	j.Progress = percent
}

// MarkSucceeded переводит job в статус SUCCEEDED с артефактами.
func (j *Job) MarkSucceeded(outputs map[string]string) {
	now := time.Now()
	j.Status = JobStatusSucceeded
	j.FinishedAt = &now
	j.Outputs = outputs
	j.UpdateProgress("done.", 100)
}

// MarkFailed переводит job в статус FAILED.
// outputs может содержать только log — частичные артефакты не публикуются.
func (j *Job) MarkFailed(err string, outputs map[string]string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	j.Error = err
	j.Outputs = outputs
	j.UpdateProgress("exception occurred: "+err, 100)
}

// MarkCancelled переводит job в статус CANCELLED.
func (j *Job) MarkCancelled() {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.FinishedAt = &now
}
