package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/scheduler"
)

// ListSchedules возвращает расписания вместе с состоянием их последнего job.
// GET /api/v1/schedules?process=...&enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.ScheduleFilter{ProcessID: q.Get("process")}
	if v := q.Get("enabled"); v != "" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}

	limit, offset, err := pagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	filter.Limit, filter.Offset = limit, offset

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(&schedules[i])
	}
	List(w, result, len(result))
}

// CreateSchedule создаёт расписание запуска процесса.
// POST /api/v1/schedules
// POST /api/v1/processes/{id}/schedules
//
// Входы проверяются по описанию процесса так же, как при запуске job.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if id := r.PathValue("id"); id != "" {
		req.ProcessID = id
	}
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.CronExpr == "" && req.IntervalSec <= 0 {
		BadRequest(w, "either cron_expr or interval_sec is required")
		return
	}
	if !h.validInputs(w, req.ProcessID, req.Inputs) {
		return
	}

	now := time.Now().UTC()
	schedule := domain.NewSchedule(req.ProcessID, req.Name, req.Inputs, now)
	schedule.CronExpr = req.CronExpr
	schedule.IntervalSec = req.IntervalSec
	schedule.AllowOverlap = req.AllowOverlap
	if req.Timezone != "" {
		schedule.Timezone = req.Timezone
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}
	if !h.plan(w, schedule, now) {
		return
	}

	if err := h.schedules.Create(r.Context(), schedule); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("schedule created",
		"schedule_id", schedule.ID,
		"process", schedule.ProcessID,
		"trigger", schedule.Trigger(),
		"next_due_at", schedule.NextDueAt,
	)
	Created(w, ScheduleFromDomain(schedule))
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}
	Success(w, ScheduleFromDomain(schedule))
}

// UpdateSchedule обновляет schedule.
// PUT /api/v1/schedules/{id}
//
// Изменение триггера или timezone пересчитывает next_due_at.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}

	replan := req.CronExpr != nil || req.IntervalSec != nil || req.Timezone != nil
	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.CronExpr != nil {
		schedule.CronExpr = *req.CronExpr
	}
	if req.IntervalSec != nil {
		schedule.IntervalSec = *req.IntervalSec
	}
	if req.Timezone != nil {
		schedule.Timezone = *req.Timezone
	}
	if req.AllowOverlap != nil {
		schedule.AllowOverlap = *req.AllowOverlap
	}
	if req.Inputs != nil {
		if !h.validInputs(w, schedule.ProcessID, *req.Inputs) {
			return
		}
		schedule.Inputs = *req.Inputs
	}

	now := time.Now().UTC()
	if replan && !h.plan(w, schedule, now) {
		return
	}
	schedule.UpdatedAt = now

	if err := h.schedules.Update(r.Context(), schedule); HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	Success(w, ScheduleFromDomain(schedule))
}

// DeleteSchedule удаляет schedule. Созданные им jobs остаются.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}
	if err := h.schedules.Delete(r.Context(), id); HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
// PUT /api/v1/schedules/{id}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req SetEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.schedules.SetEnabled(r.Context(), id, req.Enabled); HandleError(w, h.logger, err, "schedule not found") {
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "schedule not found") {
		return
	}
	Success(w, ScheduleFromDomain(schedule))
}

// RunSchedule запускает процесс расписания сейчас, не дожидаясь next_due_at.
// POST /api/v1/schedules/{id}/run[?force=true]
//
// Пока предыдущий job не завершён и перекрытие запрещено, запуск отклоняется
// с INVALID_STATE; force снимает проверку. next_due_at не меняется.
func (h *Handler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}
	if schedule.Busy() && r.URL.Query().Get("force") != "true" {
		InvalidState(w, fmt.Sprintf("previous job %s is still %s", schedule.LastJob.ID, schedule.LastJob.Status))
		return
	}
	if _, err := h.processes.Get(schedule.ProcessID); HandleError(w, h.logger, err, "") {
		return
	}

	job := schedule.ManualJob()
	if err := h.jobs.Create(r.Context(), job); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	logger := h.logger.With("schedule_id", schedule.ID, "job_id", job.ID)
	schedule.RecordRun(job, nil)
	if err := h.schedules.UpdateAfterRun(r.Context(), schedule); err != nil {
		logger.Warn("failed to record manual run on schedule", "error", err)
	}

	if h.publisher != nil {
		if err := h.publisher.PublishJobReady(r.Context(), job.ID, job.ProcessID); err != nil {
			logger.Warn("failed to publish job.ready", "error", err)
		}
	}

	logger.Info("schedule run manually", "process", job.ProcessID)
	Created(w, JobFromDomain(*job))
}

// loadSchedule читает schedule из пути {id}. При ошибке пишет ответ.
func (h *Handler) loadSchedule(w http.ResponseWriter, r *http.Request) (*domain.Schedule, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return nil, false
	}
	schedule, err := h.schedules.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "schedule not found") {
		return nil, false
	}
	return schedule, true
}

// validInputs проверяет входы по описанию процесса. При ошибке пишет ответ.
func (h *Handler) validInputs(w http.ResponseWriter, processID string, inputs map[string]any) bool {
	p, err := h.processes.Get(processID)
	if HandleError(w, h.logger, err, "") {
		return false
	}
	_, err = p.Description().Parse(inputs)
	return !HandleError(w, h.logger, err, "")
}

// plan проверяет расписание и вычисляет next_due_at.
// При ошибке пишет ответ и возвращает false.
func (h *Handler) plan(w http.ResponseWriter, schedule *domain.Schedule, now time.Time) bool {
	if err := scheduler.Validate(schedule); HandleError(w, h.logger, err, "") {
		return false
	}
	next, err := scheduler.InitialNextDue(schedule, now)
	if HandleError(w, h.logger, err, "") {
		return false
	}
	schedule.NextDueAt = &next
	return true
}
