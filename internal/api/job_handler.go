package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/storage"
)

// SubmitJob ставит процесс в очередь на выполнение.
// POST /api/v1/processes/{id}/jobs
//
// Повторный запрос с тем же idempotency_key возвращает существующий job (200).
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	p, err := h.processes.Get(r.PathValue("id"))
	if HandleError(w, h.logger, err, "") {
		return
	}
	processID := p.Description().ID

	var req SubmitJobRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	if _, err := p.Description().Parse(req.Inputs); HandleError(w, h.logger, err, "") {
		return
	}

	if req.IdempotencyKey != "" {
		existing, err := h.jobs.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
		switch {
		case err == nil && existing.ProcessID != processID:
			Conflict(w, "idempotency key is used by another process")
			return
		case err == nil:
			Success(w, JobFromDomain(*existing))
			return
		case !errors.Is(err, repo.ErrNotFound):
			InternalError(w, h.logger, err)
			return
		}
	}

	job := domain.NewJob(processID, req.Inputs)
	job.IdempotencyKey = req.IdempotencyKey

	if err := h.jobs.Create(r.Context(), job); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			existing, getErr := h.jobs.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
			if HandleError(w, h.logger, getErr, "job not found") {
				return
			}
			Success(w, JobFromDomain(*existing))
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishJobReady(r.Context(), job.ID, job.ProcessID); err != nil {
			h.logger.Warn("failed to publish job.ready", "job_id", job.ID, "error", err)
		}
	}

	h.logger.Info("job submitted", "job_id", job.ID, "process", processID)
	Created(w, JobFromDomain(*job))
}

// ListJobs возвращает список jobs с фильтрацией.
// GET /api/v1/jobs?process=...&status=...&limit=...&offset=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := repo.JobFilter{ProcessID: r.URL.Query().Get("process")}

	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := domain.ParseJobStatus(strings.ToUpper(s))
		if !ok {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = status
	}

	limit, offset, err := pagination(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	filter.Limit, filter.Offset = limit, offset

	jobs, err := h.jobs.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		result[i] = JobFromDomain(j)
	}

	List(w, result, len(result))
}

// GetJob возвращает job по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(*job))
}

// CancelJob отменяет job, который ещё не начал выполняться.
// POST /api/v1/jobs/{id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.jobs.Cancel(r.Context(), id)
	if errors.Is(err, repo.ErrInvalidState) {
		InvalidState(w, "job is already running or finished")
		return
	}
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(*job))
}

// GetJobOutput отдаёт артефакт job.
// GET /api/v1/jobs/{id}/outputs/{name}
//
// Литерал возвращается как JSON, объект в хранилище — редиректом
// на временную ссылку, локальный файл — содержимым.
func (h *Handler) GetJobOutput(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}
	name := r.PathValue("name")

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	value, ok := job.Outputs[name]
	if !ok {
		NotFound(w, "output not found")
		return
	}

	if p, err := h.processes.Get(job.ProcessID); err == nil {
		if out, ok := p.Description().Output(name); ok && out.Literal {
			Success(w, LiteralOutput{Name: name, Value: value})
			return
		}
	}

	if storage.IsRemote(value) {
		if h.presigner == nil {
			InvalidState(w, "object storage is not configured")
			return
		}
		url, err := h.presigner.PresignGet(r.Context(), value, h.presignTTL)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	if !within(job.Workdir, value) {
		NotFound(w, "output not found")
		return
	}
	w.Header().Set("Content-Type", storage.ContentType(value))
	http.ServeFile(w, r, value)
}

// within проверяет, что path лежит внутри dir.
func within(dir, path string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
