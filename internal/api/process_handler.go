package api

import (
	"net/http"
)

// ListProcesses возвращает краткие описания процессов.
// GET /api/v1/processes
func (h *Handler) ListProcesses(w http.ResponseWriter, _ *http.Request) {
	descs := h.processes.List()

	result := make([]ProcessSummary, len(descs))
	for i, d := range descs {
		result[i] = ProcessSummaryFromDescription(d)
	}

	List(w, result, len(result))
}

// GetProcess возвращает полное описание процесса: входы, выходы, метаданные.
// GET /api/v1/processes/{id}
func (h *Handler) GetProcess(w http.ResponseWriter, r *http.Request) {
	p, err := h.processes.Get(r.PathValue("id"))
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, p.Description())
}
