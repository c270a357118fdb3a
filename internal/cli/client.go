package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ProcessSummary — процесс в списке.
type ProcessSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Version  string `json:"version"`
}

// ProcessInput — описание входного параметра.
type ProcessInput struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Default       string   `json:"default,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Range         *struct {
		Min int `json:"min"`
		Max int `json:"max"`
	} `json:"range,omitempty"`
	Required bool `json:"required,omitempty"`
}

// ProcessOutput — описание результата.
type ProcessOutput struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	MimeType string `json:"mime_type"`
	Literal  bool   `json:"literal,omitempty"`
}

// ProcessDescription — полное описание процесса.
type ProcessDescription struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Abstract string          `json:"abstract"`
	Version  string          `json:"version"`
	Inputs   []ProcessInput  `json:"inputs"`
	Outputs  []ProcessOutput `json:"outputs"`
}

// JobResponse — job из API.
type JobResponse struct {
	ID             string            `json:"id"`
	ProcessID      string            `json:"process_id"`
	Status         string            `json:"status"`
	Progress       int               `json:"progress"`
	StatusMessage  string            `json:"status_message,omitempty"`
	Inputs         map[string]any    `json:"inputs,omitempty"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	Error          string            `json:"error,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	StartedAt      string            `json:"started_at,omitempty"`
	FinishedAt     string            `json:"finished_at,omitempty"`
	CreatedAt      string            `json:"created_at"`
}

// IsFinished возвращает true для финальных статусов.
func (j *JobResponse) IsFinished() bool {
	switch j.Status {
	case "SUCCEEDED", "FAILED", "CANCELLED":
		return true
	}
	return false
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID           string         `json:"id"`
	ProcessID    string         `json:"process_id"`
	Name         string         `json:"name"`
	Trigger      string         `json:"trigger"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	IntervalSec  int            `json:"interval_sec,omitempty"`
	Timezone     string         `json:"timezone"`
	Enabled      bool           `json:"enabled"`
	AllowOverlap bool           `json:"allow_overlap"`
	NextDueAt    string         `json:"next_due_at,omitempty"`
	LastRunAt    string         `json:"last_run_at,omitempty"`
	LastJob      *LastJob       `json:"last_job,omitempty"`
	SkippedRuns  int            `json:"skipped_runs"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// LastJob — состояние последнего job расписания.
type LastJob struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message,omitempty"`
	FinishedAt    string `json:"finished_at,omitempty"`
}

// --- Request types ---

// SubmitJobRequest — запуск процесса.
type SubmitJobRequest struct {
	Inputs         map[string]any `json:"inputs,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
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

// ListJobsOpts — параметры фильтрации jobs.
type ListJobsOpts struct {
	ProcessID string
	Status    string
	Limit     int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Copernicus API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Processes ---

// ListProcesses возвращает доступные процессы.
func (c *Client) ListProcesses() ([]ProcessSummary, error) {
	var processes []ProcessSummary
	err := c.get("/api/v1/processes", &processes)
	return processes, err
}

// DescribeProcess возвращает описание процесса.
func (c *Client) DescribeProcess(id string) (*ProcessDescription, error) {
	var desc ProcessDescription
	err := c.get("/api/v1/processes/"+url.PathEscape(id), &desc)
	return &desc, err
}

// --- Jobs ---

// SubmitJob ставит процесс в очередь.
func (c *Client) SubmitJob(processID string, req SubmitJobRequest) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/v1/processes/"+url.PathEscape(processID)+"/jobs", req, &job)
	return &job, err
}

// ListJobs возвращает список jobs с фильтрацией.
func (c *Client) ListJobs(opts ListJobsOpts) ([]JobResponse, error) {
	params := url.Values{}
	if opts.ProcessID != "" {
		params.Set("process", opts.ProcessID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/api/v1/jobs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var jobs []JobResponse
	err := c.get(path, &jobs)
	return jobs, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// CancelJob отменяет job в очереди.
func (c *Client) CancelJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, &job)
	return &job, err
}

// DownloadOutput пишет артефакт job в w. Литеральный результат
// пишется как значение с переводом строки. Редирект на объектное
// хранилище выполняется автоматически.
func (c *Client) DownloadOutput(jobID, name string, w io.Writer) error {
	resp, err := c.do(http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID)+"/outputs/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var dr dataResponse
		if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
			return fmt.Errorf("failed to decode literal output: %w", err)
		}
		var lit struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(dr.Data, &lit); err != nil {
			return fmt.Errorf("failed to decode literal output: %w", err)
		}
		_, err := fmt.Fprintln(w, lit.Value)
		return err
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read output: %w", err)
	}
	return nil
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если processID не пустой — фильтрует.
func (c *Client) ListSchedules(processID string) ([]ScheduleResponse, error) {
	path := "/api/v1/schedules"
	if processID != "" {
		path += "?" + url.Values{"process": {processID}}.Encode()
	}

	var schedules []ScheduleResponse
	err := c.get(path, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для процесса.
func (c *Client) CreateSchedule(processID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/processes/"+url.PathEscape(processID)+"/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+url.PathEscape(id), &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет schedule.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.doData(http.MethodPut, "/api/v1/schedules/"+url.PathEscape(id), req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.doData(http.MethodDelete, "/api/v1/schedules/"+url.PathEscape(id), nil, nil)
}

// SetScheduleEnabled включает или выключает schedule.
func (c *Client) SetScheduleEnabled(id string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.doData(http.MethodPut, "/api/v1/schedules/"+url.PathEscape(id)+"/enabled", body, &schedule)
	return &schedule, err
}

// RunSchedule запускает процесс расписания вне очереди.
// force запускает даже при незавершённом предыдущем job.
func (c *Client) RunSchedule(id string, force bool) (*JobResponse, error) {
	path := "/api/v1/schedules/" + url.PathEscape(id) + "/run"
	if force {
		path += "?force=true"
	}
	var job JobResponse
	err := c.post(path, nil, &job)
	return &job, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

// doData выполняет запрос и разворачивает поле data ответа.
// Списки и одиночные ресурсы приходят в одном конверте.
func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
