package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/process"
	"github.com/shaiso/Copernicus/internal/repo"
)

// --- Fakes ---

type memJobs struct {
	jobs map[uuid.UUID]*domain.Job
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	for _, j := range m.jobs {
		if job.IdempotencyKey != "" && j.IdempotencyKey == job.IdempotencyKey {
			return repo.ErrAlreadyExists
		}
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return j, nil
}

func (m *memJobs) GetByIdempotencyKey(_ context.Context, key string) (*domain.Job, error) {
	for _, j := range m.jobs {
		if j.IdempotencyKey == key {
			return j, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memJobs) List(_ context.Context, filter repo.JobFilter) ([]domain.Job, error) {
	var out []domain.Job
	for _, j := range m.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (m *memJobs) Cancel(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if j.Status != domain.JobStatusQueued {
		return nil, repo.ErrInvalidState
	}
	j.MarkCancelled()
	return j, nil
}

type memSchedules struct {
	schedules map[uuid.UUID]*domain.Schedule
	jobs      *memJobs
}

func (m *memSchedules) Create(_ context.Context, s *domain.Schedule) error {
	m.schedules[s.ID] = s
	return nil
}

func (m *memSchedules) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	s, ok := m.schedules[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if s.LastJobID != nil {
		if j, ok := m.jobs.jobs[*s.LastJobID]; ok {
			summary := j.Summary()
			s.LastJob = &summary
		}
	}
	return s, nil
}

func (m *memSchedules) List(context.Context, repo.ScheduleFilter) ([]domain.Schedule, error) {
	var out []domain.Schedule
	for _, s := range m.schedules {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSchedules) Update(_ context.Context, s *domain.Schedule) error {
	if _, ok := m.schedules[s.ID]; !ok {
		return repo.ErrNotFound
	}
	m.schedules[s.ID] = s
	return nil
}

func (m *memSchedules) UpdateAfterRun(_ context.Context, s *domain.Schedule) error {
	if _, ok := m.schedules[s.ID]; !ok {
		return repo.ErrNotFound
	}
	m.schedules[s.ID] = s
	return nil
}

func (m *memSchedules) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.schedules[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *memSchedules) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	s, ok := m.schedules[id]
	if !ok {
		return repo.ErrNotFound
	}
	s.Enabled = enabled
	return nil
}

type readyRecorder struct{ ids []uuid.UUID }

func (r *readyRecorder) PublishJobReady(_ context.Context, id uuid.UUID, _ string) error {
	r.ids = append(r.ids, id)
	return nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGet(_ context.Context, location string, _ time.Duration) (string, error) {
	return "https://minio.example/" + strings.TrimPrefix(location, "s3://") + "?sig=1", nil
}

type stubProcess struct{}

func (stubProcess) Description() process.Description {
	return process.Description{
		ID:    "perfmetrics",
		Title: "Performance of CMIP5 models",
		Inputs: []process.Input{
			{Name: "model", Type: process.TypeString, Default: "MPI-ESM-LR", AllowedValues: []string{"MPI-ESM-LR", "MPI-ESM-MR"}},
			{Name: "start_year", Type: process.TypeInteger, Default: "2000", Range: &process.Range{Min: 1850, Max: 2100}},
		},
		Outputs: []process.Output{
			{Name: "output", MimeType: "application/pdf"},
			{Name: "log", MimeType: "text/plain"},
			{Name: "success", MimeType: "text/plain", Literal: true},
		},
	}
}

func (stubProcess) Execute(context.Context, *process.Request) (*process.Result, error) {
	return nil, nil
}

type testAPI struct {
	server    *httptest.Server
	jobs      *memJobs
	schedules *memSchedules
	ready     *readyRecorder
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	registry := process.NewRegistry()
	registry.Register(stubProcess{})

	jobs := &memJobs{jobs: map[uuid.UUID]*domain.Job{}}
	ta := &testAPI{
		jobs:      jobs,
		schedules: &memSchedules{schedules: map[uuid.UUID]*domain.Schedule{}, jobs: jobs},
		ready:     &readyRecorder{},
	}
	h := NewHandler(Config{
		Jobs:      ta.jobs,
		Schedules: ta.schedules,
		Processes: registry,
		Publisher: ta.ready,
		Presigner: fakePresigner{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	ta.server = httptest.NewServer(mux)
	t.Cleanup(ta.server.Close)
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ta.server.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Data
}

// --- Tests ---

func TestProcesses(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodGet, "/api/v1/processes", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decodeData[[]ProcessSummary](t, resp)
	want := []ProcessSummary{{ID: "perfmetrics", Title: "Performance of CMIP5 models"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("processes mismatch (-want +got):\n%s", diff)
	}

	resp = ta.do(t, http.MethodGet, "/api/v1/processes/perfmetrics", nil)
	desc := decodeData[process.Description](t, resp)
	if len(desc.Inputs) != 2 || desc.Inputs[1].Range.Max != 2100 {
		t.Errorf("description inputs = %+v", desc.Inputs)
	}

	if resp := ta.do(t, http.MethodGet, "/api/v1/processes/simple_plot", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown process status = %d", resp.StatusCode)
	}
}

func TestSubmitJob(t *testing.T) {
	ta := newTestAPI(t)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"valid", "/api/v1/processes/perfmetrics/jobs", SubmitJobRequest{Inputs: map[string]any{"model": "MPI-ESM-MR"}}, http.StatusCreated},
		{"empty body", "/api/v1/processes/perfmetrics/jobs", nil, http.StatusCreated},
		{"disallowed value", "/api/v1/processes/perfmetrics/jobs", SubmitJobRequest{Inputs: map[string]any{"model": "HadGEM2"}}, http.StatusBadRequest},
		{"out of range", "/api/v1/processes/perfmetrics/jobs", SubmitJobRequest{Inputs: map[string]any{"start_year": 1700}}, http.StatusBadRequest},
		{"unknown input", "/api/v1/processes/perfmetrics/jobs", SubmitJobRequest{Inputs: map[string]any{"colour": "red"}}, http.StatusBadRequest},
		{"unknown process", "/api/v1/processes/nope/jobs", SubmitJobRequest{}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ta.do(t, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}

	if len(ta.jobs.jobs) != 2 || len(ta.ready.ids) != 2 {
		t.Errorf("jobs = %d, job.ready = %d, want 2 each", len(ta.jobs.jobs), len(ta.ready.ids))
	}
}

func TestSubmitJob_Idempotent(t *testing.T) {
	ta := newTestAPI(t)
	body := SubmitJobRequest{IdempotencyKey: "nightly-2024-03-01"}

	first := ta.do(t, http.MethodPost, "/api/v1/processes/perfmetrics/jobs", body)
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d", first.StatusCode)
	}
	created := decodeData[JobResponse](t, first)

	second := ta.do(t, http.MethodPost, "/api/v1/processes/perfmetrics/jobs", body)
	if second.StatusCode != http.StatusOK {
		t.Fatalf("second status = %d", second.StatusCode)
	}
	if got := decodeData[JobResponse](t, second); got.ID != created.ID {
		t.Errorf("second job id = %s, want %s", got.ID, created.ID)
	}
	if len(ta.ready.ids) != 1 {
		t.Errorf("job.ready published %d times", len(ta.ready.ids))
	}
}

func TestCancelJob(t *testing.T) {
	ta := newTestAPI(t)
	queued := domain.NewJob("perfmetrics", nil)
	running := domain.NewJob("perfmetrics", nil)
	running.MarkRunning("/tmp/x")
	ta.jobs.jobs[queued.ID] = queued
	ta.jobs.jobs[running.ID] = running

	resp := ta.do(t, http.MethodPost, "/api/v1/jobs/"+queued.ID.String()+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel queued status = %d", resp.StatusCode)
	}
	if got := decodeData[JobResponse](t, resp); got.Status != "CANCELLED" {
		t.Errorf("status = %s", got.Status)
	}

	if resp := ta.do(t, http.MethodPost, "/api/v1/jobs/"+running.ID.String()+"/cancel", nil); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("cancel running status = %d", resp.StatusCode)
	}
	if resp := ta.do(t, http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/cancel", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel missing status = %d", resp.StatusCode)
	}
}

func TestListJobs_RejectsBadQuery(t *testing.T) {
	ta := newTestAPI(t)

	for _, q := range []string{"status=DONE", "limit=-1", "offset=x"} {
		if resp := ta.do(t, http.MethodGet, "/api/v1/jobs?"+q, nil); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, resp.StatusCode)
		}
	}
	if resp := ta.do(t, http.MethodGet, "/api/v1/jobs?status=queued", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("lowercase status = %d", resp.StatusCode)
	}
}

func TestGetJobOutput(t *testing.T) {
	ta := newTestAPI(t)

	workdir := t.TempDir()
	logFile := filepath.Join(workdir, "log.txt")
	if err := os.WriteFile(logFile, []byte("INFO done\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := domain.NewJob("perfmetrics", nil)
	job.MarkRunning(workdir)
	job.MarkSucceeded(map[string]string{
		"log":     logFile,
		"output":  "s3://copernicus/jobs/" + job.ID.String() + "/output.pdf",
		"success": "true",
		"recipe":  outside,
	})
	ta.jobs.jobs[job.ID] = job
	base := "/api/v1/jobs/" + job.ID.String() + "/outputs/"

	t.Run("local file", func(t *testing.T) {
		resp := ta.do(t, http.MethodGet, base+"log", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "INFO done\n" {
			t.Errorf("body = %q", body)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
			t.Errorf("content type = %q", ct)
		}
	})

	t.Run("remote object", func(t *testing.T) {
		resp := ta.do(t, http.MethodGet, base+"output", nil)
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		want := "https://minio.example/copernicus/jobs/" + job.ID.String() + "/output.pdf?sig=1"
		if got := resp.Header.Get("Location"); got != want {
			t.Errorf("location = %q, want %q", got, want)
		}
	})

	t.Run("literal", func(t *testing.T) {
		resp := ta.do(t, http.MethodGet, base+"success", nil)
		got := decodeData[LiteralOutput](t, resp)
		if diff := cmp.Diff(LiteralOutput{Name: "success", Value: "true"}, got); diff != "" {
			t.Errorf("literal mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("outside workdir", func(t *testing.T) {
		if resp := ta.do(t, http.MethodGet, base+"recipe", nil); resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("missing output", func(t *testing.T) {
		if resp := ta.do(t, http.MethodGet, base+"archive", nil); resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestSchedules(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.do(t, http.MethodPost, "/api/v1/processes/perfmetrics/schedules", CreateScheduleRequest{
		Name:     "nightly",
		CronExpr: "0 3 * * *",
		Inputs:   map[string]any{"model": "MPI-ESM-LR"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeData[ScheduleResponse](t, resp)
	if created.ProcessID != "perfmetrics" || created.Timezone != "UTC" || !created.Enabled {
		t.Errorf("created = %+v", created)
	}
	if created.Trigger != "cron 0 3 * * * UTC" {
		t.Errorf("trigger = %q", created.Trigger)
	}
	if created.NextDueAt == nil || created.NextDueAt.UTC().Hour() != 3 {
		t.Errorf("next_due_at = %v", created.NextDueAt)
	}

	interval := 600
	resp = ta.do(t, http.MethodPut, "/api/v1/schedules/"+created.ID.String(), UpdateScheduleRequest{
		CronExpr:    new(string),
		IntervalSec: &interval,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	updated := decodeData[ScheduleResponse](t, resp)
	if updated.Trigger != "every 10m0s" {
		t.Errorf("trigger after update = %q", updated.Trigger)
	}
	if updated.NextDueAt == nil || time.Until(*updated.NextDueAt) > 11*time.Minute {
		t.Errorf("next_due_at after switch to interval = %v", updated.NextDueAt)
	}

	resp = ta.do(t, http.MethodPut, "/api/v1/schedules/"+created.ID.String()+"/enabled", SetEnabledRequest{Enabled: false})
	if got := decodeData[ScheduleResponse](t, resp); got.Enabled {
		t.Error("schedule still enabled")
	}

	if resp := ta.do(t, http.MethodDelete, "/api/v1/schedules/"+created.ID.String(), nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if resp := ta.do(t, http.MethodGet, "/api/v1/schedules/"+created.ID.String(), nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d", resp.StatusCode)
	}
}

func TestCreateSchedule_Invalid(t *testing.T) {
	ta := newTestAPI(t)

	tests := []struct {
		name string
		path string
		body CreateScheduleRequest
		want int
	}{
		{"no name", "/api/v1/schedules", CreateScheduleRequest{ProcessID: "perfmetrics", IntervalSec: 60}, http.StatusBadRequest},
		{"no timing", "/api/v1/schedules", CreateScheduleRequest{ProcessID: "perfmetrics", Name: "x"}, http.StatusBadRequest},
		{"bad cron", "/api/v1/schedules", CreateScheduleRequest{ProcessID: "perfmetrics", Name: "x", CronExpr: "every day"}, http.StatusBadRequest},
		{"bad timezone", "/api/v1/schedules", CreateScheduleRequest{ProcessID: "perfmetrics", Name: "x", IntervalSec: 60, Timezone: "Nowhere/City"}, http.StatusBadRequest},
		{"bad inputs", "/api/v1/schedules", CreateScheduleRequest{ProcessID: "perfmetrics", Name: "x", IntervalSec: 60, Inputs: map[string]any{"model": "?"}}, http.StatusBadRequest},
		{"unknown process", "/api/v1/processes/nope/schedules", CreateScheduleRequest{Name: "x", IntervalSec: 60}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := ta.do(t, http.MethodPost, tt.path, tt.body); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	if len(ta.schedules.schedules) != 0 {
		t.Errorf("schedules created: %d", len(ta.schedules.schedules))
	}
}

func TestRunSchedule(t *testing.T) {
	ta := newTestAPI(t)

	schedule := domain.NewSchedule("perfmetrics", "nightly", map[string]any{"model": "MPI-ESM-MR"}, time.Now())
	schedule.IntervalSec = 3600
	next := time.Now().Add(time.Hour)
	schedule.NextDueAt = &next
	ta.schedules.schedules[schedule.ID] = schedule
	base := "/api/v1/schedules/" + schedule.ID.String()

	resp := ta.do(t, http.MethodPost, base+"/run", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("run status = %d", resp.StatusCode)
	}
	first := decodeData[JobResponse](t, resp)
	if diff := cmp.Diff(map[string]any{"model": "MPI-ESM-MR"}, first.Inputs); diff != "" {
		t.Errorf("job inputs (-want +got):\n%s", diff)
	}
	if len(ta.ready.ids) != 1 || ta.ready.ids[0] != first.ID {
		t.Errorf("job.ready = %v, want [%s]", ta.ready.ids, first.ID)
	}
	if !schedule.NextDueAt.Equal(next) {
		t.Errorf("next_due_at moved to %v", schedule.NextDueAt)
	}

	// Предыдущий job ещё в очереди.
	if resp := ta.do(t, http.MethodPost, base+"/run", nil); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("run while queued: status = %d", resp.StatusCode)
	}

	resp = ta.do(t, http.MethodPost, base+"/run?force=true", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("forced run status = %d", resp.StatusCode)
	}
	forced := decodeData[JobResponse](t, resp)
	if forced.ID == first.ID || len(ta.jobs.jobs) != 2 {
		t.Errorf("forced run did not create a new job: %s, jobs = %d", forced.ID, len(ta.jobs.jobs))
	}

	ta.jobs.jobs[forced.ID].Status = domain.JobStatusFailed
	ta.jobs.jobs[forced.ID].StatusMessage = "no data found"
	resp = ta.do(t, http.MethodGet, base, nil)
	got := decodeData[ScheduleResponse](t, resp)
	want := &domain.JobSummary{ID: forced.ID, Status: domain.JobStatusFailed, StatusMessage: "no data found"}
	if diff := cmp.Diff(want, got.LastJob); diff != "" {
		t.Errorf("last_job (-want +got):\n%s", diff)
	}

	if resp := ta.do(t, http.MethodPost, base+"/run", nil); resp.StatusCode != http.StatusCreated {
		t.Errorf("run after failure: status = %d", resp.StatusCode)
	}
	if resp := ta.do(t, http.MethodPost, "/api/v1/schedules/"+uuid.NewString()+"/run", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("run unknown schedule: status = %d", resp.StatusCode)
	}
}
