package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copernicus_jobs_started_total",
		Help: "Jobs picked up by workers, by process.",
	}, []string{"process"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copernicus_jobs_finished_total",
		Help: "Finished jobs by process and final status.",
	}, []string{"process", "status"})

	diagnosticDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copernicus_diagnostic_duration_seconds",
		Help:    "Wall time of toolchain invocations by process and outcome.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	}, []string{"process", "outcome"})

	outputsMissing = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copernicus_outputs_missing_total",
		Help: "Expected output artifacts that were not found after a run.",
	}, []string{"process", "output"})

	jobTurnaround = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copernicus_job_turnaround_seconds",
		Help:    "Time from submission to completion, by process and final status.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 14),
	}, []string{"process", "status"})

	jobsReaped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copernicus_jobs_reaped_total",
		Help: "RUNNING jobs failed after their worker stopped reporting.",
	}, []string{"process"})

	scheduleSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copernicus_schedule_runs_skipped_total",
		Help: "Schedule ticks skipped because the previous job was still active.",
	}, []string{"process"})

	apiRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copernicus_api_http_requests_total",
		Help: "Total HTTP requests handled by copernicus-api.",
	})
)

// JobStarted отмечает начало выполнения job.
func JobStarted(process string) {
	jobsStarted.WithLabelValues(process).Inc()
}

// JobFinished отмечает завершение job с финальным статусом.
func JobFinished(process, status string) {
	jobsFinished.WithLabelValues(process, status).Inc()
}

// ObserveDiagnostic записывает длительность запуска toolchain.
func ObserveDiagnostic(process, outcome string, d time.Duration) {
	diagnosticDuration.WithLabelValues(process, outcome).Observe(d.Seconds())
}

// OutputMissing отмечает ненайденный артефакт.
func OutputMissing(process, output string) {
	outputsMissing.WithLabelValues(process, output).Inc()
}

// ObserveTurnaround записывает полное время жизни job.
func ObserveTurnaround(process, status string, d time.Duration) {
	jobTurnaround.WithLabelValues(process, status).Observe(d.Seconds())
}

// JobReaped отмечает job, завершённый по таймауту.
func JobReaped(process string) {
	jobsReaped.WithLabelValues(process).Inc()
}

// ScheduleSkipped отмечает пропущенное срабатывание расписания.
func ScheduleSkipped(process string) {
	scheduleSkips.WithLabelValues(process).Inc()
}

// APIRequest отмечает обработанный HTTP-запрос.
func APIRequest() {
	apiRequests.Inc()
}
