package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/mq"
	"github.com/shaiso/Copernicus/internal/process"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/telemetry"
	"github.com/shaiso/Copernicus/internal/workspace"
)

// isExpected — ситуации, когда job просто не нужно выполнять.
func isExpected(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotQueued)
}

// handleJobReady обрабатывает событие из очереди jobs.ready.
func (w *Worker) handleJobReady(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.JobReadyPayload](msg)
	if err != nil {
		return err
	}

	w.logger.Debug("received job.ready event", "job_id", payload.JobID, "process", payload.ProcessID)

	if err := w.processJob(ctx, payload.JobID); err != nil {
		if isExpected(err) {
			w.logger.Debug("job not processed", "job_id", payload.JobID, "reason", err)
			return nil
		}
		return err
	}
	return nil
}

// processJob захватывает job, выполняет процесс и сохраняет результат.
func (w *Worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("get job: %w", err)
	}

	if job.Status != domain.JobStatusQueued {
		return ErrJobNotQueued
	}

	job.MarkRunning(filepath.Join(w.workdirRoot, job.ID.String()))
	if err := w.jobs.Claim(ctx, job); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrJobNotQueued
		}
		return fmt.Errorf("claim job: %w", err)
	}

	logger := telemetry.WithProcess(telemetry.WithJobID(w.logger, job.ID.String()), job.ProcessID)
	logger.Info("job started", "workdir", job.Workdir)
	telemetry.JobStarted(job.ProcessID)

	result, execErr := w.execute(telemetry.WithLogger(ctx, logger), job)

	// Результат сохраняется даже если воркер останавливается
	finishCtx := context.WithoutCancel(ctx)

	switch {
	case execErr != nil:
		var outputs map[string]string
		if result != nil {
			outputs = result.Outputs
			job.LogFile = outputs["log"]
		}
		job.MarkFailed(execErr.Error(), outputs)
	case !result.Success:
		job.LogFile = result.Outputs["log"]
		job.MarkFailed(result.Message, result.Outputs)
	default:
		job.LogFile = result.Outputs["log"]
		job.MarkSucceeded(result.Outputs)
	}

	if err := w.jobs.Update(finishCtx, job); err != nil {
		return fmt.Errorf("update job to %s: %w", job.Status, err)
	}
	telemetry.JobFinished(job.ProcessID, string(job.Status))

	if job.Status == domain.JobStatusSucceeded {
		logger.Info("job succeeded", "duration", job.Duration(), "outputs", len(job.Outputs))
	} else {
		logger.Warn("job failed", "duration", job.Duration(), "error", job.Error)
	}

	w.publishCompletion(finishCtx, job)
	return nil
}

// execute выполняет процесс job в его рабочей директории
// и публикует артефакты результата.
func (w *Worker) execute(ctx context.Context, job *domain.Job) (*process.Result, error) {
	p, err := w.processes.Get(job.ProcessID)
	if err != nil {
		return nil, err
	}
	desc := p.Description()

	inputs, err := desc.Parse(job.Inputs)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.Open(job.Workdir)
	if err != nil {
		return nil, err
	}

	logger := telemetry.FromContext(ctx)
	result, err := p.Execute(ctx, &process.Request{
		JobID:     job.ID,
		Inputs:    inputs,
		Workspace: ws,
		Status: func(message string, percent int) {
			job.UpdateProgress(message, percent)
			if err := w.jobs.UpdateProgress(ctx, job.ID, message, percent); err != nil {
				logger.Warn("failed to persist progress", "message", message, "error", err)
			}
		},
	})
	if result == nil {
		return nil, err
	}

	// При ошибке после запуска toolchain публикуется то, что успело появиться (лог).
	outputs, pubErr := w.publishOutputs(ctx, job.ID, desc, result.Outputs)
	if pubErr != nil {
		if err != nil {
			logger.Warn("failed to publish outputs of failed job", "error", pubErr)
			return nil, err
		}
		return nil, pubErr
	}
	result.Outputs = outputs
	return result, err
}

// publishOutputs переносит файловые артефакты в хранилище.
// Литералы (success) публикуются как есть.
func (w *Worker) publishOutputs(ctx context.Context, jobID uuid.UUID, desc process.Description, outputs map[string]string) (map[string]string, error) {
	published := make(map[string]string, len(outputs))
	for name, value := range outputs {
		if value == "" {
			continue
		}
		if out, ok := desc.Output(name); ok && out.Literal {
			published[name] = value
			continue
		}
		location, err := w.store.Publish(ctx, jobID, name, value)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrPublishOutput, name, err)
		}
		published[name] = location
	}
	return published, nil
}

// publishCompletion публикует событие job.completed.
func (w *Worker) publishCompletion(ctx context.Context, job *domain.Job) {
	if w.publisher == nil {
		return
	}

	payload := mq.JobCompletedPayload{
		JobID:     job.ID,
		ProcessID: job.ProcessID,
		Status:    string(job.Status),
		Error:     job.Error,
	}
	if err := w.publisher.PublishJobCompleted(ctx, payload); err != nil {
		// job уже сохранён в БД, клиенты увидят статус через API
		w.logger.Warn("failed to publish job.completed", "job_id", job.ID, "error", err)
	}
}
