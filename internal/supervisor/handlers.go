package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Copernicus/internal/mq"
	"github.com/shaiso/Copernicus/internal/repo"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// handleJobCompleted обрабатывает событие из очереди jobs.completed.
func (s *Supervisor) handleJobCompleted(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.JobCompletedPayload](msg)
	if err != nil {
		return err
	}

	job, err := s.jobs.GetByID(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Повторная доставка не поможет.
			return fmt.Errorf("%w: %w: %s", mq.ErrPermanent, ErrJobNotFound, payload.JobID)
		}
		return fmt.Errorf("get job: %w", err)
	}

	if !job.IsFinished() {
		s.logger.Warn("completion event for unfinished job",
			"job_id", job.ID,
			"status", job.Status,
		)
		return nil
	}

	telemetry.ObserveTurnaround(job.ProcessID, string(job.Status), job.Turnaround())
	s.logger.Info("job completed",
		"job_id", job.ID,
		"process", job.ProcessID,
		"status", job.Status,
		"turnaround", job.Turnaround(),
		"error", job.Error,
	)
	return nil
}

// reap переводит зависшие RUNNING jobs в FAILED.
func (s *Supervisor) reap(ctx context.Context) {
	cutoff := s.now().Add(-s.jobTimeout)

	stale, err := s.jobs.ListStale(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list stale jobs", "error", err)
		return
	}

	for i := range stale {
		job := &stale[i]
		logger := telemetry.WithProcess(telemetry.WithJobID(s.logger, job.ID.String()), job.ProcessID)

		job.MarkFailed(fmt.Sprintf("no result after %s, worker presumed lost", s.jobTimeout), nil)
		if err := s.jobs.FinishRunning(ctx, job); err != nil {
			if errors.Is(err, repo.ErrInvalidState) {
				// Воркер успел сохранить результат.
				continue
			}
			logger.Error("failed to fail stale job", "error", err)
			continue
		}

		telemetry.JobReaped(job.ProcessID)
		telemetry.JobFinished(job.ProcessID, string(job.Status))
		logger.Warn("stale job failed", "started_at", job.StartedAt)

		if s.publisher != nil {
			err := s.publisher.PublishJobCompleted(ctx, mq.JobCompletedPayload{
				JobID:     job.ID,
				ProcessID: job.ProcessID,
				Status:    string(job.Status),
				Error:     job.Error,
			})
			if err != nil {
				logger.Warn("failed to publish job.completed", "error", err)
			}
		}
	}
}
