package pipeline

import (
	"context"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/data/repos/jobs"
	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/joblog"
	"github.com/dubwise/dubwise-backend/internal/worker"
)

// stageSpec is one row of the stage table: the coordinator is a loop over
// these values, and tests swap in stub workers without touching the runner.
type stageSpec struct {
	stage    domain.JobStage
	baseline float64
	taskName string
	nextTask string
	// ready reports whether the stage's artifacts exist for all languages.
	ready func(jc *jobContext) bool
	// run produces missing artifacts and returns history details.
	run func(ctx context.Context, jc *jobContext) (map[string]any, error)
}

// shouldSkip is the resume rule: stages strictly before the resume point are
// skipped only when their artifacts are already present.
func shouldSkip(stage, resume domain.JobStage, artifactReady bool) bool {
	return stage.Order() < resume.Order() && artifactReady
}

// stageHandler wraps one stage in the runner protocol: cancellation bail-out,
// skip-on-resume, baseline progress, timing, history, metrics, retry
// bookkeeping, successor enqueue.
func (c *Coordinator) stageHandler(spec stageSpec) worker.HandlerFunc {
	return func(ctx context.Context, task *broker.Task, rs broker.RetryState) error {
		jc, err := c.loadContext(ctx, task)
		if err != nil {
			return err
		}
		jobID := jc.job.ExternalID
		stageName := string(spec.stage)

		// A cancelled job's queued task still fires; bail out without a
		// successor so at most one stage runs past cancellation.
		if jc.job.Status == domain.StatusCancelled {
			if err := c.deps.Jobs.RecordStageHistory(ctx, jobID, spec.stage, domain.OutcomeSkipped, map[string]any{"reason": "cancelled"}); err != nil {
				return err
			}
			jc.sink.Emit(stageName, joblog.EventSkip, "Job cancelled, skipping stage", map[string]any{"reason": "cancelled"})
			return nil
		}

		skip := shouldSkip(spec.stage, jc.resume, spec.ready(jc))

		if _, err := c.deps.Jobs.UpdateStage(ctx, jobID, jobs.StageUpdate{
			Stage:    spec.stage,
			Status:   domain.StatusRunning,
			Progress: spec.baseline,
		}); err != nil {
			return err
		}

		if skip {
			if err := c.deps.Jobs.RecordStageHistory(ctx, jobID, spec.stage, domain.OutcomeSkipped, map[string]any{"reason": "artifacts present"}); err != nil {
				return err
			}
			jc.sink.Emit(stageName, joblog.EventSkip, "Artifacts present, skipping stage", map[string]any{"resumeFrom": string(jc.resume)})
			return c.enqueueNext(ctx, spec.nextTask, task)
		}

		if err := c.deps.Jobs.RecordStageHistory(ctx, jobID, spec.stage, domain.OutcomeStarted, map[string]any{"attempt": rs.Retries + 1}); err != nil {
			return err
		}
		jc.sink.Emit(stageName, joblog.EventStart, "Stage started", map[string]any{"attempt": rs.Retries + 1})

		c.deps.Metrics.StageInProgress.WithLabelValues(stageName).Inc()
		timer := joblog.StartTimer()
		details, runErr := spec.run(ctx, jc)
		durationMs := timer.DurationMs()
		c.deps.Metrics.StageInProgress.WithLabelValues(stageName).Dec()
		c.deps.Metrics.StageDuration.WithLabelValues(stageName).Observe(timer.Duration().Seconds())

		if runErr != nil {
			c.deps.Metrics.StageFailures.WithLabelValues(stageName).Inc()
			failDetails := map[string]any{
				"error":      runErr.Error(),
				"attempt":    rs.Retries + 1,
				"durationMs": durationMs,
			}
			if rs.WillRetry && !broker.IsFatal(runErr) {
				if err := c.deps.Jobs.RecordStageHistory(ctx, jobID, spec.stage, domain.OutcomeRetrying, failDetails); err != nil {
					return err
				}
				jc.sink.Emit(stageName, joblog.EventRetry, "Stage failed, will retry", failDetails)
				return runErr
			}
			if err := c.deps.Jobs.RecordStageHistory(ctx, jobID, spec.stage, domain.OutcomeFailed, failDetails); err != nil {
				return err
			}
			msg := runErr.Error()
			failed := spec.stage
			if _, err := c.deps.Jobs.UpdateStage(ctx, jobID, jobs.StageUpdate{
				Stage:        spec.stage,
				Status:       domain.StatusFailed,
				Progress:     spec.baseline,
				ErrorMessage: &msg,
				FailedStage:  &failed,
			}); err != nil {
				return err
			}
			jc.sink.Emit(stageName, joblog.EventFailed, "Stage failed permanently", failDetails)
			return runErr
		}

		if details == nil {
			details = map[string]any{}
		}
		details["durationMs"] = durationMs
		if err := c.deps.Jobs.RecordStageHistory(ctx, jobID, spec.stage, domain.OutcomeSuccess, details); err != nil {
			return err
		}
		jc.sink.Emit(stageName, joblog.EventSuccess, "Stage finished", map[string]any{"durationMs": durationMs})
		return c.enqueueNext(ctx, spec.nextTask, task)
	}
}
