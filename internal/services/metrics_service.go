package services

import (
	"context"

	"github.com/dubwise/dubwise-backend/internal/data/repos/jobs"
	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/observability"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// recentSample bounds how many jobs feed stage-history observations per scrape.
const recentSample = 200

// MetricsService refreshes the job gauges and folds recent stage history into
// the duration histograms before each scrape. The dedup cache keeps repeated
// scrapes from double counting the same history entry.
type MetricsService struct {
	jobs    jobs.JobRepo
	metrics *observability.Metrics
	log     *logger.Logger
}

func NewMetricsService(jobRepo jobs.JobRepo, metrics *observability.Metrics, baseLog *logger.Logger) *MetricsService {
	return &MetricsService{
		jobs:    jobRepo,
		metrics: metrics,
		log:     baseLog.With("service", "MetricsService"),
	}
}

func (s *MetricsService) Collect(ctx context.Context) error {
	byStatus, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return err
	}
	// Zero-valued statuses are set too so gauges fall back to 0 after the
	// last job in a status drains.
	for _, status := range domain.AllStatuses() {
		s.metrics.JobsTotal.WithLabelValues(string(status)).Set(float64(byStatus[status]))
	}
	s.metrics.JobsRunning.Set(float64(byStatus[domain.StatusRunning]))

	byStage, err := s.jobs.CountRunningByStage(ctx)
	if err != nil {
		return err
	}
	for _, stage := range domain.AllStages() {
		s.metrics.JobsStageActive.WithLabelValues(string(stage)).Set(float64(byStage[stage]))
	}

	recent, err := s.jobs.FetchRecent(ctx, recentSample)
	if err != nil {
		return err
	}
	for _, job := range recent {
		for stage, entry := range job.StageHistory.Data() {
			if !s.metrics.MarkStageEvent(job.ExternalID, stage, entry.UpdatedAt) {
				continue
			}
			switch entry.Status {
			case domain.OutcomeSuccess:
				if ms, ok := durationMs(entry.Details); ok {
					s.metrics.APIStageDuration.WithLabelValues(stage).Observe(ms / 1000.0)
				}
			case domain.OutcomeFailed:
				s.metrics.APIStageFailures.WithLabelValues(stage).Inc()
			}
		}
	}
	return nil
}

// durationMs reads the durationMs detail, tolerating the numeric widenings a
// JSON round trip produces.
func durationMs(details map[string]any) (float64, bool) {
	v, ok := details["durationMs"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
