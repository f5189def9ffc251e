package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/data/repos/assets"
	"github.com/dubwise/dubwise-backend/internal/data/repos/jobs"
	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/pipeline"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// AnonymousClient is the requester id used when API keys are disabled; it is
// exempt from quotas and ownership checks are skipped for jobs it created.
const AnonymousClient = "anonymous"

// JobView is the wire shape of a job.
type JobView struct {
	JobID        string                               `json:"jobId"`
	AssetID      string                               `json:"assetId"`
	Stage        domain.JobStage                      `json:"stage"`
	Status       domain.JobStatus                     `json:"status"`
	Progress     float64                              `json:"progress"`
	TargetLangs  []string                             `json:"targetLangs"`
	Presets      map[string]string                    `json:"presets,omitempty"`
	RequestedBy  *string                              `json:"requestedBy,omitempty"`
	StartedAt    *time.Time                           `json:"startedAt,omitempty"`
	EndedAt      *time.Time                           `json:"endedAt,omitempty"`
	FailedStage  *domain.JobStage                     `json:"failedStage,omitempty"`
	ErrorMessage *string                              `json:"error,omitempty"`
	LogsKey      *string                              `json:"logsKey,omitempty"`
	StageHistory map[string]domain.StageHistoryEntry  `json:"stageHistory,omitempty"`
	CreatedAt    time.Time                            `json:"createdAt"`
	UpdatedAt    time.Time                            `json:"updatedAt"`
}

type CreateJobRequest struct {
	AssetID     string
	TargetLangs []string
	Presets     map[string]string
	ResumeFrom  string
	ClientID    string
}

type JobService struct {
	jobs    jobs.JobRepo
	assets  assets.AssetRepo
	broker  broker.Broker
	allowed map[string]bool
	quota   int
	log     *logger.Logger
}

func NewJobService(jobRepo jobs.JobRepo, assetRepo assets.AssetRepo, b broker.Broker, allowedLangs []string, maxActivePerKey int, baseLog *logger.Logger) *JobService {
	allowed := make(map[string]bool, len(allowedLangs))
	for _, lang := range allowedLangs {
		allowed[lang] = true
	}
	return &JobService{
		jobs:    jobRepo,
		assets:  assetRepo,
		broker:  b,
		allowed: allowed,
		quota:   maxActivePerKey,
		log:     baseLog.With("service", "JobService"),
	}
}

func (s *JobService) List(ctx context.Context, page, pageSize int) ([]JobView, int64, error) {
	rows, total, err := s.jobs.List(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	views := make([]JobView, 0, len(rows))
	for _, job := range rows {
		view, err := s.toView(ctx, job)
		if err != nil {
			return nil, 0, err
		}
		views = append(views, view)
	}
	return views, total, nil
}

func (s *JobService) Get(ctx context.Context, externalID string) (*JobView, error) {
	job, err := s.jobs.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	view, err := s.toView(ctx, job)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Create validates the request, applies the per-client quota, creates the
// job PENDING at ASR, and enqueues the pipeline entry task.
func (s *JobService) Create(ctx context.Context, req CreateJobRequest) (*JobView, error) {
	asset, err := s.assets.GetByExternalID(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrNotFound
	}
	for _, lang := range req.TargetLangs {
		if !s.allowed[lang] {
			return nil, &UnsupportedLanguageError{Lang: lang}
		}
	}

	if req.ClientID != "" && req.ClientID != AnonymousClient && s.quota > 0 {
		active, err := s.jobs.CountActiveForRequester(ctx, req.ClientID)
		if err != nil {
			return nil, err
		}
		if active >= int64(s.quota) {
			return nil, ErrQuotaExceeded
		}
	}

	if len(asset.TargetLangs) == 0 && len(req.TargetLangs) > 0 {
		if asset, err = s.assets.UpdateLangs(ctx, asset.ExternalID, nil, req.TargetLangs); err != nil {
			return nil, err
		}
	}

	langs := req.TargetLangs
	if len(langs) == 0 {
		langs = []string(asset.TargetLangs)
	}

	var requestedBy *string
	if req.ClientID != "" {
		clientID := req.ClientID
		requestedBy = &clientID
	}
	job := &domain.Job{
		ExternalID:  uuid.NewString(),
		AssetID:     asset.ID,
		Stage:       domain.StageASR,
		Status:      domain.StatusPending,
		Progress:    0,
		TargetLangs: datatypes.NewJSONSlice(langs),
		Presets:     datatypes.NewJSONType(req.Presets),
		RequestedBy: requestedBy,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.enqueueRun(ctx, job.ExternalID, req.ResumeFrom); err != nil {
		return nil, err
	}
	s.log.Info("Job created", "jobId", job.ExternalID, "assetId", asset.ExternalID, "languages", langs)

	view, err := s.toView(ctx, job)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Retry rewinds the job to the resume stage and restarts the pipeline.
func (s *JobService) Retry(ctx context.Context, externalID, resumeFrom, clientID string) (*JobView, error) {
	job, err := s.loadOwned(ctx, externalID, clientID)
	if err != nil {
		return nil, err
	}
	resume := domain.StageASR
	if parsed, ok := domain.ParseStage(resumeFrom); ok && parsed.Order() > 0 {
		resume = parsed
	}
	if _, err := s.jobs.ResetForRetry(ctx, job.ExternalID, resume); err != nil {
		return nil, err
	}
	if err := s.enqueueRun(ctx, job.ExternalID, string(resume)); err != nil {
		return nil, err
	}
	s.log.Info("Job retried", "jobId", job.ExternalID, "resumeFrom", string(resume))
	return s.Get(ctx, externalID)
}

// Cancel marks the job CANCELLED. Already-successful jobs cannot be
// cancelled; in-flight tasks observe the status at their next entry.
func (s *JobService) Cancel(ctx context.Context, externalID, clientID string) error {
	job, err := s.loadOwned(ctx, externalID, clientID)
	if err != nil {
		return err
	}
	if job.Status == domain.StatusSuccess {
		return ErrJobCompleted
	}
	if _, err := s.jobs.Cancel(ctx, job.ExternalID, "cancelled by client"); err != nil {
		return err
	}
	s.log.Info("Job cancelled", "jobId", job.ExternalID)
	return nil
}

func (s *JobService) loadOwned(ctx context.Context, externalID, clientID string) (*domain.Job, error) {
	job, err := s.jobs.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	if job.RequestedBy != nil && clientID != *job.RequestedBy {
		return nil, ErrForbidden
	}
	return job, nil
}

func (s *JobService) enqueueRun(ctx context.Context, jobID, resumeFrom string) error {
	args := map[string]any{"jobId": jobID}
	if resumeFrom != "" {
		args["resumeFrom"] = resumeFrom
	}
	if err := s.broker.Enqueue(ctx, broker.NewTask(pipeline.TaskRun, args)); err != nil {
		return fmt.Errorf("enqueue pipeline run: %w", err)
	}
	return nil
}

func (s *JobService) toView(ctx context.Context, job *domain.Job) (JobView, error) {
	assetID := ""
	asset, err := s.assets.GetByID(ctx, job.AssetID)
	if err != nil {
		return JobView{}, err
	}
	if asset != nil {
		assetID = asset.ExternalID
	}
	return JobView{
		JobID:        job.ExternalID,
		AssetID:      assetID,
		Stage:        job.Stage,
		Status:       job.Status,
		Progress:     job.Progress,
		TargetLangs:  []string(job.TargetLangs),
		Presets:      job.Presets.Data(),
		RequestedBy:  job.RequestedBy,
		StartedAt:    job.StartedAt,
		EndedAt:      job.EndedAt,
		FailedStage:  job.FailedStage,
		ErrorMessage: job.ErrorMessage,
		LogsKey:      job.LogsKey,
		StageHistory: job.StageHistory.Data(),
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}, nil
}
