package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// JobRepo is the durable job store. Every mutation runs in a short
// transaction; stage transitions are idempotent under the artifact cache, so
// read-then-write skew between the control plane and a stage runner is
// tolerated.
type JobRepo interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error)
	List(ctx context.Context, page, pageSize int) ([]*domain.Job, int64, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
	CountRunningByStage(ctx context.Context) (map[domain.JobStage]int64, error)
	FetchRecent(ctx context.Context, limit int) ([]*domain.Job, error)
	UpdateStage(ctx context.Context, externalID string, update StageUpdate) (*domain.Job, error)
	RecordStageHistory(ctx context.Context, externalID string, stage domain.JobStage, outcome string, details map[string]any) error
	UpdateLogsKey(ctx context.Context, externalID string, key *string) error
	ResetForRetry(ctx context.Context, externalID string, resume domain.JobStage) (*domain.Job, error)
	Cancel(ctx context.Context, externalID string, reason string) (*domain.Job, error)
	CountActiveForRequester(ctx context.Context, requestedBy string) (int64, error)
}

// StageUpdate carries one stage/status transition. ErrorMessage and
// FailedStage are cleared when nil.
type StageUpdate struct {
	Stage        domain.JobStage
	Status       domain.JobStatus
	Progress     float64
	ErrorMessage *string
	FailedStage  *domain.JobStage
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) List(ctx context.Context, page, pageSize int) ([]*domain.Job, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}
	var out []*domain.Job
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *jobRepo) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	type row struct {
		Status domain.JobStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.JobStatus]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.Count
	}
	return out, nil
}

func (r *jobRepo) CountRunningByStage(ctx context.Context) (map[domain.JobStage]int64, error) {
	type row struct {
		Stage domain.JobStage
		Count int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Select("stage, COUNT(*) AS count").
		Where("status = ?", domain.StatusRunning).
		Group("stage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.JobStage]int64, len(rows))
	for _, rw := range rows {
		out[rw.Stage] = rw.Count
	}
	return out, nil
}

func (r *jobRepo) FetchRecent(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit < 1 {
		limit = 1
	}
	var out []*domain.Job
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStage applies the transition invariants: started_at is set on the
// first PENDING→RUNNING move, ended_at on any terminal move.
func (r *jobRepo) UpdateStage(ctx context.Context, externalID string, update StageUpdate) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_id = ?", externalID).First(&job).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		job.Stage = update.Stage
		job.Status = update.Status
		job.Progress = update.Progress
		job.ErrorMessage = update.ErrorMessage
		job.FailedStage = update.FailedStage
		job.UpdatedAt = now
		if update.Status == domain.StatusRunning && job.StartedAt == nil {
			job.StartedAt = &now
		}
		if update.Status.Terminal() && job.EndedAt == nil {
			job.EndedAt = &now
		}
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// RecordStageHistory overwrites the per-stage history slot with the latest
// outcome and stamps updatedAt, which doubles as the metric dedup key.
func (r *jobRepo) RecordStageHistory(ctx context.Context, externalID string, stage domain.JobStage, outcome string, details map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		if err := tx.Where("external_id = ?", externalID).First(&job).Error; err != nil {
			return err
		}
		hist := job.StageHistory.Data()
		next := make(map[string]domain.StageHistoryEntry, len(hist)+1)
		for k, v := range hist {
			next[k] = v
		}
		next[string(stage)] = domain.StageHistoryEntry{
			Status:    outcome,
			Details:   details,
			UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		}
		job.StageHistory = datatypes.NewJSONType(next)
		job.UpdatedAt = time.Now().UTC()
		return tx.Save(&job).Error
	})
}

func (r *jobRepo) UpdateLogsKey(ctx context.Context, externalID string, key *string) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("external_id = ?", externalID).
		Updates(map[string]interface{}{
			"logs_key":   key,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ResetForRetry rewinds the job to the resume stage. Stage history is kept;
// each stage slot is overwritten as the new attempt reaches it.
func (r *jobRepo) ResetForRetry(ctx context.Context, externalID string, resume domain.JobStage) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_id = ?", externalID).First(&job).Error; err != nil {
			return err
		}
		job.Stage = resume
		job.Status = domain.StatusPending
		job.Progress = 0
		job.FailedStage = nil
		job.ErrorMessage = nil
		job.StartedAt = nil
		job.EndedAt = nil
		job.UpdatedAt = time.Now().UTC()
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) Cancel(ctx context.Context, externalID string, reason string) (*domain.Job, error) {
	var job domain.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_id = ?", externalID).First(&job).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		failed := job.Stage
		job.Status = domain.StatusCancelled
		job.FailedStage = &failed
		job.ErrorMessage = &reason
		job.Progress = 1.0
		job.EndedAt = &now
		job.UpdatedAt = now
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) CountActiveForRequester(ctx context.Context, requestedBy string) (int64, error) {
	if requestedBy == "" {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("requested_by = ?", requestedBy).
		Where("status IN ?", []domain.JobStatus{domain.StatusPending, domain.StatusRunning}).
		Count(&count).Error
	return count, err
}
