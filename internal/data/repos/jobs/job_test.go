package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/dubwise/dubwise-backend/internal/data/repos/testutil"
	"github.com/dubwise/dubwise-backend/internal/domain"
)

func newTestJob(assetID uint, requestedBy string) *domain.Job {
	var by *string
	if requestedBy != "" {
		by = &requestedBy
	}
	return &domain.Job{
		ExternalID:  uuid.NewString(),
		AssetID:     assetID,
		Stage:       domain.StageASR,
		Status:      domain.StatusPending,
		TargetLangs: datatypes.NewJSONSlice([]string{"es", "fr"}),
		RequestedBy: by,
	}
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	job := newTestJob(1, "client-a")
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByExternalID(ctx, job.ExternalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, domain.StageASR, got.Stage)
	require.Equal(t, domain.StatusPending, got.Status)
	require.Equal(t, []string{"es", "fr"}, []string(got.TargetLangs))

	missing, err := repo.GetByExternalID(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestJobRepo_UpdateStageTimestamps(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	job := newTestJob(1, "")
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.UpdateStage(ctx, job.ExternalID, StageUpdate{
		Stage:    domain.StageASR,
		Status:   domain.StatusRunning,
		Progress: 0.10,
	})
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	require.Nil(t, got.EndedAt)
	startedAt := *got.StartedAt

	// A later RUNNING transition must not move started_at.
	got, err = repo.UpdateStage(ctx, job.ExternalID, StageUpdate{
		Stage:    domain.StageTranslate,
		Status:   domain.StatusRunning,
		Progress: 0.30,
	})
	require.NoError(t, err)
	require.Equal(t, startedAt.Unix(), got.StartedAt.Unix())

	got, err = repo.UpdateStage(ctx, job.ExternalID, StageUpdate{
		Stage:    domain.StageDone,
		Status:   domain.StatusSuccess,
		Progress: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	require.Equal(t, 1.0, got.Progress)
}

func TestJobRepo_UpdateStageFailure(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	job := newTestJob(1, "")
	require.NoError(t, repo.Create(ctx, job))

	msg := "asr: model load failed"
	failed := domain.StageASR
	got, err := repo.UpdateStage(ctx, job.ExternalID, StageUpdate{
		Stage:        domain.StageASR,
		Status:       domain.StatusFailed,
		Progress:     0.10,
		ErrorMessage: &msg,
		FailedStage:  &failed,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.EndedAt)
	require.Equal(t, domain.StageASR, *got.FailedStage)
	require.Equal(t, msg, *got.ErrorMessage)
}

func TestJobRepo_RecordStageHistory(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	job := newTestJob(1, "")
	require.NoError(t, repo.Create(ctx, job))

	err := repo.RecordStageHistory(ctx, job.ExternalID, domain.StageASR, domain.OutcomeStarted, map[string]any{"attempt": 1})
	require.NoError(t, err)
	err = repo.RecordStageHistory(ctx, job.ExternalID, domain.StageASR, domain.OutcomeSuccess, map[string]any{"durationMs": 1200})
	require.NoError(t, err)

	got, err := repo.GetByExternalID(ctx, job.ExternalID)
	require.NoError(t, err)
	entry, ok := got.HistoryEntry(domain.StageASR)
	require.True(t, ok)
	require.Equal(t, domain.OutcomeSuccess, entry.Status)
	require.NotEmpty(t, entry.UpdatedAt)
	// The slot holds only the latest outcome.
	require.NotContains(t, entry.Details, "attempt")
}

func TestJobRepo_ResetForRetry(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	job := newTestJob(1, "")
	require.NoError(t, repo.Create(ctx, job))

	msg := "tts: voice missing"
	failed := domain.StageTTS
	_, err := repo.UpdateStage(ctx, job.ExternalID, StageUpdate{
		Stage:        domain.StageTTS,
		Status:       domain.StatusFailed,
		Progress:     0.55,
		ErrorMessage: &msg,
		FailedStage:  &failed,
	})
	require.NoError(t, err)

	got, err := repo.ResetForRetry(ctx, job.ExternalID, domain.StageTTS)
	require.NoError(t, err)
	require.Equal(t, domain.StageTTS, got.Stage)
	require.Equal(t, domain.StatusPending, got.Status)
	require.Zero(t, got.Progress)
	require.Nil(t, got.FailedStage)
	require.Nil(t, got.ErrorMessage)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.EndedAt)
}

func TestJobRepo_Cancel(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	job := newTestJob(1, "")
	require.NoError(t, repo.Create(ctx, job))
	_, err := repo.UpdateStage(ctx, job.ExternalID, StageUpdate{
		Stage:    domain.StageTranslate,
		Status:   domain.StatusRunning,
		Progress: 0.30,
	})
	require.NoError(t, err)

	got, err := repo.Cancel(ctx, job.ExternalID, "cancelled by operator")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, got.Status)
	require.Equal(t, domain.StageTranslate, *got.FailedStage)
	require.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.EndedAt)
}

func TestJobRepo_CountActiveForRequester(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newTestJob(uint(i+1), "client-a")))
	}
	doneJob := newTestJob(9, "client-a")
	require.NoError(t, repo.Create(ctx, doneJob))
	_, err := repo.UpdateStage(ctx, doneJob.ExternalID, StageUpdate{
		Stage:    domain.StageDone,
		Status:   domain.StatusSuccess,
		Progress: 1.0,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newTestJob(10, "client-b")))

	count, err := repo.CountActiveForRequester(ctx, "client-a")
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	count, err = repo.CountActiveForRequester(ctx, "")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestJobRepo_ListAndCounts(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewJobRepo(db, log)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newTestJob(uint(i+1), "")))
	}
	running := newTestJob(6, "")
	require.NoError(t, repo.Create(ctx, running))
	_, err := repo.UpdateStage(ctx, running.ExternalID, StageUpdate{
		Stage:    domain.StageTTS,
		Status:   domain.StatusRunning,
		Progress: 0.55,
	})
	require.NoError(t, err)

	page, total, err := repo.List(ctx, 1, 4)
	require.NoError(t, err)
	require.EqualValues(t, 6, total)
	require.Len(t, page, 4)

	page, _, err = repo.List(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 2)

	byStatus, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, byStatus[domain.StatusPending])
	require.EqualValues(t, 1, byStatus[domain.StatusRunning])

	byStage, err := repo.CountRunningByStage(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, byStage[domain.StageTTS])

	recent, err := repo.FetchRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
}
