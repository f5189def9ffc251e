package segments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dubwise/dubwise-backend/internal/data/repos/testutil"
	"github.com/dubwise/dubwise-backend/internal/domain"
)

func seedSegments(t *testing.T, repo SegmentRepo, assetID uint, n int) {
	t.Helper()
	segs := make([]domain.Segment, 0, n)
	for i := 0; i < n; i++ {
		segs = append(segs, domain.Segment{
			Idx:     i,
			T0:      float64(i) * 2,
			T1:      float64(i)*2 + 1.5,
			TextSrc: "line",
		})
	}
	require.NoError(t, repo.ReplaceForAsset(context.Background(), assetID, segs))
}

func TestSegmentRepo_ReplaceForAsset(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewSegmentRepo(db, log)
	ctx := context.Background()

	seedSegments(t, repo, 1, 3)
	seedSegments(t, repo, 2, 2)

	// Re-running ASR replaces the whole set, never appends.
	seedSegments(t, repo, 1, 4)

	got, err := repo.ListByAsset(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, seg := range got {
		require.Equal(t, i, seg.Idx)
	}

	count, err := repo.CountByAsset(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestSegmentRepo_ApplyTranslations(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewSegmentRepo(db, log)
	ctx := context.Background()

	seedSegments(t, repo, 1, 3)
	require.NoError(t, repo.ApplyTranslations(ctx, 1, map[int]string{
		0: "hola",
		2: "adios",
	}))

	got, err := repo.ListByAsset(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "hola", *got[0].TextTgt)
	require.Nil(t, got[1].TextTgt)
	require.Equal(t, "adios", *got[2].TextTgt)
}

func TestSegmentRepo_ApplySynthKeys(t *testing.T) {
	db, log := testutil.OpenTestDB(t)
	repo := NewSegmentRepo(db, log)
	ctx := context.Background()

	seedSegments(t, repo, 1, 2)
	require.NoError(t, repo.ApplySynthKeys(ctx, 1, map[int]string{
		0: "proc/abc/tts/es/seg_000.wav",
		1: "proc/abc/tts/es/seg_001.wav",
	}))

	got, err := repo.ListByAsset(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "proc/abc/tts/es/seg_000.wav", *got[0].WavTgtKey)
	require.Equal(t, "proc/abc/tts/es/seg_001.wav", *got[1].WavTgtKey)
}
