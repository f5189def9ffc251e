package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dubwise/dubwise-backend/internal/domain"
)

func (f *fixture) assetService() *AssetService {
	return NewAssetService(f.assets, f.store, "pub", time.Hour, f.log)
}

func TestAssetService_Get(t *testing.T) {
	f := newFixture(t)
	svc := f.assetService()
	ctx := context.Background()

	_, err := svc.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	asset := f.seedAsset(t, []string{"es"})
	view, err := svc.Get(ctx, asset.ExternalID)
	require.NoError(t, err)
	require.Equal(t, asset.ExternalID, view.AssetID)
	require.Equal(t, []string{"es"}, view.TargetLangs)
	// Nothing published yet, so no outputs block.
	require.Nil(t, view.Outputs)
}

func TestAssetService_Get_PublishedOutputs(t *testing.T) {
	f := newFixture(t)
	svc := f.assetService()
	ctx := context.Background()

	asset := f.seedAsset(t, []string{"es"})
	_, err := f.assets.MergeStorageKeys(ctx, asset.ExternalID, map[string]string{
		domain.StorageRolePublic:    "pub/" + asset.ExternalID + "/master.m3u8",
		domain.PublicLangRole("es"): "pub/" + asset.ExternalID + "/es/dubbed.wav",
	})
	require.NoError(t, err)

	view, err := svc.Get(ctx, asset.ExternalID)
	require.NoError(t, err)
	require.Contains(t, view.Outputs, "hls")
	require.True(t, strings.HasPrefix(view.Outputs["hls"], "memory://get/pub/"))
	require.Contains(t, view.Outputs["hls"], "master.m3u8")
}

func TestAssetService_MasterPlaylistURL(t *testing.T) {
	f := newFixture(t)
	svc := f.assetService()
	ctx := context.Background()

	_, err := svc.MasterPlaylistURL(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	asset := f.seedAsset(t, []string{"es"})
	// Nothing published yet.
	_, err = svc.MasterPlaylistURL(ctx, asset.ExternalID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.assets.MergeStorageKeys(ctx, asset.ExternalID, map[string]string{
		domain.StorageRolePublic: "pub/" + asset.ExternalID + "/master.m3u8",
	})
	require.NoError(t, err)

	url, err := svc.MasterPlaylistURL(ctx, asset.ExternalID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "memory://get/pub/"))
}

func TestAssetService_DegradedPublishKeyReturnedVerbatim(t *testing.T) {
	f := newFixture(t)
	svc := f.assetService()
	ctx := context.Background()

	asset := f.seedAsset(t, []string{"es"})
	// A degraded publish leaves a local path instead of a bucket key.
	localPath := "data/proc/" + asset.ExternalID + "/mix/es/dubbed.wav"
	_, err := f.assets.MergeStorageKeys(ctx, asset.ExternalID, map[string]string{
		domain.StorageRolePublic: localPath,
	})
	require.NoError(t, err)

	url, err := svc.MasterPlaylistURL(ctx, asset.ExternalID)
	require.NoError(t, err)
	require.Equal(t, localPath, url)
}
