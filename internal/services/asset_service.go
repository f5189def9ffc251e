package services

import (
	"context"
	"strings"
	"time"

	"github.com/dubwise/dubwise-backend/internal/data/repos/assets"
	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/storage"
)

// AssetView is the wire shape of an asset. Outputs carries presigned URLs
// for published artifacts and is omitted until something is published.
type AssetView struct {
	AssetID     string            `json:"assetId"`
	SrcLang     *string           `json:"srcLang,omitempty"`
	TargetLangs []string          `json:"targetLangs"`
	StorageKeys map[string]string `json:"storageKeys,omitempty"`
	DurationSec *float64          `json:"durationSec,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type AssetService struct {
	assets       assets.AssetRepo
	store        storage.ObjectStore
	bucketPublic string
	expiry       time.Duration
	log          *logger.Logger
}

func NewAssetService(assetRepo assets.AssetRepo, store storage.ObjectStore, bucketPublic string, downloadExpiry time.Duration, baseLog *logger.Logger) *AssetService {
	return &AssetService{
		assets:       assetRepo,
		store:        store,
		bucketPublic: bucketPublic,
		expiry:       downloadExpiry,
		log:          baseLog.With("service", "AssetService"),
	}
}

func (s *AssetService) Get(ctx context.Context, externalID string) (*AssetView, error) {
	asset, err := s.assets.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrNotFound
	}

	view := &AssetView{
		AssetID:     asset.ExternalID,
		SrcLang:     asset.SrcLang,
		TargetLangs: []string(asset.TargetLangs),
		StorageKeys: asset.StorageKeys.Data(),
		DurationSec: asset.DurationSec,
		CreatedAt:   asset.CreatedAt,
	}
	if key, ok := asset.StorageKey(domain.StorageRolePublic); ok {
		url, err := s.presignPublic(ctx, key)
		if err != nil {
			s.log.Warn("Presigning public key failed", "assetId", externalID, "error", err)
		} else {
			view.Outputs = map[string]string{"hls": url}
		}
	}
	return view, nil
}

// MasterPlaylistURL presigns the published master playlist for the asset.
func (s *AssetService) MasterPlaylistURL(ctx context.Context, externalID string) (string, error) {
	asset, err := s.assets.GetByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if asset == nil {
		return "", ErrNotFound
	}
	key, ok := asset.StorageKey(domain.StorageRolePublic)
	if !ok {
		return "", ErrNotFound
	}
	return s.presignPublic(ctx, key)
}

// presignPublic accepts both bucket-qualified keys ("pub/<asset>/master.m3u8")
// and the local-path form left by a degraded publish, which is returned as-is.
func (s *AssetService) presignPublic(ctx context.Context, key string) (string, error) {
	objectKey, ok := strings.CutPrefix(key, s.bucketPublic+"/")
	if !ok {
		return key, nil
	}
	return s.store.PresignGet(ctx, s.bucketPublic, objectKey, s.expiry)
}
