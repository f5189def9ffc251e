package services

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/dubwise/dubwise-backend/internal/data/repos/assets"
	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/storage"
)

// UploadPart is one presigned PUT slot. Uploads are presigned as a single
// part today; the shape leaves room for true multipart later.
type UploadPart struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

type UploadInit struct {
	AssetID  string       `json:"assetId"`
	Key      string       `json:"key"`
	PartSize int64        `json:"partSize"`
	Parts    []UploadPart `json:"parts"`
}

type UploadService struct {
	assets       assets.AssetRepo
	store        storage.ObjectStore
	bucketRaw    string
	partSize     int64
	maxSize      int64
	uploadExpiry time.Duration
	log          *logger.Logger
}

func NewUploadService(assetRepo assets.AssetRepo, store storage.ObjectStore, bucketRaw string, partSize, maxSize int64, uploadExpiry time.Duration, baseLog *logger.Logger) *UploadService {
	return &UploadService{
		assets:       assetRepo,
		store:        store,
		bucketRaw:    bucketRaw,
		partSize:     partSize,
		maxSize:      maxSize,
		uploadExpiry: uploadExpiry,
		log:          baseLog.With("service", "UploadService"),
	}
}

// Init allocates an asset, registers its raw storage key, and presigns the
// upload slot. The key is bucket-qualified so downstream consumers never
// guess which bucket a role lives in.
func (s *UploadService) Init(ctx context.Context, filename string, sizeBytes int64, userID *string) (*UploadInit, error) {
	if s.maxSize > 0 && sizeBytes > s.maxSize {
		return nil, ErrUploadTooBig
	}
	if filename == "" {
		filename = "upload.bin"
	}
	filename = path.Base(filename)

	externalID := uuid.NewString()
	objectKey := externalID + "/" + filename
	rawKey := s.bucketRaw + "/" + objectKey

	asset := &domain.Asset{ExternalID: externalID, UserID: userID}
	asset.SetStorageKey(domain.StorageRoleRaw, rawKey)
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, err
	}

	url, err := s.store.PresignPut(ctx, s.bucketRaw, objectKey, s.uploadExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	s.log.Info("Upload initialized", "assetId", externalID, "key", rawKey, "sizeBytes", sizeBytes)
	return &UploadInit{
		AssetID:  externalID,
		Key:      rawKey,
		PartSize: s.partSize,
		Parts:    []UploadPart{{PartNumber: 1, URL: url}},
	}, nil
}

// Complete verifies the raw object landed and records the language settings.
func (s *UploadService) Complete(ctx context.Context, assetID, srcLang string, targetLangs []string) (*domain.Asset, error) {
	asset, err := s.assets.GetByExternalID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, ErrNotFound
	}
	rawKey, ok := asset.StorageKey(domain.StorageRoleRaw)
	if !ok {
		return nil, ErrMissingRaw
	}
	objectKey, _ := cutBucket(rawKey, s.bucketRaw)
	exists, err := s.store.Exists(ctx, s.bucketRaw, objectKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrMissingRaw
	}

	var src *string
	if srcLang != "" {
		src = &srcLang
	}
	updated, err := s.assets.UpdateLangs(ctx, assetID, src, targetLangs)
	if err != nil {
		return nil, err
	}
	s.log.Info("Upload completed", "assetId", assetID, "srcLang", srcLang, "targetLangs", targetLangs)
	return updated, nil
}

func cutBucket(key, bucket string) (string, bool) {
	prefix := bucket + "/"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):], true
	}
	return key, false
}
