package assets

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

type AssetRepo interface {
	Create(ctx context.Context, asset *domain.Asset) error
	GetByExternalID(ctx context.Context, externalID string) (*domain.Asset, error)
	GetByID(ctx context.Context, id uint) (*domain.Asset, error)
	List(ctx context.Context, page, pageSize int) ([]*domain.Asset, int64, error)
	UpdateLangs(ctx context.Context, externalID string, srcLang *string, targetLangs []string) (*domain.Asset, error)
	UpdateDuration(ctx context.Context, externalID string, durationSec float64) error
	// MergeStorageKeys adds the given role→key entries inside one
	// transaction, preserving roles written by concurrent stages.
	MergeStorageKeys(ctx context.Context, externalID string, keys map[string]string) (*domain.Asset, error)
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) Create(ctx context.Context, asset *domain.Asset) error {
	if asset == nil {
		return fmt.Errorf("nil asset")
	}
	return r.db.WithContext(ctx).Create(asset).Error
}

func (r *assetRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) GetByID(ctx context.Context, id uint) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.db.WithContext(ctx).First(&asset, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) List(ctx context.Context, page, pageSize int) ([]*domain.Asset, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}
	var out []*domain.Asset
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *assetRepo) UpdateLangs(ctx context.Context, externalID string, srcLang *string, targetLangs []string) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_id = ?", externalID).First(&asset).Error; err != nil {
			return err
		}
		if srcLang != nil {
			asset.SrcLang = srcLang
		}
		if targetLangs != nil {
			asset.TargetLangs = datatypes.NewJSONSlice(targetLangs)
		}
		asset.UpdatedAt = time.Now().UTC()
		return tx.Save(&asset).Error
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepo) UpdateDuration(ctx context.Context, externalID string, durationSec float64) error {
	return r.db.WithContext(ctx).Model(&domain.Asset{}).
		Where("external_id = ?", externalID).
		Updates(map[string]interface{}{
			"duration_sec": durationSec,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *assetRepo) MergeStorageKeys(ctx context.Context, externalID string, keys map[string]string) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_id = ?", externalID).First(&asset).Error; err != nil {
			return err
		}
		for role, key := range keys {
			asset.SetStorageKey(role, key)
		}
		asset.UpdatedAt = time.Now().UTC()
		return tx.Save(&asset).Error
	})
	if err != nil {
		return nil, err
	}
	return &asset, nil
}
