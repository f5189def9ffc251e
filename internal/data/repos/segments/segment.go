package segments

import (
	"context"

	"gorm.io/gorm"

	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

type SegmentRepo interface {
	// ReplaceForAsset swaps the full segment set of an asset atomically.
	// ASR re-runs call this so stale utterances never survive a resume.
	ReplaceForAsset(ctx context.Context, assetID uint, segs []domain.Segment) error
	ListByAsset(ctx context.Context, assetID uint) ([]*domain.Segment, error)
	CountByAsset(ctx context.Context, assetID uint) (int64, error)
	// ApplyTranslations writes text_tgt keyed by segment idx.
	ApplyTranslations(ctx context.Context, assetID uint, texts map[int]string) error
	// ApplySynthKeys writes wav_tgt_key keyed by segment idx.
	ApplySynthKeys(ctx context.Context, assetID uint, keys map[int]string) error
}

type segmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSegmentRepo(db *gorm.DB, baseLog *logger.Logger) SegmentRepo {
	return &segmentRepo{db: db, log: baseLog.With("repo", "SegmentRepo")}
}

func (r *segmentRepo) ReplaceForAsset(ctx context.Context, assetID uint, segs []domain.Segment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("asset_id = ?", assetID).Delete(&domain.Segment{}).Error; err != nil {
			return err
		}
		if len(segs) == 0 {
			return nil
		}
		for i := range segs {
			segs[i].ID = 0
			segs[i].AssetID = assetID
		}
		return tx.Create(&segs).Error
	})
}

func (r *segmentRepo) ListByAsset(ctx context.Context, assetID uint) ([]*domain.Segment, error) {
	var out []*domain.Segment
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("idx ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *segmentRepo) CountByAsset(ctx context.Context, assetID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Segment{}).
		Where("asset_id = ?", assetID).
		Count(&count).Error
	return count, err
}

func (r *segmentRepo) ApplyTranslations(ctx context.Context, assetID uint, texts map[int]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for idx, text := range texts {
			err := tx.Model(&domain.Segment{}).
				Where("asset_id = ? AND idx = ?", assetID, idx).
				Update("text_tgt", text).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *segmentRepo) ApplySynthKeys(ctx context.Context, assetID uint, keys map[int]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for idx, key := range keys {
			err := tx.Model(&domain.Segment{}).
				Where("asset_id = ? AND idx = ?", assetID, idx).
				Update("wav_tgt_key", key).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
