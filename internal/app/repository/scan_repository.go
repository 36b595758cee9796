package repository

import (
	"context"

	"github.com/qrtrail/qrtrail/internal/app/model"
	"gorm.io/gorm"
)

// ScanRepository defines the data access contract for scan records.
type ScanRepository interface {
	Create(ctx context.Context, scan *model.Scan) error
	ListByReference(ctx context.Context, ref string, limit, offset int) ([]model.Scan, error)
	ListAll(ctx context.Context) ([]model.Scan, error)
	DeleteByReference(ctx context.Context, ref string) (int64, error)
	CountByReference(ctx context.Context, ref string) (int64, error)
	CountDistinctIPsByReference(ctx context.Context, ref string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type scanRepository struct {
	db *gorm.DB
}

// NewScanRepository returns a GORM-backed ScanRepository.
func NewScanRepository(db *gorm.DB) ScanRepository {
	return &scanRepository{db: db}
}

func (r *scanRepository) Create(ctx context.Context, scan *model.Scan) error {
	return r.db.WithContext(ctx).Create(scan).Error
}

func (r *scanRepository) ListByReference(ctx context.Context, ref string, limit, offset int) ([]model.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.Scan
	if err := r.db.WithContext(ctx).
		Where("code_reference = ?", ref).
		Order("captured_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// ListAll returns every scan row, oldest first. Used by the CSV export only.
func (r *scanRepository) ListAll(ctx context.Context) ([]model.Scan, error) {
	var result []model.Scan
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *scanRepository) DeleteByReference(ctx context.Context, ref string) (int64, error) {
	result := r.db.WithContext(ctx).Where("code_reference = ?", ref).Delete(&model.Scan{})
	return result.RowsAffected, result.Error
}

func (r *scanRepository) CountByReference(ctx context.Context, ref string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&model.Scan{}).
		Where("code_reference = ?", ref).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *scanRepository) CountDistinctIPsByReference(ctx context.Context, ref string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&model.Scan{}).
		Where("code_reference = ?", ref).
		Distinct("ip").
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *scanRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Scan{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
