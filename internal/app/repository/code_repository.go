package repository

import (
	"context"
	"errors"

	"github.com/qrtrail/qrtrail/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrCodeNotFound signals that no code exists for the requested reference.
	ErrCodeNotFound = errors.New("code not found")
	// ErrDuplicateReference signals a unique-constraint violation on insert.
	// On the auto-provision path it means a concurrent scan won the insert.
	ErrDuplicateReference = errors.New("reference already exists")
)

// CodeWithStats is a code row decorated with the aggregate counts shown in the
// management list.
type CodeWithStats struct {
	Reference      string `gorm:"column:reference" json:"reference"`
	Name           string `gorm:"column:name" json:"name"`
	DestinationURL string `gorm:"column:destination_url" json:"destination_url"`
	Active         bool   `gorm:"column:active" json:"active"`
	ScanCount      int64  `gorm:"column:scan_count" json:"scan_count"`
	UniqueIPCount  int64  `gorm:"column:unique_ip_count" json:"unique_ip_count"`
}

// CodeRepository defines the data access contract for codes.
type CodeRepository interface {
	Create(ctx context.Context, code *model.Code) error
	GetByReference(ctx context.Context, ref string) (*model.Code, error)
	List(ctx context.Context, limit, offset int) ([]CodeWithStats, error)
	ListAll(ctx context.Context) ([]model.Code, error)
	ListReferences(ctx context.Context) ([]string, error)
	Update(ctx context.Context, code *model.Code) error
	SetActive(ctx context.Context, ref string, active bool) error
	Delete(ctx context.Context, ref string) error
	Count(ctx context.Context) (int64, error)
}

type codeRepository struct {
	db *gorm.DB
}

// NewCodeRepository returns a GORM-backed CodeRepository.
func NewCodeRepository(db *gorm.DB) CodeRepository {
	return &codeRepository{db: db}
}

func (r *codeRepository) Create(ctx context.Context, code *model.Code) error {
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (r *codeRepository) GetByReference(ctx context.Context, ref string) (*model.Code, error) {
	var code model.Code
	if err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return &code, nil
}

const listWithStatsSelect = `codes.reference, codes.name, codes.destination_url, codes.active,
(SELECT COUNT(*) FROM scans WHERE scans.code_reference = codes.reference) AS scan_count,
(SELECT COUNT(DISTINCT scans.ip) FROM scans WHERE scans.code_reference = codes.reference) AS unique_ip_count`

func (r *codeRepository) List(ctx context.Context, limit, offset int) ([]CodeWithStats, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []CodeWithStats
	if err := r.db.WithContext(ctx).
		Model(&model.Code{}).
		Select(listWithStatsSelect).
		Order("codes.reference ASC").
		Limit(limit).
		Offset(offset).
		Scan(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// ListAll returns every code row, ordered by reference. Used by the CSV
// export only.
func (r *codeRepository) ListAll(ctx context.Context) ([]model.Code, error) {
	var result []model.Code
	if err := r.db.WithContext(ctx).Order("reference ASC").Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *codeRepository) ListReferences(ctx context.Context) ([]string, error) {
	var refs []string
	if err := r.db.WithContext(ctx).
		Model(&model.Code{}).
		Pluck("reference", &refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *codeRepository) Update(ctx context.Context, code *model.Code) error {
	result := r.db.WithContext(ctx).
		Model(&model.Code{}).
		Where("reference = ?", code.Reference).
		Updates(map[string]interface{}{
			"name":            code.Name,
			"destination_url": code.DestinationURL,
			"active":          code.Active,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}

	return r.db.WithContext(ctx).Where("reference = ?", code.Reference).First(code).Error
}

func (r *codeRepository) SetActive(ctx context.Context, ref string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.Code{}).
		Where("reference = ?", ref).
		Update("active", active)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// Delete removes the code and every scan recorded against its reference in a
// single transaction.
func (r *codeRepository) Delete(ctx context.Context, ref string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code_reference = ?", ref).Delete(&model.Scan{}).Error; err != nil {
			return err
		}

		result := tx.Where("reference = ?", ref).Delete(&model.Code{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCodeNotFound
		}
		return nil
	})
}

func (r *codeRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Code{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
