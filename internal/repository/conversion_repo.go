package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/convertarr/internal/models"
	"gorm.io/gorm"
)

// conversionRepo implements ConversionRepository using GORM.
type conversionRepo struct {
	db *gorm.DB
}

// NewConversionRepository creates a new ConversionRepository.
func NewConversionRepository(db *gorm.DB) *conversionRepo {
	return &conversionRepo{db: db}
}

// Create validates and stores a conversion record.
func (r *conversionRepo) Create(ctx context.Context, conversion *models.Conversion) error {
	if err := conversion.Validate(); err != nil {
		return fmt.Errorf("validating conversion: %w", err)
	}
	if conversion.CompletedAt.IsZero() {
		conversion.CompletedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(conversion).Error; err != nil {
		return fmt.Errorf("creating conversion: %w", err)
	}
	return nil
}

// GetByID retrieves a conversion by ID. It returns nil, nil when no record exists.
func (r *conversionRepo) GetByID(ctx context.Context, id models.ULID) (*models.Conversion, error) {
	var conversion models.Conversion
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting conversion by ID: %w", err)
	}
	return &conversion, nil
}

// GetByOutputName retrieves the conversion that produced the named artifact.
func (r *conversionRepo) GetByOutputName(ctx context.Context, name string) (*models.Conversion, error) {
	var conversion models.Conversion
	if err := r.db.WithContext(ctx).Where("output_name = ?", name).First(&conversion).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting conversion by output name: %w", err)
	}
	return &conversion, nil
}

// List retrieves conversions newest first with pagination.
func (r *conversionRepo) List(ctx context.Context, filter ConversionFilter, offset, limit int) ([]*models.Conversion, int64, error) {
	var conversions []*models.Conversion
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Conversion{})
	if filter.Direction != "" {
		query = query.Where("direction = ?", filter.Direction)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting conversions: %w", err)
	}

	if err := query.Order("completed_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&conversions).Error; err != nil {
		return nil, 0, fmt.Errorf("listing conversions: %w", err)
	}

	return conversions, total, nil
}

// DeleteCompletedBefore removes records completed before the given time.
func (r *conversionRepo) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("completed_at < ?", before).
		Delete(&models.Conversion{})

	if result.Error != nil {
		return 0, fmt.Errorf("deleting conversions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure conversionRepo implements ConversionRepository at compile time.
var _ ConversionRepository = (*conversionRepo)(nil)
