// Package repository defines data access interfaces for convertarr entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/convertarr/internal/models"
)

// ConversionFilter narrows a conversion listing. Zero values match everything.
type ConversionFilter struct {
	Direction models.Direction
	Status    models.ConversionStatus
}

// ConversionRepository defines operations for conversion history persistence.
type ConversionRepository interface {
	// Create validates and stores a new conversion record.
	Create(ctx context.Context, conversion *models.Conversion) error
	// GetByID retrieves a conversion by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Conversion, error)
	// GetByOutputName retrieves the conversion that produced an artifact.
	GetByOutputName(ctx context.Context, name string) (*models.Conversion, error)
	// List retrieves conversions newest first with pagination.
	List(ctx context.Context, filter ConversionFilter, offset, limit int) ([]*models.Conversion, int64, error)
	// DeleteCompletedBefore deletes records completed before the given time.
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}
