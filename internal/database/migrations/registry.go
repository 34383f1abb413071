package migrations

import (
	"github.com/jmylchreest/convertarr/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
//   - 001: conversions table
//   - 002: index for newest-first history listing by direction
func AllMigrations() []Migration {
	return []Migration{
		migration001Conversions(),
		migration002HistoryIndex(),
	}
}

func migration001Conversions() Migration {
	return Migration{
		Version:     "001",
		Description: "Create conversions table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Conversion{})
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.Conversion{})
		},
	}
}

const historyIndex = "idx_conversions_direction_completed"

func migration002HistoryIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Add direction/completed_at index to conversions",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Conversion{}, historyIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + historyIndex + " ON conversions (direction, completed_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Conversion{}, historyIndex) {
				return tx.Migrator().DropIndex(&models.Conversion{}, historyIndex)
			}
			return nil
		},
	}
}
