package db

import (
	"fmt"

	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Stage{},
		&models.WorkerCapability{},
		&models.OrderProgress{},
		&models.Transition{},
		&models.PerformanceMetric{},
	}
}

// AutoMigrate creates or updates all engine tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedStages upserts Stage rows from configuration. The engine itself never
// writes the stage table; configuration is the only source of stages.
func SeedStages(db *gorm.DB, stages []config.StageConfig) error {
	for _, sc := range stages {
		stage := models.Stage{
			Sequence:           sc.Sequence,
			Name:               sc.Name,
			EstimatedMinutes:   sc.EstimatedMinutes,
			NotifyOnAssignment: sc.NotifyOnAssignment,
			Active:             sc.IsActive(),
		}

		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sequence"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "estimated_minutes", "notify_on_assignment", "active"}),
		}).Create(&stage)
		if result.Error != nil {
			return fmt.Errorf("db: seed stage %q: %w", sc.Name, result.Error)
		}
	}
	return nil
}
