// Package catalog provides read-only lookups over the production stage
// sequence. Stages are seeded from configuration and immutable at runtime.
package catalog

import (
	"fmt"

	"github.com/velomade/shopfloor/internal/models"
	"gorm.io/gorm"
)

// StagesInOrder returns all active stages ordered by sequence.
func StagesInOrder(db *gorm.DB) ([]models.Stage, error) {
	var stages []models.Stage
	if err := db.Where("active = ?", true).Order("sequence ASC").Find(&stages).Error; err != nil {
		return nil, fmt.Errorf("catalog: list stages: %w", err)
	}
	return stages, nil
}

// FirstStage returns the first active stage, or nil if none are configured.
func FirstStage(db *gorm.DB) (*models.Stage, error) {
	return nextAfter(db, 0)
}

// NextStage returns the first active stage with a sequence strictly greater
// than currentSeq. A nil stage with a nil error means no stage remains —
// the order-complete signal, not an error.
func NextStage(db *gorm.DB, currentSeq int) (*models.Stage, error) {
	return nextAfter(db, currentSeq)
}

// ByID looks up a single stage by primary key.
func ByID(db *gorm.DB, id uint) (*models.Stage, error) {
	var stage models.Stage
	result := db.Limit(1).Find(&stage, id)
	if result.Error != nil {
		return nil, fmt.Errorf("catalog: stage %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("catalog: stage %d not found", id)
	}
	return &stage, nil
}

func nextAfter(db *gorm.DB, seq int) (*models.Stage, error) {
	var stage models.Stage
	result := db.Where("active = ? AND sequence > ?", true, seq).
		Order("sequence ASC").
		Limit(1).
		Find(&stage)
	if result.Error != nil {
		return nil, fmt.Errorf("catalog: stage after %d: %w", seq, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &stage, nil
}
