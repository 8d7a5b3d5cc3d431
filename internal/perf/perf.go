// Package perf maintains the rolling daily performance metrics that feed
// back into worker scoring. Every update is an O(1) incremental merge on
// the day's row; historical rows are never recomputed from raw events.
package perf

import (
	"fmt"

	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordStart upserts the day's metric row for (worker, stage), counting
// one more assigned task. Called when a reservation is made.
func RecordStart(tx *gorm.DB, cache *scoring.Cache, workerID string, stageID uint, day string) error {
	metric := models.PerformanceMetric{
		WorkerID:      workerID,
		StageID:       stageID,
		Day:           day,
		TasksAssigned: 1,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "worker_id"}, {Name: "stage_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"tasks_assigned": gorm.Expr("tasks_assigned + 1"),
		}),
	}).Create(&metric).Error
	if err != nil {
		return fmt.Errorf("perf: record start for %s/%d on %s: %w", workerID, stageID, day, err)
	}
	cache.Invalidate(workerID, stageID)
	return nil
}

// RecordCompletion merges one completed task into the day's metric row.
// The row normally exists from the start event; if it is missing the row is
// created with one assignment so the completion rate stays consistent.
// quality may be nil when the completion carried no quality score; the
// rolling quality average is then left unchanged.
func RecordCompletion(tx *gorm.DB, cache *scoring.Cache, workerID string, stageID uint, day string, actualMinutes, efficiencyPct float64, quality *float64) error {
	var m models.PerformanceMetric
	result := tx.Where("worker_id = ? AND stage_id = ? AND day = ?", workerID, stageID, day).
		Limit(1).
		Find(&m)
	if result.Error != nil {
		return fmt.Errorf("perf: load metric for %s/%d on %s: %w", workerID, stageID, day, result.Error)
	}
	if result.RowsAffected == 0 {
		m = models.PerformanceMetric{
			WorkerID:      workerID,
			StageID:       stageID,
			Day:           day,
			TasksAssigned: 1,
		}
	}

	oldCount := m.TasksCompleted
	newCount := oldCount + 1

	m.TasksCompleted = newCount
	if m.TasksAssigned < newCount {
		m.TasksAssigned = newCount
	}
	m.CompletionRate = float64(m.TasksCompleted) / float64(m.TasksAssigned) * 100
	m.AvgTaskMinutes = (m.AvgTaskMinutes*float64(oldCount) + actualMinutes) / float64(newCount)
	if quality != nil {
		m.AvgQualityScore = (m.AvgQualityScore*float64(oldCount) + *quality) / float64(newCount)
	}
	m.SpeedEfficiency = efficiencyPct

	m.ProductivityScore = m.SpeedEfficiency*0.6 + m.AvgQualityScore*10*0.4

	total := m.SpeedEfficiency*0.4 + m.AvgQualityScore*10*0.4 + m.CompletionRate*0.2
	if m.SpeedEfficiency > 120 {
		total += 10
	}
	if m.AvgQualityScore >= 9 {
		total += 15
	}
	if m.CompletionRate >= 95 {
		total += 5
	}
	m.TotalScore = total

	if err := tx.Save(&m).Error; err != nil {
		return fmt.Errorf("perf: record completion for %s/%d on %s: %w", workerID, stageID, day, err)
	}
	cache.Invalidate(workerID, stageID)
	return nil
}
