// Package report builds read-only projections over the engine's tables for
// operators and external dashboards.
package report

import (
	"fmt"
	"sort"

	"github.com/velomade/shopfloor/internal/models"
	"gorm.io/gorm"
)

// PerformerRow is one worker/stage pair in the top-performer list.
type PerformerRow struct {
	WorkerID         string
	StageID          uint
	StageName        string
	CompletedTasks   int
	EfficiencyRating float64
}

// AssignmentReport aggregates the live assignment picture.
type AssignmentReport struct {
	ProgressByStatus      map[string]int
	WorkersByAvailability map[string]int
	AvgEfficiency         float64
	TopPerformers         []PerformerRow
}

// BuildAssignmentReport returns counts by progress status and worker
// availability, the mean efficiency rating across active capabilities, and
// the top performers by cumulative completed tasks.
func BuildAssignmentReport(db *gorm.DB) (*AssignmentReport, error) {
	report := &AssignmentReport{
		ProgressByStatus:      make(map[string]int),
		WorkersByAvailability: make(map[string]int),
	}

	type statusRow struct {
		Status string
		Count  int
	}
	var statuses []statusRow
	err := db.Model(&models.OrderProgress{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("report: progress counts: %w", err)
	}
	for _, r := range statuses {
		report.ProgressByStatus[r.Status] = r.Count
	}

	type availRow struct {
		AvailabilityStatus string
		Count              int
	}
	var avails []availRow
	err = db.Model(&models.WorkerCapability{}).
		Select("availability_status, count(*) as count").
		Where("active = ?", true).
		Group("availability_status").
		Find(&avails).Error
	if err != nil {
		return nil, fmt.Errorf("report: availability counts: %w", err)
	}
	for _, r := range avails {
		report.WorkersByAvailability[r.AvailabilityStatus] = r.Count
	}

	var caps []models.WorkerCapability
	if err := db.Where("active = ?", true).Find(&caps).Error; err != nil {
		return nil, fmt.Errorf("report: load capabilities: %w", err)
	}
	if len(caps) > 0 {
		var sum float64
		for _, c := range caps {
			sum += c.EfficiencyRating
		}
		report.AvgEfficiency = sum / float64(len(caps))
	}

	stageNames, err := stageNameIndex(db)
	if err != nil {
		return nil, err
	}
	performers := make([]PerformerRow, 0, len(caps))
	for _, c := range caps {
		if c.CompletedTasks == 0 {
			continue
		}
		performers = append(performers, PerformerRow{
			WorkerID:         c.WorkerID,
			StageID:          c.StageID,
			StageName:        stageNames[c.StageID],
			CompletedTasks:   c.CompletedTasks,
			EfficiencyRating: c.EfficiencyRating,
		})
	}
	sort.Slice(performers, func(i, j int) bool {
		if performers[i].CompletedTasks != performers[j].CompletedTasks {
			return performers[i].CompletedTasks > performers[j].CompletedTasks
		}
		return performers[i].EfficiencyRating > performers[j].EfficiencyRating
	})
	if len(performers) > 10 {
		performers = performers[:10]
	}
	report.TopPerformers = performers

	return report, nil
}

// DailyStat is one worker/stage performance row for a calendar day.
type DailyStat struct {
	WorkerID          string
	StageID           uint
	StageName         string
	TasksAssigned     int
	TasksCompleted    int
	CompletionRate    float64
	AvgTaskMinutes    float64
	AvgQualityScore   float64
	SpeedEfficiency   float64
	ProductivityScore float64
	TotalScore        float64
}

// DailyPerformanceStats returns every performance metric row for the given
// day bucket (YYYY-MM-DD), ordered by total score descending.
func DailyPerformanceStats(db *gorm.DB, day string) ([]DailyStat, error) {
	var metrics []models.PerformanceMetric
	err := db.Where("day = ?", day).
		Order("total_score DESC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("report: daily stats for %s: %w", day, err)
	}

	stageNames, err := stageNameIndex(db)
	if err != nil {
		return nil, err
	}

	stats := make([]DailyStat, len(metrics))
	for i, m := range metrics {
		stats[i] = DailyStat{
			WorkerID:          m.WorkerID,
			StageID:           m.StageID,
			StageName:         stageNames[m.StageID],
			TasksAssigned:     m.TasksAssigned,
			TasksCompleted:    m.TasksCompleted,
			CompletionRate:    m.CompletionRate,
			AvgTaskMinutes:    m.AvgTaskMinutes,
			AvgQualityScore:   m.AvgQualityScore,
			SpeedEfficiency:   m.SpeedEfficiency,
			ProductivityScore: m.ProductivityScore,
			TotalScore:        m.TotalScore,
		}
	}
	return stats, nil
}

// OrderHistory returns the order's transition log in chronological order.
func OrderHistory(db *gorm.DB, orderID string) ([]models.Transition, error) {
	var transitions []models.Transition
	err := db.Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&transitions).Error
	if err != nil {
		return nil, fmt.Errorf("report: history for order %s: %w", orderID, err)
	}
	return transitions, nil
}

func stageNameIndex(db *gorm.DB) (map[uint]string, error) {
	var stages []models.Stage
	if err := db.Find(&stages).Error; err != nil {
		return nil, fmt.Errorf("report: load stages: %w", err)
	}
	names := make(map[uint]string, len(stages))
	for _, s := range stages {
		names[s.ID] = s.Name
	}
	return names, nil
}
