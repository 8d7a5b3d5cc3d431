package models

import "time"

// PerformanceMetric is a rolling daily aggregate of one worker's output for
// one stage. Day is a calendar-day bucket in YYYY-MM-DD form. Rows are
// created on the first task of the day and updated incrementally on every
// completion; they are never recomputed from raw events.
type PerformanceMetric struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	WorkerID          string `gorm:"size:64;not null;uniqueIndex:idx_worker_stage_day"`
	StageID           uint   `gorm:"not null;uniqueIndex:idx_worker_stage_day"`
	Day               string `gorm:"size:10;not null;uniqueIndex:idx_worker_stage_day"`
	TasksAssigned     int    `gorm:"default:0"`
	TasksCompleted    int    `gorm:"default:0"`
	CompletionRate    float64
	AvgTaskMinutes    float64
	AvgQualityScore   float64
	SpeedEfficiency   float64
	ProductivityScore float64
	TotalScore        float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
