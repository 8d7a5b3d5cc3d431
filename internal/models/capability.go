package models

import "time"

// Availability statuses for a worker on a stage.
const (
	AvailabilityAvailable   = "available"
	AvailabilityBusy        = "busy"
	AvailabilityOnBreak     = "on_break"
	AvailabilityUnavailable = "unavailable"
)

// Skill levels, ordinal from beginner to master.
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillExpert       = "expert"
	SkillMaster       = "master"
)

// WorkerCapability records one worker's eligibility for one stage: skill,
// efficiency, live availability, and the concurrency cap enforced at
// reservation time.
//
// The availability status and the availability-changed timestamp are
// written only by the assign package (reserve/release) and by the external
// availability feed. No other package mutates them.
type WorkerCapability struct {
	ID                    uint    `gorm:"primaryKey;autoIncrement"`
	WorkerID              string  `gorm:"size:64;not null;uniqueIndex:idx_worker_stage"`
	StageID               uint    `gorm:"not null;uniqueIndex:idx_worker_stage"`
	SkillLevel            string  `gorm:"size:16;default:beginner"`
	EfficiencyRating      float64 `gorm:"default:1.0"`
	ExperienceMonths      int     `gorm:"default:0"`
	CompletedTasks        int     `gorm:"default:0"`
	AvailabilityStatus    string  `gorm:"size:16;default:available;index"`
	MaxConcurrentTasks    int     `gorm:"default:1"`
	PrimaryAssignment     bool
	CanTrainOthers        bool
	Active                bool `gorm:"not null"`
	AvailabilityChangedAt time.Time
	LastTaskCompletedAt   *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
