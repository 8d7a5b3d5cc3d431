package assign

import (
	"fmt"
	"time"

	"github.com/velomade/shopfloor/internal/models"
	"gorm.io/gorm"
)

// AvailabilityUpdate is one authoritative write from an external
// attendance/HR feed. Zero-valued fields are left untouched.
type AvailabilityUpdate struct {
	WorkerID         string
	StageID          *uint // nil applies to every stage the worker covers
	Status           string
	SkillLevel       string
	ExperienceMonths *int
}

var validStatuses = map[string]bool{
	models.AvailabilityAvailable:   true,
	models.AvailabilityBusy:        true,
	models.AvailabilityOnBreak:     true,
	models.AvailabilityUnavailable: true,
}

var validSkills = map[string]bool{
	models.SkillBeginner:     true,
	models.SkillIntermediate: true,
	models.SkillExpert:       true,
	models.SkillMaster:       true,
}

// ApplyAvailability applies a feed update to the worker's capability rows.
// A worker reported unavailable mid-task keeps its current reservations;
// the status only excludes it from future scoring until the feed clears it.
// Returns the number of rows updated.
func ApplyAvailability(db *gorm.DB, upd AvailabilityUpdate, now time.Time) (int64, error) {
	if upd.WorkerID == "" {
		return 0, fmt.Errorf("assign: worker id is required")
	}

	updates := map[string]interface{}{}
	if upd.Status != "" {
		if !validStatuses[upd.Status] {
			return 0, fmt.Errorf("assign: unknown availability status %q", upd.Status)
		}
		updates["availability_status"] = upd.Status
		updates["availability_changed_at"] = now
	}
	if upd.SkillLevel != "" {
		if !validSkills[upd.SkillLevel] {
			return 0, fmt.Errorf("assign: unknown skill level %q", upd.SkillLevel)
		}
		updates["skill_level"] = upd.SkillLevel
	}
	if upd.ExperienceMonths != nil {
		if *upd.ExperienceMonths < 0 {
			return 0, fmt.Errorf("assign: experience months must be non-negative")
		}
		updates["experience_months"] = *upd.ExperienceMonths
	}
	if len(updates) == 0 {
		return 0, fmt.Errorf("assign: update for worker %s has no fields", upd.WorkerID)
	}

	q := db.Model(&models.WorkerCapability{}).Where("worker_id = ?", upd.WorkerID)
	if upd.StageID != nil {
		q = q.Where("stage_id = ?", *upd.StageID)
	}
	result := q.Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("assign: apply availability for %s: %w", upd.WorkerID, result.Error)
	}
	return result.RowsAffected, nil
}
