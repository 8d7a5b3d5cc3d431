package models

import "time"

// Transition types.
const (
	TransitionStart          = "start"
	TransitionNormal         = "normal"
	TransitionEscalation     = "escalation"
	TransitionManualOverride = "manual_override"
)

// Transition is an append-only audit record of a stage/worker change for an
// order. Rows are never updated or deleted.
type Transition struct {
	ID           string `gorm:"primaryKey;size:36"`
	OrderID      string `gorm:"size:32;not null;index"`
	FromStageID  *uint
	ToStageID    uint
	FromWorkerID string `gorm:"size:64"`
	ToWorkerID   string `gorm:"size:64"`
	Actor        string `gorm:"size:64"`
	Type         string `gorm:"size:16;index"`
	Reason       string `gorm:"type:text"`
	CreatedAt    time.Time
}
