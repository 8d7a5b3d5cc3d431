package models

import "time"

// OrderProgress statuses. Pending, assigned and in_progress are the active
// statuses; completed and cancelled are terminal and immutable once set.
// Blocked is a side state: inactive but not terminal.
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
	StatusCancelled  = "cancelled"
)

// Order priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ActiveStatuses are the statuses that count against a worker's concurrency
// cap and toward the one-active-stage-per-order invariant.
var ActiveStatuses = []string{StatusPending, StatusAssigned, StatusInProgress}

// ReservedStatuses are the statuses under which a worker reservation is held.
var ReservedStatuses = []string{StatusAssigned, StatusInProgress}

// OrderProgress is the record of one order's journey through one stage.
// A row is created when the order enters the stage and reaches a terminal
// status when the stage is completed or the order is cancelled. An order
// visits each stage at most once; the unique index enforces that at the
// database even when two writers race past the open-row check.
type OrderProgress struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	OrderID          string `gorm:"size:32;not null;uniqueIndex:uniq_order_stage"`
	StageID          uint   `gorm:"not null;uniqueIndex:uniq_order_stage;index"`
	Status           string `gorm:"size:16;default:pending;index"`
	WorkerID         string `gorm:"size:64;index"`
	Priority         string `gorm:"size:8;default:normal"`
	EstimatedMinutes int
	DueAt            *time.Time
	AssignedAt       *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ActualMinutes    float64
	EfficiencyPct    float64
	QualityScore     *float64
	Notes            string `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the row can no longer change.
func (p *OrderProgress) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusCancelled
}
