package models

// Stage is one ordered step in the production sequence.
//
// Stages are seeded from configuration at `sf db init` and are never
// created or retired by the engine at runtime.
type Stage struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	Sequence           int    `gorm:"uniqueIndex;not null"`
	Name               string `gorm:"size:64;not null"`
	EstimatedMinutes   int    `gorm:"default:60"`
	NotifyOnAssignment bool
	// Active carries no column default: a false value from config must
	// survive the insert, which GORM's default-tag zero-value handling
	// would otherwise swallow.
	Active bool `gorm:"not null"`
}
