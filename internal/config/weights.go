package config

import "fmt"

// Weights holds the scoring weights and bonus/penalty magnitudes for the
// worker scoring engine. The defaults are product-tuned values carried over
// from the original floor rollout; they are configuration, not invariants.
type Weights struct {
	// Weighted components. Efficiency is a direct multiplier on the
	// worker's efficiency rating; the remaining three scale 0-100
	// sub-scores into their share of the composite.
	Efficiency  float64 `yaml:"efficiency"`
	Recent      float64 `yaml:"recent"`
	Avail       float64 `yaml:"availability"`
	Experience  float64 `yaml:"experience"`
	NeutralPerf float64 `yaml:"neutral_performance"` // sub-score for workers with no recent metrics

	// Additive bonuses.
	UrgentEfficiencyBonus float64 `yaml:"urgent_efficiency_bonus"` // priority=urgent and rating > 1.2
	HighEfficiencyBonus   float64 `yaml:"high_efficiency_bonus"`   // priority=high and rating > 1.0
	AttendanceBonus       float64 `yaml:"attendance_bonus"`        // metrics present every day of the week
	ZeroDefectBonus       float64 `yaml:"zero_defect_bonus"`       // no defect day in the trailing week
	OnTimeBonus           float64 `yaml:"on_time_bonus"`           // trailing-week speed efficiency >= 95%

	// Subtractive penalties.
	LateCompletionPenalty float64 `yaml:"late_completion_penalty"` // any late day in the trailing week
	LowQualityPenalty     float64 `yaml:"low_quality_penalty"`     // trailing-week avg quality < 7
	HighLoadPenalty       float64 `yaml:"high_load_penalty"`       // active tasks >= 80% of cap
}

// DefaultWeights returns the tuned default scoring parameters.
func DefaultWeights() Weights {
	return Weights{
		Efficiency:  40,
		Recent:      0.30,
		Avail:       0.20,
		Experience:  0.10,
		NeutralPerf: 70,

		UrgentEfficiencyBonus: 25,
		HighEfficiencyBonus:   15,
		AttendanceBonus:       10,
		ZeroDefectBonus:       15,
		OnTimeBonus:           12,

		LateCompletionPenalty: 20,
		LowQualityPenalty:     25,
		HighLoadPenalty:       15,
	}
}

func (w Weights) validate() error {
	if w.Efficiency < 0 || w.Recent < 0 || w.Avail < 0 || w.Experience < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	return nil
}
