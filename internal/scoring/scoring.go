// Package scoring ranks candidate workers for a stage. Score is a pure
// function over capability and trailing-week performance snapshots; given
// identical inputs it always returns the same value.
package scoring

import (
	"sort"
	"time"

	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/models"
)

// Context carries the order-side inputs to scoring. Score reads only
// Priority; DueAt is reserved for deadline-aware weighting and is carried
// through unread.
type Context struct {
	Priority string
	DueAt    *time.Time
}

// Candidate is one worker's snapshot for a scoring pass.
type Candidate struct {
	Capability  models.WorkerCapability
	Week        WeekStats
	ActiveTasks int
}

// Ranked pairs a candidate with its computed score.
type Ranked struct {
	Candidate
	Score float64
}

// Score computes the composite score for one candidate. The result may
// exceed 100; no normalization is applied.
func Score(c Candidate, ctx Context, w config.Weights) float64 {
	cap := c.Capability

	score := cap.EfficiencyRating * w.Efficiency

	recent := w.NeutralPerf
	if c.Week.HasData {
		recent = c.Week.AvgQuality*10*0.4 + c.Week.AvgSpeed*0.3 + c.Week.AvgCompletion*0.3
	}
	score += recent * w.Recent

	score += availabilityScore(cap) * w.Avail
	score += experienceScore(cap) * w.Experience

	if ctx.Priority == models.PriorityUrgent && cap.EfficiencyRating > 1.2 {
		score += w.UrgentEfficiencyBonus
	}
	if ctx.Priority == models.PriorityHigh && cap.EfficiencyRating > 1.0 {
		score += w.HighEfficiencyBonus
	}
	if c.Week.DaysActive >= 7 {
		score += w.AttendanceBonus
	}
	if c.Week.HasData && !c.Week.HadDefectDay {
		score += w.ZeroDefectBonus
	}
	if c.Week.HasData && c.Week.AvgSpeed >= 95 {
		score += w.OnTimeBonus
	}

	if c.Week.HadLateDay {
		score -= w.LateCompletionPenalty
	}
	if c.Week.HasData && c.Week.AvgQuality < 7 {
		score -= w.LowQualityPenalty
	}
	if cap.MaxConcurrentTasks > 0 &&
		float64(c.ActiveTasks) >= 0.8*float64(cap.MaxConcurrentTasks) {
		score -= w.HighLoadPenalty
	}

	return score
}

// Rank scores all candidates and returns them in descending score order.
// Ties break on higher efficiency rating, then more experience months, then
// fewer completed tasks (the load-balancing tiebreak).
func Rank(cands []Candidate, ctx Context, w config.Weights) []Ranked {
	ranked := make([]Ranked, len(cands))
	for i, c := range cands {
		ranked[i] = Ranked{Candidate: c, Score: Score(c, ctx, w)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ca, cb := a.Capability, b.Capability
		if ca.EfficiencyRating != cb.EfficiencyRating {
			return ca.EfficiencyRating > cb.EfficiencyRating
		}
		if ca.ExperienceMonths != cb.ExperienceMonths {
			return ca.ExperienceMonths > cb.ExperienceMonths
		}
		return ca.CompletedTasks < cb.CompletedTasks
	})
	return ranked
}

// availabilityScore maps live availability to a 0-100 sub-score.
func availabilityScore(c models.WorkerCapability) float64 {
	var base float64
	switch c.AvailabilityStatus {
	case models.AvailabilityAvailable:
		base = 100
	case models.AvailabilityOnBreak:
		base = 80
	case models.AvailabilityBusy:
		base = 30
	default:
		base = 0
	}
	if c.PrimaryAssignment {
		base += 15
	}
	if c.CanTrainOthers {
		base += 10
	}
	if base > 100 {
		base = 100
	}
	return base
}

// experienceScore combines skill level with tenure and completed-task
// bonuses. Months contribute 1 point per 1.2 months up to 20; completed
// tasks contribute half a point each up to 15.
func experienceScore(c models.WorkerCapability) float64 {
	var base float64
	switch c.SkillLevel {
	case models.SkillMaster:
		base = 100
	case models.SkillExpert:
		base = 90
	case models.SkillIntermediate:
		base = 70
	default:
		base = 50
	}

	months := float64(c.ExperienceMonths) / 1.2
	if months > 20 {
		months = 20
	}
	tasks := float64(c.CompletedTasks) * 0.5
	if tasks > 15 {
		tasks = 15
	}
	return base + months + tasks
}
