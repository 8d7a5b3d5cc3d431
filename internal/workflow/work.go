package workflow

import (
	"context"
	"fmt"

	"github.com/velomade/shopfloor/internal/assign"
	"github.com/velomade/shopfloor/internal/catalog"
	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/perf"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/gorm"
)

// BeginWork moves an assigned stage to in_progress. Only the reserved
// worker may begin, and only from the assigned status.
func (m *Machine) BeginWork(ctx context.Context, orderID, workerID string, stageID uint) (*Result, error) {
	now := m.clock.Now()
	var progress *models.OrderProgress

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := openProgress(tx, orderID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: order %s", ErrNoOpenStage, orderID)
		}
		if p.Status != models.StatusAssigned {
			return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, p.Status)
		}
		if p.StageID != stageID {
			return fmt.Errorf("%w: order %s is at stage %d", ErrStageMismatch, orderID, p.StageID)
		}
		if p.WorkerID != workerID {
			return fmt.Errorf("%w: order %s is assigned to %s", ErrNotAssignee, orderID, p.WorkerID)
		}

		err = tx.Model(&models.OrderProgress{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"status":     models.StatusInProgress,
			"started_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("workflow: begin order %s: %w", orderID, err)
		}
		p.Status = models.StatusInProgress
		p.StartedAt = &now
		progress = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeStarted, Progress: progress}, nil
}

// CompleteWorkOpts holds parameters for completing the current stage.
type CompleteWorkOpts struct {
	OrderID      string
	WorkerID     string
	StageID      uint
	QualityScore *float64 // 0-10
	Notes        string
	Actor        string
}

// CompleteWork finishes an in_progress stage: it stamps the actual duration
// and efficiency, merges the day's performance metrics, releases the
// worker's capacity, and advances the order to the next catalog stage — all
// in one transaction.
func (m *Machine) CompleteWork(ctx context.Context, opts CompleteWorkOpts) (*Result, error) {
	if opts.QualityScore != nil && (*opts.QualityScore < 0 || *opts.QualityScore > 10) {
		return nil, fmt.Errorf("workflow: quality score %.1f out of range 0-10", *opts.QualityScore)
	}

	now := m.clock.Now()
	var (
		completed models.OrderProgress
		doneStage *models.Stage
		nextStage *models.Stage
		res       *Result
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := openProgress(tx, opts.OrderID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: order %s", ErrNoOpenStage, opts.OrderID)
		}
		if p.Status != models.StatusInProgress {
			return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, p.Status)
		}
		if p.StageID != opts.StageID {
			return fmt.Errorf("%w: order %s is at stage %d", ErrStageMismatch, opts.OrderID, p.StageID)
		}
		if p.WorkerID != opts.WorkerID {
			return fmt.Errorf("%w: order %s is assigned to %s", ErrNotAssignee, opts.OrderID, p.WorkerID)
		}

		doneStage, err = catalog.ByID(tx, p.StageID)
		if err != nil {
			return err
		}

		actual := now.Sub(*p.StartedAt).Minutes()
		effPct := 100.0
		if actual > 0 {
			effPct = float64(p.EstimatedMinutes) / actual * 100
		}

		updates := map[string]interface{}{
			"status":         models.StatusCompleted,
			"completed_at":   now,
			"actual_minutes": actual,
			"efficiency_pct": effPct,
			"notes":          opts.Notes,
		}
		if opts.QualityScore != nil {
			updates["quality_score"] = *opts.QualityScore
		}
		if err := tx.Model(&models.OrderProgress{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("workflow: complete order %s: %w", opts.OrderID, err)
		}
		p.Status = models.StatusCompleted
		p.CompletedAt = &now
		p.ActualMinutes = actual
		p.EfficiencyPct = effPct
		p.QualityScore = opts.QualityScore
		p.Notes = opts.Notes
		completed = *p

		day := scoring.DayBucket(now)
		if err := perf.RecordCompletion(tx, m.coord.Cache, opts.WorkerID, p.StageID, day, actual, effPct, opts.QualityScore); err != nil {
			return err
		}
		if err := assign.Release(tx, opts.WorkerID, p.StageID, now, true); err != nil {
			return err
		}

		res, nextStage, err = m.advanceTx(tx, opts.OrderID, doneStage, opts.WorkerID, opts.Actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.emitCompletion(ctx, doneStage, &completed)
	if nextStage != nil && res.Progress != nil && res.Progress.Status == models.StatusAssigned {
		m.emitAssignment(ctx, nextStage, res.Progress)
	}
	return res, nil
}

// Advance moves an order past an already-completed stage. It is the
// idempotent entry used when a queued order should retry reservation or
// when completion handling was interrupted after the stage went terminal:
// if the order already has an open row the call reports it unchanged, and
// past the last stage it never creates a new row. The named stage must
// genuinely be completed by this order, and a cancelled order stays
// terminal; Advance never fabricates progress.
func (m *Machine) Advance(ctx context.Context, orderID string, completedStageID uint, actor string) (*Result, error) {
	var (
		res       *Result
		nextStage *models.Stage
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := openProgress(tx, orderID)
		if err != nil {
			return err
		}
		if existing != nil {
			outcome := OutcomeQueued
			if existing.Status == models.StatusAssigned || existing.Status == models.StatusInProgress {
				outcome = OutcomeAssigned
			}
			res = &Result{Outcome: outcome, Progress: existing}
			return nil
		}

		var cancelled int64
		err = tx.Model(&models.OrderProgress{}).
			Where("order_id = ? AND status = ?", orderID, models.StatusCancelled).
			Count(&cancelled).Error
		if err != nil {
			return fmt.Errorf("workflow: check cancellation for order %s: %w", orderID, err)
		}
		if cancelled > 0 {
			res = &Result{Outcome: OutcomeAlreadyTerminal}
			return nil
		}

		var done int64
		err = tx.Model(&models.OrderProgress{}).
			Where("order_id = ? AND stage_id = ? AND status = ?",
				orderID, completedStageID, models.StatusCompleted).
			Count(&done).Error
		if err != nil {
			return fmt.Errorf("workflow: check completion for order %s: %w", orderID, err)
		}
		if done == 0 {
			return fmt.Errorf("%w: order %s, stage %d", ErrStageNotCompleted, orderID, completedStageID)
		}

		stage, err := catalog.ByID(tx, completedStageID)
		if err != nil {
			return err
		}
		res, nextStage, err = m.advanceTx(tx, orderID, stage, "", actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if nextStage != nil && res.Progress != nil && res.Progress.Status == models.StatusAssigned {
		m.emitAssignment(ctx, nextStage, res.Progress)
	}
	return res, nil
}

// advanceTx creates the next stage's pending row and attempts a
// reservation. A nil next stage marks the order complete: no new row is
// created, terminally and idempotently.
func (m *Machine) advanceTx(tx *gorm.DB, orderID string, doneStage *models.Stage, fromWorkerID, actor string) (*Result, *models.Stage, error) {
	now := m.clock.Now()

	next, err := catalog.NextStage(tx, doneStage.Sequence)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return &Result{Outcome: OutcomeOrderComplete, OrderComplete: true}, nil, nil
	}

	// Carry priority and due date forward from the completed stage's row.
	var prev models.OrderProgress
	result := tx.Where("order_id = ? AND stage_id = ?", orderID, doneStage.ID).
		Order("id DESC").
		Limit(1).
		Find(&prev)
	if result.Error != nil {
		return nil, nil, fmt.Errorf("workflow: load completed stage for order %s: %w", orderID, result.Error)
	}
	priority := prev.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	progress := models.OrderProgress{
		OrderID:          orderID,
		StageID:          next.ID,
		Status:           models.StatusPending,
		Priority:         priority,
		EstimatedMinutes: next.EstimatedMinutes,
		DueAt:            prev.DueAt,
	}
	if err := tx.Create(&progress).Error; err != nil {
		return nil, nil, progressCreateError(err, orderID)
	}

	sctx := scoring.Context{Priority: priority, DueAt: prev.DueAt}
	winner, err := m.coord.Reserve(tx, next.ID, sctx, now)
	if err != nil {
		return nil, nil, err
	}
	if winner != nil {
		if err := assignProgress(tx, &progress, winner.WorkerID, now); err != nil {
			return nil, nil, err
		}
		if err := perf.RecordStart(tx, m.coord.Cache, winner.WorkerID, next.ID, scoring.DayBucket(now)); err != nil {
			return nil, nil, err
		}
	}

	fromStageID := doneStage.ID
	err = writeTransition(tx, models.Transition{
		OrderID:      orderID,
		FromStageID:  &fromStageID,
		ToStageID:    next.ID,
		FromWorkerID: fromWorkerID,
		ToWorkerID:   progress.WorkerID,
		Actor:        actor,
		Type:         models.TransitionNormal,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, nil, err
	}

	outcome := OutcomeQueued
	if progress.Status == models.StatusAssigned {
		outcome = OutcomeAssigned
	}
	return &Result{Outcome: outcome, Progress: &progress}, next, nil
}
