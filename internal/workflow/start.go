package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/velomade/shopfloor/internal/catalog"
	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/perf"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/gorm"
)

// StartOrderOpts holds parameters for entering an order into production.
type StartOrderOpts struct {
	OrderID  string
	Priority string // defaults to normal
	DueAt    *time.Time
	Actor    string
}

// StartOrder enters an order at the first stage of the catalog. The order
// must not already have an open stage. A reservation is attempted
// immediately; when no worker fits, the stage stays pending and the order
// is queued — a normal outcome reported in the result, not an error.
func (m *Machine) StartOrder(ctx context.Context, opts StartOrderOpts) (*Result, error) {
	if opts.OrderID == "" {
		return nil, fmt.Errorf("workflow: order id is required")
	}
	priority, err := normalizePriority(opts.Priority)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	var (
		progress models.OrderProgress
		stage    *models.Stage
	)

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := openProgress(tx, opts.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: order %s is at stage %d (%s)",
				ErrOrderActive, opts.OrderID, existing.StageID, existing.Status)
		}

		stage, err = catalog.FirstStage(tx)
		if err != nil {
			return err
		}
		if stage == nil {
			return fmt.Errorf("workflow: no active stages configured")
		}

		progress = models.OrderProgress{
			OrderID:          opts.OrderID,
			StageID:          stage.ID,
			Status:           models.StatusPending,
			Priority:         priority,
			EstimatedMinutes: stage.EstimatedMinutes,
			DueAt:            opts.DueAt,
		}
		if err := tx.Create(&progress).Error; err != nil {
			return progressCreateError(err, opts.OrderID)
		}

		sctx := scoring.Context{Priority: priority, DueAt: opts.DueAt}
		winner, err := m.coord.Reserve(tx, stage.ID, sctx, now)
		if err != nil {
			return err
		}
		if winner != nil {
			if err := assignProgress(tx, &progress, winner.WorkerID, now); err != nil {
				return err
			}
			if err := perf.RecordStart(tx, m.coord.Cache, winner.WorkerID, stage.ID, scoring.DayBucket(now)); err != nil {
				return err
			}
		}

		return writeTransition(tx, models.Transition{
			OrderID:    opts.OrderID,
			ToStageID:  stage.ID,
			ToWorkerID: progress.WorkerID,
			Actor:      opts.Actor,
			Type:       models.TransitionStart,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	outcome := OutcomeQueued
	if progress.Status == models.StatusAssigned {
		outcome = OutcomeAssigned
		m.emitAssignment(ctx, stage, &progress)
	}
	return &Result{Outcome: outcome, Progress: &progress}, nil
}

// assignProgress moves a pending row to assigned for the given worker.
func assignProgress(tx *gorm.DB, p *models.OrderProgress, workerID string, now time.Time) error {
	err := tx.Model(&models.OrderProgress{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"status":      models.StatusAssigned,
		"worker_id":   workerID,
		"assigned_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("workflow: assign order %s to %s: %w", p.OrderID, workerID, err)
	}
	p.Status = models.StatusAssigned
	p.WorkerID = workerID
	p.AssignedAt = &now
	return nil
}
