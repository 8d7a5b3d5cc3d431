package workflow

import (
	"context"
	"fmt"

	"github.com/velomade/shopfloor/internal/assign"
	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/perf"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/gorm"
)

// Block halts an order's open stage. Any held reservation is released.
// Calling Block on an order with only terminal stages is an idempotent
// no-op reported as already_terminal.
func (m *Machine) Block(ctx context.Context, orderID, actor, reason string) (*Result, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: block", ErrReasonRequired)
	}
	return m.halt(ctx, orderID, actor, reason, models.StatusBlocked, models.TransitionEscalation, OutcomeBlocked)
}

// Cancel terminates an order's open stage. Any held reservation is
// released. Idempotent against already-terminal orders.
func (m *Machine) Cancel(ctx context.Context, orderID, actor, reason string) (*Result, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: cancel", ErrReasonRequired)
	}
	return m.halt(ctx, orderID, actor, reason, models.StatusCancelled, models.TransitionManualOverride, OutcomeCancelled)
}

// halt implements Block and Cancel: move the open row to the target status,
// release any reservation, and log the transition with its reason.
func (m *Machine) halt(ctx context.Context, orderID, actor, reason, status, transitionType, outcome string) (*Result, error) {
	now := m.clock.Now()
	var res *Result

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := openProgress(tx, orderID)
		if err != nil {
			return err
		}
		if p == nil {
			res = &Result{Outcome: OutcomeAlreadyTerminal}
			return nil
		}
		if p.Status == status {
			res = &Result{Outcome: outcome, Progress: p}
			return nil
		}

		held := p.Status == models.StatusAssigned || p.Status == models.StatusInProgress

		err = tx.Model(&models.OrderProgress{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"status": status,
			"notes":  reason,
		}).Error
		if err != nil {
			return fmt.Errorf("workflow: %s order %s: %w", status, orderID, err)
		}
		p.Status = status
		p.Notes = reason

		// Release after the row left the reserved statuses so the freed
		// capacity is visible to the availability check.
		if held {
			if err := assign.Release(tx, p.WorkerID, p.StageID, now, false); err != nil {
				return err
			}
		}

		fromStageID := p.StageID
		err = writeTransition(tx, models.Transition{
			OrderID:      orderID,
			FromStageID:  &fromStageID,
			ToStageID:    p.StageID,
			FromWorkerID: p.WorkerID,
			Actor:        actor,
			Type:         transitionType,
			Reason:       reason,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		res = &Result{Outcome: outcome, Progress: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reassign releases an order's current reservation and reruns worker
// selection for its open stage. Permitted from pending, assigned and
// blocked; work already in progress is never reassigned. A blocked stage
// is requeued by reassignment.
func (m *Machine) Reassign(ctx context.Context, orderID, actor, reason string) (*Result, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: reassign", ErrReasonRequired)
	}

	now := m.clock.Now()
	var res *Result

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := openProgress(tx, orderID)
		if err != nil {
			return err
		}
		if p == nil {
			res = &Result{Outcome: OutcomeAlreadyTerminal}
			return nil
		}
		if p.Status == models.StatusInProgress {
			return fmt.Errorf("%w: reassign from %s", ErrInvalidTransition, p.Status)
		}

		previousWorker := p.WorkerID

		// Requeue the row first so the old worker's capacity frees.
		err = tx.Model(&models.OrderProgress{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"status":      models.StatusPending,
			"worker_id":   "",
			"assigned_at": nil,
		}).Error
		if err != nil {
			return fmt.Errorf("workflow: requeue order %s: %w", orderID, err)
		}
		p.Status = models.StatusPending
		p.WorkerID = ""
		p.AssignedAt = nil

		if previousWorker != "" {
			if err := assign.Release(tx, previousWorker, p.StageID, now, false); err != nil {
				return err
			}
		}

		sctx := scoring.Context{Priority: p.Priority, DueAt: p.DueAt}
		winner, err := m.coord.Reserve(tx, p.StageID, sctx, now)
		if err != nil {
			return err
		}
		if winner != nil {
			if err := assignProgress(tx, p, winner.WorkerID, now); err != nil {
				return err
			}
			if err := perf.RecordStart(tx, m.coord.Cache, winner.WorkerID, p.StageID, scoring.DayBucket(now)); err != nil {
				return err
			}
		}

		fromStageID := p.StageID
		err = writeTransition(tx, models.Transition{
			OrderID:      orderID,
			FromStageID:  &fromStageID,
			ToStageID:    p.StageID,
			FromWorkerID: previousWorker,
			ToWorkerID:   p.WorkerID,
			Actor:        actor,
			Type:         models.TransitionManualOverride,
			Reason:       reason,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		outcome := OutcomeQueued
		if p.Status == models.StatusAssigned {
			outcome = OutcomeReassigned
		}
		res = &Result{Outcome: outcome, Progress: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
