// Package assign reserves and releases worker capacity. Reservation is the
// engine's one concurrency hot spot: the read of "active count vs cap" and
// the write that claims the capacity happen inside one transaction with the
// capability rows locked, so two racing reservations can never both succeed
// once a worker is full.
package assign

import (
	"fmt"
	"time"

	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Coordinator scores and reserves workers for stages.
type Coordinator struct {
	Weights config.Weights
	Cache   *scoring.Cache
}

// Reserve selects the top-scored eligible worker for a stage and claims one
// unit of its capacity. It must be called inside a transaction; the caller
// commits the reservation together with its OrderProgress update.
//
// A nil capability with a nil error means no worker currently fits. That is
// the normal queued outcome, not an error, and Reserve never blocks or
// retries waiting for capacity.
func (c *Coordinator) Reserve(tx *gorm.DB, stageID uint, sctx scoring.Context, now time.Time) (*models.WorkerCapability, error) {
	var caps []models.WorkerCapability
	q := tx.Where("stage_id = ? AND active = ? AND availability_status IN ?",
		stageID, true,
		[]string{models.AvailabilityAvailable, models.AvailabilityOnBreak})
	err := LockForUpdate(q).Find(&caps).Error
	if err != nil {
		return nil, fmt.Errorf("assign: load candidates for stage %d: %w", stageID, err)
	}

	cands := make([]scoring.Candidate, 0, len(caps))
	for _, wc := range caps {
		// Active count comes from live OrderProgress rows, never from a
		// cached counter, so the cap check cannot drift.
		active, err := ActiveCount(tx, wc.WorkerID, stageID)
		if err != nil {
			return nil, err
		}
		if active >= wc.MaxConcurrentTasks {
			continue
		}
		week, err := scoring.WeekFor(tx, c.Cache, wc.WorkerID, stageID, now)
		if err != nil {
			return nil, err
		}
		cands = append(cands, scoring.Candidate{Capability: wc, Week: week, ActiveTasks: active})
	}
	if len(cands) == 0 {
		return nil, nil
	}

	ranked := scoring.Rank(cands, sctx, c.Weights)
	winner := ranked[0].Candidate
	return claim(tx, winner.Capability, winner.ActiveTasks, now)
}

// ReserveWorker claims capacity on a specific worker, used by the
// rebalancer when the receiving worker has already been chosen. Unlike
// Reserve, an unreservable worker here is an error: the caller asserted fit.
func ReserveWorker(tx *gorm.DB, workerID string, stageID uint, now time.Time) (*models.WorkerCapability, error) {
	var wc models.WorkerCapability
	q := tx.Where("worker_id = ? AND stage_id = ? AND active = ?", workerID, stageID, true)
	result := LockForUpdate(q).Limit(1).Find(&wc)
	if result.Error != nil {
		return nil, fmt.Errorf("assign: load capability %s/%d: %w", workerID, stageID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("assign: no capability for worker %s on stage %d", workerID, stageID)
	}
	if wc.AvailabilityStatus == models.AvailabilityUnavailable {
		return nil, fmt.Errorf("assign: worker %s is unavailable", workerID)
	}

	active, err := ActiveCount(tx, workerID, stageID)
	if err != nil {
		return nil, err
	}
	if active >= wc.MaxConcurrentTasks {
		return nil, fmt.Errorf("assign: worker %s at capacity (%d/%d)", workerID, active, wc.MaxConcurrentTasks)
	}
	return claim(tx, wc, active, now)
}

// claim flips the winner to busy once this reservation exhausts its
// remaining capacity. Below the cap the worker stays reservable, which
// collapses to the always-busy behavior for the common cap=1 case.
func claim(tx *gorm.DB, wc models.WorkerCapability, active int, now time.Time) (*models.WorkerCapability, error) {
	if active+1 >= wc.MaxConcurrentTasks && wc.AvailabilityStatus != models.AvailabilityBusy {
		err := tx.Model(&models.WorkerCapability{}).Where("id = ?", wc.ID).Updates(map[string]interface{}{
			"availability_status":     models.AvailabilityBusy,
			"availability_changed_at": now,
		}).Error
		if err != nil {
			return nil, fmt.Errorf("assign: mark worker %s busy: %w", wc.WorkerID, err)
		}
		wc.AvailabilityStatus = models.AvailabilityBusy
		wc.AvailabilityChangedAt = now
	}
	return &wc, nil
}

// Release frees one unit of a worker's capacity after its task left the
// assigned/in_progress pair. The caller must already have moved the
// OrderProgress row out of a reserved status inside the same transaction.
// completed additionally bumps the cumulative completed-task counter and
// stamps last_task_completed_at.
func Release(tx *gorm.DB, workerID string, stageID uint, now time.Time, completed bool) error {
	var wc models.WorkerCapability
	q := tx.Where("worker_id = ? AND stage_id = ?", workerID, stageID)
	result := LockForUpdate(q).Limit(1).Find(&wc)
	if result.Error != nil {
		return fmt.Errorf("assign: load capability %s/%d: %w", workerID, stageID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("assign: no capability for worker %s on stage %d", workerID, stageID)
	}

	updates := map[string]interface{}{}
	if completed {
		updates["completed_tasks"] = gorm.Expr("completed_tasks + 1")
		updates["last_task_completed_at"] = now
	}

	active, err := ActiveCount(tx, workerID, stageID)
	if err != nil {
		return err
	}
	// Only a busy worker flips back; a break or an external unavailable
	// status is honored until the feed clears it.
	if active < wc.MaxConcurrentTasks && wc.AvailabilityStatus == models.AvailabilityBusy {
		updates["availability_status"] = models.AvailabilityAvailable
		updates["availability_changed_at"] = now
	}

	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(&models.WorkerCapability{}).Where("id = ?", wc.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("assign: release worker %s: %w", workerID, err)
	}
	return nil
}

// ActiveCount returns the number of live OrderProgress rows holding a
// reservation on the (worker, stage) pair.
func ActiveCount(tx *gorm.DB, workerID string, stageID uint) (int, error) {
	var count int64
	err := tx.Model(&models.OrderProgress{}).
		Where("worker_id = ? AND stage_id = ? AND status IN ?", workerID, stageID, models.ReservedStatuses).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("assign: count active tasks for %s/%d: %w", workerID, stageID, err)
	}
	return int(count), nil
}

// LockForUpdate adds a FOR UPDATE clause on dialects that support it.
// SQLite serializes writers on its own and rejects the syntax.
func LockForUpdate(q *gorm.DB) *gorm.DB {
	if q.Dialector.Name() == "sqlite" {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}
