// Package rebalance implements the batch pass that moves queued work from
// overloaded workers to underutilized ones. The pass is idempotent and safe
// to run concurrently with live traffic: every move re-checks state inside
// its own transaction, and work already in progress is never touched.
package rebalance

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/velomade/shopfloor/internal/assign"
	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/perf"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/gorm"
)

// RebalanceReason is written on every transition the pass records.
const RebalanceReason = "rebalance"

// workerLoad holds one worker's live load on a stage.
type workerLoad struct {
	cap    models.WorkerCapability
	active int
}

// Run executes one rebalance pass over every stage and returns the number
// of tasks moved. Progress lines are written to out.
func Run(db *gorm.DB, cache *scoring.Cache, out io.Writer, now time.Time) (int, error) {
	var caps []models.WorkerCapability
	if err := db.Where("active = ?", true).Find(&caps).Error; err != nil {
		return 0, fmt.Errorf("rebalance: load capabilities: %w", err)
	}

	byStage := make(map[uint][]models.WorkerCapability)
	for _, c := range caps {
		byStage[c.StageID] = append(byStage[c.StageID], c)
	}

	stageIDs := make([]uint, 0, len(byStage))
	for id := range byStage {
		stageIDs = append(stageIDs, id)
	}
	sort.Slice(stageIDs, func(i, j int) bool { return stageIDs[i] < stageIDs[j] })

	moved := 0
	for _, stageID := range stageIDs {
		n, err := rebalanceStage(db, cache, stageID, byStage[stageID], out, now)
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

// rebalanceStage moves at most one queued task per overloaded worker on the
// stage to a matching underutilized worker.
func rebalanceStage(db *gorm.DB, cache *scoring.Cache, stageID uint, caps []models.WorkerCapability, out io.Writer, now time.Time) (int, error) {
	var overloaded, underutilized []workerLoad
	for _, c := range caps {
		active, err := assign.ActiveCount(db, c.WorkerID, stageID)
		if err != nil {
			return 0, err
		}
		load := workerLoad{cap: c, active: active}
		switch {
		case active >= c.MaxConcurrentTasks:
			overloaded = append(overloaded, load)
		case c.AvailabilityStatus == models.AvailabilityAvailable &&
			float64(active) < 0.5*float64(c.MaxConcurrentTasks):
			underutilized = append(underutilized, load)
		}
	}
	if len(overloaded) == 0 || len(underutilized) == 0 {
		return 0, nil
	}

	// Receivers with the most free capacity first.
	sort.Slice(underutilized, func(i, j int) bool {
		fi := underutilized[i].cap.MaxConcurrentTasks - underutilized[i].active
		fj := underutilized[j].cap.MaxConcurrentTasks - underutilized[j].active
		return fi > fj
	})

	moved := 0
	for _, donor := range overloaded {
		if len(underutilized) == 0 {
			break
		}
		receiver := underutilized[0]
		if receiver.cap.WorkerID == donor.cap.WorkerID {
			continue
		}

		ok, err := moveOne(db, cache, stageID, donor.cap.WorkerID, receiver.cap.WorkerID, out, now)
		if err != nil {
			fmt.Fprintf(out, "Rebalance %s → %s failed: %v\n", donor.cap.WorkerID, receiver.cap.WorkerID, err)
			continue
		}
		if !ok {
			continue
		}
		moved++

		underutilized[0].active++
		if float64(underutilized[0].active) >= 0.5*float64(receiver.cap.MaxConcurrentTasks) {
			underutilized = underutilized[1:]
		}
	}
	return moved, nil
}

// moveOne reassigns the donor's lowest-priority still-assigned task to the
// receiver. Returns false when the donor no longer has a movable task —
// a normal outcome under concurrent completion, not an error.
func moveOne(db *gorm.DB, cache *scoring.Cache, stageID uint, donorID, receiverID string, out io.Writer, now time.Time) (bool, error) {
	var movedOrder string

	err := db.Transaction(func(tx *gorm.DB) error {
		// Only assigned tasks move; in_progress work stays put.
		var task models.OrderProgress
		result := tx.Where("worker_id = ? AND stage_id = ? AND status = ?",
			donorID, stageID, models.StatusAssigned).
			Order("CASE priority WHEN 'urgent' THEN 2 WHEN 'high' THEN 1 ELSE 0 END ASC, created_at DESC").
			Limit(1).
			Find(&task)
		if result.Error != nil {
			return fmt.Errorf("rebalance: find movable task for %s: %w", donorID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if _, err := assign.ReserveWorker(tx, receiverID, stageID, now); err != nil {
			return err
		}

		err := tx.Model(&models.OrderProgress{}).Where("id = ?", task.ID).Updates(map[string]interface{}{
			"worker_id":   receiverID,
			"assigned_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("rebalance: move order %s: %w", task.OrderID, err)
		}

		if err := assign.Release(tx, donorID, stageID, now, false); err != nil {
			return err
		}
		if err := perf.RecordStart(tx, cache, receiverID, stageID, scoring.DayBucket(now)); err != nil {
			return err
		}

		fromStageID := stageID
		transition := models.Transition{
			ID:           uuid.NewString(),
			OrderID:      task.OrderID,
			FromStageID:  &fromStageID,
			ToStageID:    stageID,
			FromWorkerID: donorID,
			ToWorkerID:   receiverID,
			Actor:        "rebalancer",
			Type:         models.TransitionNormal,
			Reason:       RebalanceReason,
			CreatedAt:    now,
		}
		if err := tx.Create(&transition).Error; err != nil {
			return fmt.Errorf("rebalance: write transition for order %s: %w", task.OrderID, err)
		}

		movedOrder = task.OrderID
		return nil
	})
	if err != nil {
		return false, err
	}
	if movedOrder == "" {
		return false, nil
	}

	fmt.Fprintf(out, "Rebalanced order %s on stage %d: %s → %s\n", movedOrder, stageID, donorID, receiverID)
	return true, nil
}
