package rebalance

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/velomade/shopfloor/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB creates an in-memory SQLite database with all engine tables.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.WorkerCapability{},
		&models.OrderProgress{},
		&models.Transition{},
		&models.PerformanceMetric{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedWorker(t *testing.T, db *gorm.DB, workerID string, stageID uint, status string, maxTasks int) {
	t.Helper()
	c := models.WorkerCapability{
		WorkerID:           workerID,
		StageID:            stageID,
		SkillLevel:         models.SkillIntermediate,
		EfficiencyRating:   1.0,
		AvailabilityStatus: status,
		MaxConcurrentTasks: maxTasks,
		Active:             true,
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed worker %s: %v", workerID, err)
	}
}

func seedTask(t *testing.T, db *gorm.DB, orderID, workerID string, stageID uint, status, priority string) {
	t.Helper()
	p := models.OrderProgress{
		OrderID:  orderID,
		StageID:  stageID,
		Status:   status,
		WorkerID: workerID,
		Priority: priority,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed task %s: %v", orderID, err)
	}
}

func taskWorker(t *testing.T, db *gorm.DB, orderID string) string {
	t.Helper()
	var p models.OrderProgress
	if err := db.Where("order_id = ?", orderID).First(&p).Error; err != nil {
		t.Fatalf("load task %s: %v", orderID, err)
	}
	return p.WorkerID
}

func TestRun_MovesQueuedTask(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	// maria is full at 2/2 while tomas idles at 0/2.
	seedWorker(t, db, "maria", 1, models.AvailabilityBusy, 2)
	seedWorker(t, db, "tomas", 1, models.AvailabilityAvailable, 2)
	seedTask(t, db, "ORD-1", "maria", 1, models.StatusAssigned, models.PriorityUrgent)
	seedTask(t, db, "ORD-2", "maria", 1, models.StatusAssigned, models.PriorityNormal)

	var buf bytes.Buffer
	moved, err := Run(db, nil, &buf, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	// The lower-priority task moves, the urgent one stays put.
	if got := taskWorker(t, db, "ORD-2"); got != "tomas" {
		t.Errorf("ORD-2 worker = %q, want tomas", got)
	}
	if got := taskWorker(t, db, "ORD-1"); got != "maria" {
		t.Errorf("ORD-1 worker = %q, want maria", got)
	}
	if !strings.Contains(buf.String(), "ORD-2") {
		t.Errorf("output missing moved order: %s", buf.String())
	}

	// The move is recorded with the rebalance reason.
	var tr models.Transition
	if err := db.Where("order_id = ?", "ORD-2").First(&tr).Error; err != nil {
		t.Fatalf("load transition: %v", err)
	}
	if tr.Reason != RebalanceReason {
		t.Errorf("reason = %q, want %q", tr.Reason, RebalanceReason)
	}
	if tr.FromWorkerID != "maria" || tr.ToWorkerID != "tomas" {
		t.Errorf("transition %s -> %s, want maria -> tomas", tr.FromWorkerID, tr.ToWorkerID)
	}

	// The receiver's day is charged with the new assignment.
	var metric models.PerformanceMetric
	if err := db.Where("worker_id = ?", "tomas").First(&metric).Error; err != nil {
		t.Fatalf("load metric: %v", err)
	}
	if metric.TasksAssigned != 1 {
		t.Errorf("TasksAssigned = %d, want 1", metric.TasksAssigned)
	}
}

func TestRun_BalancedNoMoves(t *testing.T) {
	db := testDB(t)

	seedWorker(t, db, "maria", 1, models.AvailabilityAvailable, 2)
	seedWorker(t, db, "tomas", 1, models.AvailabilityAvailable, 2)
	seedTask(t, db, "ORD-1", "maria", 1, models.StatusAssigned, models.PriorityNormal)
	seedTask(t, db, "ORD-2", "tomas", 1, models.StatusAssigned, models.PriorityNormal)

	var buf bytes.Buffer
	moved, err := Run(db, nil, &buf, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 0 {
		t.Errorf("moved = %d, want 0 when loads match", moved)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got: %s", buf.String())
	}
}

func TestRun_InProgressNeverMoves(t *testing.T) {
	db := testDB(t)

	seedWorker(t, db, "maria", 1, models.AvailabilityBusy, 1)
	seedWorker(t, db, "tomas", 1, models.AvailabilityAvailable, 1)
	seedTask(t, db, "ORD-1", "maria", 1, models.StatusInProgress, models.PriorityNormal)

	moved, err := Run(db, nil, &bytes.Buffer{}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 0 {
		t.Errorf("moved = %d, want 0 for in_progress work", moved)
	}
	if got := taskWorker(t, db, "ORD-1"); got != "maria" {
		t.Errorf("ORD-1 worker = %q, want maria untouched", got)
	}
}

func TestRun_NoReceiverOnOtherStage(t *testing.T) {
	db := testDB(t)

	seedWorker(t, db, "maria", 1, models.AvailabilityBusy, 1)
	seedWorker(t, db, "yusuf", 2, models.AvailabilityAvailable, 1)
	seedTask(t, db, "ORD-1", "maria", 1, models.StatusAssigned, models.PriorityNormal)

	moved, err := Run(db, nil, &bytes.Buffer{}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 0 {
		t.Errorf("moved = %d, want 0 without a same-stage receiver", moved)
	}
}

func TestRun_BreakWorkerNotAReceiver(t *testing.T) {
	db := testDB(t)

	seedWorker(t, db, "maria", 1, models.AvailabilityBusy, 1)
	seedWorker(t, db, "tomas", 1, models.AvailabilityOnBreak, 1)
	seedTask(t, db, "ORD-1", "maria", 1, models.StatusAssigned, models.PriorityNormal)

	moved, err := Run(db, nil, &bytes.Buffer{}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved != 0 {
		t.Errorf("moved = %d, want 0 with the only receiver on break", moved)
	}
}
