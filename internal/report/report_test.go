package report

import (
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
	if err := db.AutoMigrate(
		&models.Stage{},
		&models.WorkerCapability{},
		&models.OrderProgress{},
		&models.Transition{},
		&models.PerformanceMetric{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestBuildAssignmentReport(t *testing.T) {
	db := testDB(t)

	cutting := models.Stage{Sequence: 1, Name: "Cutting", Active: true}
	if err := db.Create(&cutting).Error; err != nil {
		t.Fatalf("seed stage: %v", err)
	}

	caps := []models.WorkerCapability{
		{WorkerID: "maria", StageID: cutting.ID, AvailabilityStatus: models.AvailabilityBusy, EfficiencyRating: 1.2, CompletedTasks: 12, Active: true},
		{WorkerID: "tomas", StageID: cutting.ID, AvailabilityStatus: models.AvailabilityAvailable, EfficiencyRating: 0.8, CompletedTasks: 5, Active: true},
		{WorkerID: "gone", StageID: cutting.ID, AvailabilityStatus: models.AvailabilityAvailable, EfficiencyRating: 2.0, CompletedTasks: 99, Active: false},
	}
	for i := range caps {
		if err := db.Create(&caps[i]).Error; err != nil {
			t.Fatalf("seed capability: %v", err)
		}
	}

	progress := []models.OrderProgress{
		{OrderID: "ORD-1", StageID: cutting.ID, Status: models.StatusAssigned, WorkerID: "maria"},
		{OrderID: "ORD-2", StageID: cutting.ID, Status: models.StatusPending},
		{OrderID: "ORD-3", StageID: cutting.ID, Status: models.StatusCompleted, WorkerID: "maria"},
		{OrderID: "ORD-4", StageID: cutting.ID, Status: models.StatusCompleted, WorkerID: "tomas"},
	}
	for i := range progress {
		if err := db.Create(&progress[i]).Error; err != nil {
			t.Fatalf("seed progress: %v", err)
		}
	}

	rep, err := BuildAssignmentReport(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.ProgressByStatus[models.StatusCompleted] != 2 {
		t.Errorf("completed = %d, want 2", rep.ProgressByStatus[models.StatusCompleted])
	}
	if rep.ProgressByStatus[models.StatusPending] != 1 {
		t.Errorf("pending = %d, want 1", rep.ProgressByStatus[models.StatusPending])
	}
	if rep.WorkersByAvailability[models.AvailabilityBusy] != 1 {
		t.Errorf("busy workers = %d, want 1", rep.WorkersByAvailability[models.AvailabilityBusy])
	}
	if rep.WorkersByAvailability[models.AvailabilityAvailable] != 1 {
		t.Errorf("available workers = %d, want 1 (inactive excluded)", rep.WorkersByAvailability[models.AvailabilityAvailable])
	}

	// (1.2 + 0.8) / 2; the inactive capability is excluded.
	if rep.AvgEfficiency < 0.999 || rep.AvgEfficiency > 1.001 {
		t.Errorf("AvgEfficiency = %v, want 1.0", rep.AvgEfficiency)
	}

	if len(rep.TopPerformers) != 2 {
		t.Fatalf("top performers = %d, want 2", len(rep.TopPerformers))
	}
	if rep.TopPerformers[0].WorkerID != "maria" {
		t.Errorf("top performer = %q, want maria", rep.TopPerformers[0].WorkerID)
	}
	if rep.TopPerformers[0].StageName != "Cutting" {
		t.Errorf("top performer stage = %q, want Cutting", rep.TopPerformers[0].StageName)
	}
}

func TestBuildAssignmentReport_Empty(t *testing.T) {
	db := testDB(t)

	rep, err := BuildAssignmentReport(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.ProgressByStatus) != 0 {
		t.Errorf("ProgressByStatus = %v, want empty", rep.ProgressByStatus)
	}
	if rep.AvgEfficiency != 0 {
		t.Errorf("AvgEfficiency = %v, want 0", rep.AvgEfficiency)
	}
	if len(rep.TopPerformers) != 0 {
		t.Errorf("TopPerformers = %v, want empty", rep.TopPerformers)
	}
}

func TestDailyPerformanceStats(t *testing.T) {
	db := testDB(t)

	sewing := models.Stage{Sequence: 1, Name: "Sewing", Active: true}
	if err := db.Create(&sewing).Error; err != nil {
		t.Fatalf("seed stage: %v", err)
	}

	metrics := []models.PerformanceMetric{
		{WorkerID: "maria", StageID: sewing.ID, Day: "2026-03-09", TasksCompleted: 3, TotalScore: 95},
		{WorkerID: "tomas", StageID: sewing.ID, Day: "2026-03-09", TasksCompleted: 2, TotalScore: 110},
		{WorkerID: "maria", StageID: sewing.ID, Day: "2026-03-08", TasksCompleted: 1, TotalScore: 80},
	}
	for i := range metrics {
		if err := db.Create(&metrics[i]).Error; err != nil {
			t.Fatalf("seed metric: %v", err)
		}
	}

	stats, err := DailyPerformanceStats(db, "2026-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("len(stats) = %d, want 2 for the day", len(stats))
	}
	// Ordered by total score descending.
	if stats[0].WorkerID != "tomas" {
		t.Errorf("stats[0] = %q, want tomas", stats[0].WorkerID)
	}
	if stats[0].StageName != "Sewing" {
		t.Errorf("stage name = %q, want Sewing", stats[0].StageName)
	}
}

func TestOrderHistory_Chronological(t *testing.T) {
	db := testDB(t)

	base := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	transitions := []models.Transition{
		{ID: "t-2", OrderID: "ORD-1", ToStageID: 2, Type: models.TransitionNormal, CreatedAt: base.Add(time.Hour)},
		{ID: "t-1", OrderID: "ORD-1", ToStageID: 1, Type: models.TransitionStart, CreatedAt: base},
		{ID: "t-3", OrderID: "ORD-2", ToStageID: 1, Type: models.TransitionStart, CreatedAt: base},
	}
	for i := range transitions {
		if err := db.Create(&transitions[i]).Error; err != nil {
			t.Fatalf("seed transition: %v", err)
		}
	}

	history, err := OrderHistory(db, "ORD-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].ID != "t-1" || history[1].ID != "t-2" {
		t.Errorf("history order = %s, %s; want t-1, t-2", history[0].ID, history[1].ID)
	}
}
