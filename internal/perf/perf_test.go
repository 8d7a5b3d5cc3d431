package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const day = "2026-03-09"

// testDB creates an in-memory SQLite database with the metric table.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.PerformanceMetric{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func loadMetric(t *testing.T, db *gorm.DB, workerID string, stageID uint) models.PerformanceMetric {
	t.Helper()
	var m models.PerformanceMetric
	err := db.Where("worker_id = ? AND stage_id = ? AND day = ?", workerID, stageID, day).First(&m).Error
	require.NoError(t, err)
	return m
}

func TestRecordStart_Upserts(t *testing.T) {
	db := testDB(t)

	require.NoError(t, RecordStart(db, nil, "maria", 1, day))
	require.NoError(t, RecordStart(db, nil, "maria", 1, day))

	m := loadMetric(t, db, "maria", 1)
	assert.Equal(t, 2, m.TasksAssigned)
	assert.Equal(t, 0, m.TasksCompleted)

	var count int64
	require.NoError(t, db.Model(&models.PerformanceMetric{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "starts for the same day merge into one row")
}

func TestRecordCompletion_MergesIncrementally(t *testing.T) {
	db := testDB(t)
	require.NoError(t, RecordStart(db, nil, "maria", 1, day))
	require.NoError(t, RecordStart(db, nil, "maria", 1, day))

	q1 := 9.0
	require.NoError(t, RecordCompletion(db, nil, "maria", 1, day, 50, 120, &q1))

	m := loadMetric(t, db, "maria", 1)
	assert.Equal(t, 1, m.TasksCompleted)
	assert.InDelta(t, 50.0, m.CompletionRate, 0.001)
	assert.InDelta(t, 50.0, m.AvgTaskMinutes, 0.001)
	assert.InDelta(t, 9.0, m.AvgQualityScore, 0.001)
	assert.InDelta(t, 120.0, m.SpeedEfficiency, 0.001)
	// productivity = 120*0.6 + 9*10*0.4 = 108.
	assert.InDelta(t, 108.0, m.ProductivityScore, 0.001)
	// total = 120*0.4 + 36 + 50*0.2 = 94, plus 15 for quality >= 9.
	assert.InDelta(t, 109.0, m.TotalScore, 0.001)

	q2 := 7.0
	require.NoError(t, RecordCompletion(db, nil, "maria", 1, day, 30, 150, &q2))

	m = loadMetric(t, db, "maria", 1)
	assert.Equal(t, 2, m.TasksCompleted)
	assert.InDelta(t, 100.0, m.CompletionRate, 0.001)
	assert.InDelta(t, 40.0, m.AvgTaskMinutes, 0.001, "rolling mean over both tasks")
	assert.InDelta(t, 8.0, m.AvgQualityScore, 0.001)
	assert.InDelta(t, 150.0, m.SpeedEfficiency, 0.001, "speed reflects the latest task")
	// total = 150*0.4 + 8*10*0.4 + 100*0.2 = 112, plus 10 for speed > 120
	// and 5 for completion >= 95.
	assert.InDelta(t, 127.0, m.TotalScore, 0.001)
}

func TestRecordCompletion_MissingRow(t *testing.T) {
	db := testDB(t)

	// No start event recorded; the completion must not produce a rate
	// above 100.
	require.NoError(t, RecordCompletion(db, nil, "maria", 1, day, 60, 100, nil))

	m := loadMetric(t, db, "maria", 1)
	assert.Equal(t, 1, m.TasksAssigned)
	assert.Equal(t, 1, m.TasksCompleted)
	assert.InDelta(t, 100.0, m.CompletionRate, 0.001)
}

func TestRecordCompletion_NilQuality(t *testing.T) {
	db := testDB(t)
	require.NoError(t, RecordStart(db, nil, "maria", 1, day))
	require.NoError(t, RecordStart(db, nil, "maria", 1, day))

	q := 8.0
	require.NoError(t, RecordCompletion(db, nil, "maria", 1, day, 40, 110, &q))
	require.NoError(t, RecordCompletion(db, nil, "maria", 1, day, 40, 110, nil))

	m := loadMetric(t, db, "maria", 1)
	assert.InDelta(t, 8.0, m.AvgQualityScore, 0.001, "nil quality leaves the average unchanged")
}

func TestRecord_InvalidatesCache(t *testing.T) {
	db := testDB(t)
	cache := scoring.NewCache()

	cache.Put("maria", 1, day, scoring.WeekStats{HasData: true})
	require.NoError(t, RecordStart(db, cache, "maria", 1, day))
	if _, ok := cache.Get("maria", 1, day); ok {
		t.Error("cache entry survived RecordStart")
	}

	cache.Put("maria", 1, day, scoring.WeekStats{HasData: true})
	require.NoError(t, RecordCompletion(db, cache, "maria", 1, day, 60, 100, nil))
	if _, ok := cache.Get("maria", 1, day); ok {
		t.Error("cache entry survived RecordCompletion")
	}
}

func TestRecord_SeparateDays(t *testing.T) {
	db := testDB(t)

	require.NoError(t, RecordStart(db, nil, "maria", 1, "2026-03-08"))
	require.NoError(t, RecordStart(db, nil, "maria", 1, day))

	var count int64
	require.NoError(t, db.Model(&models.PerformanceMetric{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
