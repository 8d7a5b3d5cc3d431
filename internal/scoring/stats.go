package scoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/velomade/shopfloor/internal/models"
	"gorm.io/gorm"
)

// WeekStats aggregates the trailing seven day-buckets of performance
// metrics for one (worker, stage) pair.
type WeekStats struct {
	HasData       bool
	AvgQuality    float64 // 0-10, weighted by completions
	AvgSpeed      float64 // percent, weighted by completions
	AvgCompletion float64 // percent, weighted by assignments
	DaysActive    int     // day-buckets with a metric row
	HadLateDay    bool    // any day finished below 100% speed efficiency
	HadDefectDay  bool    // any completed day with average quality below 6
}

// DayBucket formats t as the calendar-day key used by PerformanceMetric.
func DayBucket(t time.Time) string {
	return t.Format("2006-01-02")
}

// WeekFor returns the trailing-week stats for a worker on a stage, using
// the cache when a fresh entry exists for today's bucket. Cache entries are
// invalidated on every metric write, not by TTL.
func WeekFor(db *gorm.DB, cache *Cache, workerID string, stageID uint, now time.Time) (WeekStats, error) {
	day := DayBucket(now)
	if stats, ok := cache.Get(workerID, stageID, day); ok {
		return stats, nil
	}

	since := DayBucket(now.AddDate(0, 0, -6))
	var rows []models.PerformanceMetric
	err := db.Where("worker_id = ? AND stage_id = ? AND day >= ? AND day <= ?",
		workerID, stageID, since, day).
		Find(&rows).Error
	if err != nil {
		return WeekStats{}, fmt.Errorf("scoring: load week metrics for %s/%d: %w", workerID, stageID, err)
	}

	stats := aggregate(rows)
	cache.Put(workerID, stageID, day, stats)
	return stats, nil
}

// aggregate folds metric rows into WeekStats. Quality and speed are
// weighted by per-day completions, completion rate by per-day assignments.
func aggregate(rows []models.PerformanceMetric) WeekStats {
	var stats WeekStats
	var completed, assigned int
	var qualitySum, speedSum, completionSum float64

	for _, r := range rows {
		stats.DaysActive++
		if r.TasksCompleted > 0 {
			completed += r.TasksCompleted
			qualitySum += r.AvgQualityScore * float64(r.TasksCompleted)
			speedSum += r.SpeedEfficiency * float64(r.TasksCompleted)
			if r.SpeedEfficiency < 100 {
				stats.HadLateDay = true
			}
			if r.AvgQualityScore < 6 {
				stats.HadDefectDay = true
			}
		}
		if r.TasksAssigned > 0 {
			assigned += r.TasksAssigned
			completionSum += r.CompletionRate * float64(r.TasksAssigned)
		}
	}

	if completed > 0 {
		stats.HasData = true
		stats.AvgQuality = qualitySum / float64(completed)
		stats.AvgSpeed = speedSum / float64(completed)
	}
	if assigned > 0 {
		stats.AvgCompletion = completionSum / float64(assigned)
	}
	return stats
}

// cacheKey identifies one memoized week aggregate.
type cacheKey struct {
	workerID string
	stageID  uint
	day      string
}

// Cache memoizes WeekStats per (worker, stage, day-bucket). All methods are
// safe for concurrent use and tolerate a nil receiver (always-miss).
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]WeekStats
}

// NewCache returns an empty stats cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]WeekStats)}
}

// Get returns the cached stats for the given bucket, if present.
func (c *Cache) Get(workerID string, stageID uint, day string) (WeekStats, bool) {
	if c == nil {
		return WeekStats{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stats, ok := c.entries[cacheKey{workerID, stageID, day}]
	return stats, ok
}

// Put stores stats for the given bucket.
func (c *Cache) Put(workerID string, stageID uint, day string, stats WeekStats) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{workerID, stageID, day}] = stats
}

// Invalidate drops every bucket for the (worker, stage) pair. Called on
// every performance-metric write so stale aggregates never feed scoring.
func (c *Cache) Invalidate(workerID string, stageID uint) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.workerID == workerID && k.stageID == stageID {
			delete(c.entries, k)
		}
	}
}
