package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velomade/shopfloor/internal/assign"
	"github.com/velomade/shopfloor/internal/rebalance"
	"github.com/velomade/shopfloor/internal/report"
	"github.com/velomade/shopfloor/internal/scoring"
	"github.com/velomade/shopfloor/internal/workflow"
	"gorm.io/gorm"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealth(opts.DB))

	orders := router.Group("/api/orders")
	orders.POST("/:id/start", handleStartOrder(opts.Machine))
	orders.POST("/:id/begin", handleBeginWork(opts.Machine))
	orders.POST("/:id/complete", handleCompleteWork(opts.Machine))
	orders.POST("/:id/advance", handleAdvance(opts.Machine))
	orders.POST("/:id/block", handleBlock(opts.Machine))
	orders.POST("/:id/cancel", handleCancel(opts.Machine))
	orders.POST("/:id/reassign", handleReassign(opts.Machine))
	orders.GET("/:id/history", handleHistory(opts.DB))

	router.POST("/api/rebalance", handleRebalance(opts))
	router.POST("/api/workers/availability", handleAvailability(opts.DB))

	router.GET("/api/reports/assignments", handleAssignmentReport(opts.DB))
	router.GET("/api/reports/performance", handlePerformanceStats(opts.DB))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type startOrderRequest struct {
	Priority string     `json:"priority"`
	DueAt    *time.Time `json:"due_at"`
	Actor    string     `json:"actor"`
}

func handleStartOrder(m *workflow.Machine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := m.StartOrder(c.Request.Context(), workflow.StartOrderOpts{
			OrderID:  c.Param("id"),
			Priority: req.Priority,
			DueAt:    req.DueAt,
			Actor:    req.Actor,
		})
		respond(c, result, err)
	}
}

type beginWorkRequest struct {
	WorkerID string `json:"worker_id" binding:"required"`
	StageID  uint   `json:"stage_id" binding:"required"`
}

func handleBeginWork(m *workflow.Machine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req beginWorkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := m.BeginWork(c.Request.Context(), c.Param("id"), req.WorkerID, req.StageID)
		respond(c, result, err)
	}
}

type completeWorkRequest struct {
	WorkerID     string   `json:"worker_id" binding:"required"`
	StageID      uint     `json:"stage_id" binding:"required"`
	QualityScore *float64 `json:"quality_score"`
	Notes        string   `json:"notes"`
	Actor        string   `json:"actor"`
}

func handleCompleteWork(m *workflow.Machine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeWorkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := m.CompleteWork(c.Request.Context(), workflow.CompleteWorkOpts{
			OrderID:      c.Param("id"),
			WorkerID:     req.WorkerID,
			StageID:      req.StageID,
			QualityScore: req.QualityScore,
			Notes:        req.Notes,
			Actor:        req.Actor,
		})
		respond(c, result, err)
	}
}

type advanceRequest struct {
	CompletedStageID uint   `json:"completed_stage_id" binding:"required"`
	Actor            string `json:"actor"`
}

func handleAdvance(m *workflow.Machine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req advanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := m.Advance(c.Request.Context(), c.Param("id"), req.CompletedStageID, req.Actor)
		respond(c, result, err)
	}
}

type overrideRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason" binding:"required"`
}

func handleBlock(m *workflow.Machine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := m.Block(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
		respond(c, result, err)
	}
}

func handleCancel(m *workflow.Machine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := m.Cancel(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
		respond(c, result, err)
	}
}

func handleReassign(m *workflow.Machine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := m.Reassign(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
		respond(c, result, err)
	}
}

func handleHistory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		transitions, err := report.OrderHistory(db, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "transitions": transitions})
	}
}

func handleRebalance(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		moved, err := rebalance.Run(opts.DB, opts.Cache, io.Discard, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"moved": moved})
	}
}

type availabilityRequest struct {
	WorkerID         string `json:"worker_id" binding:"required"`
	StageID          *uint  `json:"stage_id"`
	Status           string `json:"status"`
	SkillLevel       string `json:"skill_level"`
	ExperienceMonths *int   `json:"experience_months"`
}

func handleAvailability(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req availabilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updated, err := assign.ApplyAvailability(db, assign.AvailabilityUpdate{
			WorkerID:         req.WorkerID,
			StageID:          req.StageID,
			Status:           req.Status,
			SkillLevel:       req.SkillLevel,
			ExperienceMonths: req.ExperienceMonths,
		}, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

func handleAssignmentReport(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rep, err := report.BuildAssignmentReport(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}

func handlePerformanceStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		day := c.Query("date")
		if day == "" {
			day = scoring.DayBucket(time.Now())
		}
		stats, err := report.DailyPerformanceStats(db, day)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": day, "stats": stats})
	}
}

// respond maps state-machine results and errors onto HTTP statuses.
// Expected non-errors (queued, already terminal, order complete) are 200s;
// invariant violations are conflicts.
func respond(c *gin.Context, result *workflow.Result, err error) {
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrNoOpenStage):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, workflow.ErrOrderActive),
			errors.Is(err, workflow.ErrInvalidTransition),
			errors.Is(err, workflow.ErrNotAssignee),
			errors.Is(err, workflow.ErrStageMismatch),
			errors.Is(err, workflow.ErrStageNotCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, workflow.ErrReasonRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome":        result.Outcome,
		"order_complete": result.OrderComplete,
		"progress":       result.Progress,
	})
}
