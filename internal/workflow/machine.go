// Package workflow owns the per-order stage lifecycle: it creates and
// advances OrderProgress rows, drives reservations through the assignment
// coordinator, and records every transition in the append-only audit log.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/velomade/shopfloor/internal/assign"
	"github.com/velomade/shopfloor/internal/config"
	"github.com/velomade/shopfloor/internal/models"
	"github.com/velomade/shopfloor/internal/notify"
	"github.com/velomade/shopfloor/internal/scoring"
	"gorm.io/gorm"
)

// Invariant violations. These abort the transaction and surface to the
// caller; they signal a caller error, not an operational condition.
var (
	ErrOrderActive       = errors.New("workflow: order already has an open stage")
	ErrNoOpenStage       = errors.New("workflow: order has no open stage")
	ErrInvalidTransition = errors.New("workflow: invalid status transition")
	ErrNotAssignee       = errors.New("workflow: worker does not hold this assignment")
	ErrStageMismatch     = errors.New("workflow: stage does not match the order's current stage")
	ErrStageNotCompleted = errors.New("workflow: stage was not completed by this order")
	ErrReasonRequired    = errors.New("workflow: a reason is required")
)

// Operation outcomes. Queued, already-terminal and order-complete are
// normal results, never errors.
const (
	OutcomeAssigned        = "assigned"
	OutcomeQueued          = "queued"
	OutcomeStarted         = "started"
	OutcomeOrderComplete   = "order_complete"
	OutcomeAlreadyTerminal = "already_terminal"
	OutcomeBlocked         = "blocked"
	OutcomeCancelled       = "cancelled"
	OutcomeReassigned      = "reassigned"
)

// Result is the return contract of every state-machine operation.
type Result struct {
	Outcome       string
	Progress      *models.OrderProgress // the affected row; nil when none remains
	OrderComplete bool
}

// Clock supplies the current time, injectable for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Machine drives orders through the stage catalog.
type Machine struct {
	db       *gorm.DB
	clock    Clock
	notifier notify.Notifier
	coord    *assign.Coordinator
	log      zerolog.Logger
}

// Opts holds parameters for creating a Machine.
type Opts struct {
	DB       *gorm.DB
	Weights  config.Weights
	Clock    Clock           // defaults to SystemClock
	Notifier notify.Notifier // optional; nil disables notifications
	Cache    *scoring.Cache  // optional; nil disables score memoization
	Logger   *zerolog.Logger // optional; defaults to a disabled logger
}

// NewMachine creates a Machine with the given options.
func NewMachine(opts Opts) (*Machine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("workflow: db is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Machine{
		db:       opts.DB,
		clock:    clock,
		notifier: opts.Notifier,
		coord:    &assign.Coordinator{Weights: opts.Weights, Cache: opts.Cache},
		log:      log,
	}, nil
}

// openProgress returns the order's single non-terminal row (pending,
// assigned, in_progress or blocked), or nil when every stage is terminal.
// The read takes a row lock so two transactions mutating the same order
// serialize on it; the unique (order_id, stage_id) index backstops the
// empty-result case, where there is no row to lock.
func openProgress(tx *gorm.DB, orderID string) (*models.OrderProgress, error) {
	var p models.OrderProgress
	q := tx.Where("order_id = ? AND status NOT IN ?",
		orderID, []string{models.StatusCompleted, models.StatusCancelled})
	result := assign.LockForUpdate(q).Limit(1).Find(&p)
	if result.Error != nil {
		return nil, fmt.Errorf("workflow: load progress for order %s: %w", orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &p, nil
}

// progressCreateError maps a duplicate-key failure on the (order, stage)
// unique index to the invariant it enforces (a racing writer already
// opened this stage for the order) and wraps anything else.
func progressCreateError(err error, orderID string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: order %s", ErrOrderActive, orderID)
	}
	return fmt.Errorf("workflow: create progress for order %s: %w", orderID, err)
}

// writeTransition appends one audit record. Transition rows are never
// updated or deleted.
func writeTransition(tx *gorm.DB, t models.Transition) error {
	t.ID = uuid.NewString()
	if err := tx.Create(&t).Error; err != nil {
		return fmt.Errorf("workflow: write transition for order %s: %w", t.OrderID, err)
	}
	return nil
}

// normalizePriority validates a priority string, defaulting empty to normal.
func normalizePriority(p string) (string, error) {
	switch p {
	case "":
		return models.PriorityNormal, nil
	case models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("workflow: unknown priority %q", p)
}

// emitAssignment sends the assignment notification when the stage asks for
// one. Delivery failures are logged and never abort the operation.
func (m *Machine) emitAssignment(ctx context.Context, stage *models.Stage, p *models.OrderProgress) {
	if m.notifier == nil || !stage.NotifyOnAssignment {
		return
	}
	n := notify.Assignment{
		OrderID:   p.OrderID,
		StageName: stage.Name,
		WorkerID:  p.WorkerID,
		Priority:  p.Priority,
	}
	if err := m.notifier.NotifyAssignment(ctx, n); err != nil {
		m.log.Warn().Err(err).Str("order", p.OrderID).Str("stage", stage.Name).
			Msg("assignment notification failed")
	}
}

// emitCompletion sends the stage-completion notification.
func (m *Machine) emitCompletion(ctx context.Context, stage *models.Stage, p *models.OrderProgress) {
	if m.notifier == nil {
		return
	}
	n := notify.Completion{
		OrderID:       p.OrderID,
		StageName:     stage.Name,
		WorkerID:      p.WorkerID,
		EfficiencyPct: p.EfficiencyPct,
		QualityScore:  p.QualityScore,
	}
	if err := m.notifier.NotifyCompletion(ctx, n); err != nil {
		m.log.Warn().Err(err).Str("order", p.OrderID).Str("stage", stage.Name).
			Msg("completion notification failed")
	}
}
