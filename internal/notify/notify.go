// Package notify emits assignment and completion notification requests.
// Delivery transport is external; adapters hand the message to a chat
// platform and report errors without affecting engine state.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Assignment is the notification emitted when a worker is reserved for a
// stage of an order.
type Assignment struct {
	OrderID   string
	StageName string
	WorkerID  string
	Priority  string
}

// Completion is the notification emitted when a stage of an order finishes.
type Completion struct {
	OrderID       string
	StageName     string
	WorkerID      string
	EfficiencyPct float64
	QualityScore  *float64
}

// Notifier delivers notification requests to an external channel.
type Notifier interface {
	NotifyAssignment(ctx context.Context, n Assignment) error
	NotifyCompletion(ctx context.Context, n Completion) error
}

// FormatAssignment renders the human-readable assignment message.
func FormatAssignment(n Assignment) string {
	return fmt.Sprintf("Order %s: stage %q assigned to %s (priority %s)",
		n.OrderID, n.StageName, n.WorkerID, n.Priority)
}

// FormatCompletion renders the human-readable completion message.
func FormatCompletion(n Completion) string {
	msg := fmt.Sprintf("Order %s: stage %q completed by %s at %.0f%% efficiency",
		n.OrderID, n.StageName, n.WorkerID, n.EfficiencyPct)
	if n.QualityScore != nil {
		msg += fmt.Sprintf(", quality %.1f/10", *n.QualityScore)
	}
	return msg
}

// Multi fans a notification out to several notifiers, collecting errors.
type Multi []Notifier

func (m Multi) NotifyAssignment(ctx context.Context, n Assignment) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.NotifyAssignment(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyCompletion(ctx context.Context, n Completion) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.NotifyCompletion(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Mock records notifications for tests.
type Mock struct {
	mu          sync.Mutex
	Assignments []Assignment
	Completions []Completion
	Err         error // returned from every call when set
}

func (m *Mock) NotifyAssignment(ctx context.Context, n Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Assignments = append(m.Assignments, n)
	return m.Err
}

func (m *Mock) NotifyCompletion(ctx context.Context, n Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completions = append(m.Completions, n)
	return m.Err
}
