// Package notify delivers grading and review events to outside listeners.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Event types.
const (
	TypeReviewTransition = "review.transition"
	TypeGradeCompleted   = "grade.completed"
	TypeGradePending     = "grade.pending_manual"
	TypeGradeRevised     = "grade.revised"
)

type Event struct {
	Type string    `json:"type"`
	Key  string    `json:"key"` // natural key: assessment or attempt id
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// ResultData is the payload of the grade.* events.
type ResultData struct {
	AttemptID    string  `json:"attempt_id"`
	AssessmentID string  `json:"assessment_id"`
	StudentID    string  `json:"student_id"`
	Version      int     `json:"version"`
	TotalScore   float64 `json:"total_score"`
	MaxScore     float64 `json:"max_score"`
	Status       string  `json:"status"`
	Finalized    bool    `json:"finalized"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, e Event) error

func (f Func) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to a zap logger.
type Log struct{ L *zap.Logger }

func (l Log) Notify(_ context.Context, e Event) error {
	l.L.Info("event",
		zap.String("type", e.Type),
		zap.String("key", e.Key),
		zap.Time("at", e.At),
		zap.Any("data", e.Data),
	)
	return nil
}
