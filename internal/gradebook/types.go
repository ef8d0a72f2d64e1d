// Package gradebook passes attempt scores back to an external LMS gradebook
// over LTI Assignment and Grade Services (AGS).
package gradebook

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/notify"
)

// Link binds an assessment to the platform's line-items container.
type Link struct {
	AssessmentID   string    `json:"assessment_id"`
	LineItemsURL   string    `json:"lineitems_url" validate:"required,url"`
	ResourceLinkID string    `json:"resource_link_id,omitempty"`
	Label          string    `json:"label,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BoundLineItem is the line item remembered for an assessment once it has
// been found or created on the platform.
type BoundLineItem struct {
	AssessmentID string  `json:"assessment_id"`
	URL          string  `json:"url"`
	Label        string  `json:"label"`
	ScoreMax     float64 `json:"score_max"`
}

type LineItem struct {
	ID, Label, ResourceID, ResourceLinkID string
	ScoreMaximum                          float64
}

type CreateLineItemReq struct {
	Label          string
	ScoreMaximum   float64
	ResourceID     string
	ResourceLinkID string
}

type Score struct {
	UserID, ActivityProgress, GradingProgress string
	ScoreGiven, ScoreMaximum                  float64
	Timestamp                                 time.Time
}

// AGS grading progress values.
const (
	ProgressFullyGraded   = "FullyGraded"
	ProgressPendingManual = "PendingManual"
)

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncOK      SyncStatus = "ok"
	SyncFailed  SyncStatus = "failed"
)

// SyncState is the passback bookkeeping for one attempt.
type SyncState struct {
	AttemptID string     `json:"attempt_id"`
	Version   int        `json:"version"`
	Status    SyncStatus `json:"status"`
	Retries   int        `json:"retries"`
	LastError string     `json:"last_error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store keeps links, line items, the student to platform user mapping and
// sync state. Lookups of missing rows return *errs.NotFoundError.
type Store interface {
	GetLink(ctx context.Context, assessmentID string) (Link, error)
	PutLink(ctx context.Context, l Link) error

	FindLineItem(ctx context.Context, assessmentID string) (BoundLineItem, error)
	UpsertLineItem(ctx context.Context, li BoundLineItem) error

	PlatformUserID(ctx context.Context, studentID string) (string, error)
	PutPlatformUser(ctx context.Context, studentID, platformUserID string) error

	// MarkSync records an outcome; a failure bumps the retry count.
	MarkSync(ctx context.Context, attemptID string, version int, status SyncStatus, lastErr string, at time.Time) error
	SyncState(ctx context.Context, attemptID string) (SyncState, error)
}

type AGSClient interface {
	ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error)
	CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (LineItem, error)
	PostScore(ctx context.Context, lineItemURL string, s Score) error
}

// Results yields the latest stored result of an attempt, for resyncs.
type Results interface {
	Summary(ctx context.Context, attemptID string) (notify.ResultData, error)
}
