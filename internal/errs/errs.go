// Package errs holds the error taxonomy shared by grading, scoring and review.
// Callers match with errors.As; nothing here is retried automatically.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidInput marks malformed client input (bad JSON shape, missing fields).
var ErrInvalidInput = errors.New("invalid input")

// ConfigurationError reports a malformed question or answer-key definition.
// It is surfaced to the content author and is never retryable.
type ConfigurationError struct {
	QuestionID string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.QuestionID == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: question %s: %s", e.QuestionID, e.Reason)
}

// NotFoundError reports a dangling reference.
type NotFoundError struct {
	Kind string // question, attempt, assessment, result
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidAssessmentError blocks aggregation, e.g. when nothing is gradable.
type InvalidAssessmentError struct {
	Reason string
}

func (e *InvalidAssessmentError) Error() string { return "invalid assessment: " + e.Reason }

// InvalidTransitionError is a review-workflow violation.
type InvalidTransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// StaleStateError is returned when an optimistic-concurrency precondition fails.
// The caller should re-fetch and retry once.
type StaleStateError struct {
	ID       string
	Expected int64
	Actual   int64
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale state for %s: expected version %d, found %d", e.ID, e.Expected, e.Actual)
}

func Config(questionID, format string, args ...any) error {
	return &ConfigurationError{QuestionID: questionID, Reason: fmt.Sprintf(format, args...)}
}

func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

func InvalidAssessment(format string, args ...any) error {
	return &InvalidAssessmentError{Reason: fmt.Sprintf(format, args...)}
}

func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsInvalidAssessment(err error) bool {
	var e *InvalidAssessmentError
	return errors.As(err, &e)
}

func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

func IsStale(err error) bool {
	var e *StaleStateError
	return errors.As(err, &e)
}

// HTTPStatus maps the taxonomy onto response codes; anything else is a 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsStale(err):
		return http.StatusConflict
	case IsInvalidTransition(err):
		return http.StatusConflict
	case IsConfiguration(err), IsInvalidAssessment(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
