package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: title is required", ErrInvalidInput), http.StatusBadRequest},
		{NotFound("attempt", "a1"), http.StatusNotFound},
		{fmt.Errorf("load: %w", &StaleStateError{ID: "x", Expected: 1, Actual: 2}), http.StatusConflict},
		{&InvalidTransitionError{From: "draft", To: "approved"}, http.StatusConflict},
		{Config("q1", "bad key"), http.StatusUnprocessableEntity},
		{InvalidAssessment("empty"), http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, `attempt "a1" not found`, NotFound("attempt", "a1").Error())
	assert.Equal(t, "configuration: question q1: points must be non-negative", Config("q1", "points must be non-negative").Error())
	assert.Equal(t, "configuration: no questions", Config("", "no questions").Error())
	assert.Equal(t, "invalid transition draft -> approved", (&InvalidTransitionError{From: "draft", To: "approved"}).Error())
	assert.Equal(t, "stale state for x: expected version 1, found 2", (&StaleStateError{ID: "x", Expected: 1, Actual: 2}).Error())

	wrapped := fmt.Errorf("outer: %w", Config("q1", "x"))
	var ce *ConfigurationError
	assert.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "q1", ce.QuestionID)
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsStale(&StaleStateError{}))
	assert.True(t, IsInvalidTransition(&InvalidTransitionError{}))
}
