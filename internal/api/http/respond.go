// Package http holds the JSON handlers and route table of the grading API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/rbac"
	"github.com/mind-engage/mindengage-grading/internal/review"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps err through the errs taxonomy. Server-side failures are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a JSON body into dst and runs struct validation on it.
// Configuration errors raised while decoding (e.g. a malformed answer key)
// pass through unchanged; anything else is invalid input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		var ce *errs.ConfigurationError
		if errors.As(err, &ce) {
			return err
		}
		return fmt.Errorf("%w: bad json: %v", errs.ErrInvalidInput, err)
	}
	if err := question.Validator().Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s failed %s", errs.ErrInvalidInput, ve[0].Field(), ve[0].Tag())
		}
		var inv *validator.InvalidValidationError
		if errors.As(err, &inv) {
			return nil // not a struct; nothing to validate
		}
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

func actorFrom(r *http.Request) review.Actor {
	return review.Actor{
		ID:   rbac.SubjectFromContext(r.Context()),
		Role: rbac.RoleFromContext(r.Context()),
	}
}

// seesAll reports whether the caller may read other people's attempts.
func seesAll(r *http.Request) bool {
	return rbac.Can(rbac.RoleFromContext(r.Context()), "attempt:view-all")
}
