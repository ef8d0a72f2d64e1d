package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/attempt"
	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/rbac"
)

// visibleAttempt loads the attempt and hides other students' attempts from
// callers without attempt:view-all.
func visibleAttempt(svc *attempt.Service, r *http.Request, id string) (attempt.Attempt, error) {
	a, err := svc.Get(r.Context(), id)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if !seesAll(r) && a.StudentID != rbac.SubjectFromContext(r.Context()) {
		return attempt.Attempt{}, errs.NotFound("attempt", id)
	}
	return a, nil
}

type startReq struct {
	AssessmentID string `json:"assessment_id" validate:"required"`
}

// POST /attempts
func StartAttemptHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		a, err := svc.Start(r.Context(), req.AssessmentID, rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

type answerReq struct {
	Answer json.RawMessage `json:"answer"`
}

// PUT /attempts/{attemptID}/answers/{questionID}   {"answer": <value>}
func SaveAnswerHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		sub, err := svc.SaveAnswer(r.Context(),
			chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()),
			chi.URLParam(r, "questionID"),
			req.Answer)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}

// POST /attempts/{attemptID}/submit
func SubmitAttemptHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		if a.StudentID != rbac.SubjectFromContext(r.Context()) {
			writeError(w, log, r, errs.NotFound("attempt", id))
			return
		}
		res, err := svc.Submit(r.Context(), id)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := visibleAttempt(svc, r, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /attempts?assessment_id=...&student_id=...&status=...&limit=50&offset=0
// Callers without attempt:view-all only ever see their own attempts.
func ListAttemptsHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs := r.URL.Query()
		studentID := strings.TrimSpace(qs.Get("student_id"))
		if !seesAll(r) {
			studentID = rbac.SubjectFromContext(r.Context())
		}
		status := attempt.Status(strings.TrimSpace(qs.Get("status")))
		switch status {
		case "", attempt.StatusInProgress, attempt.StatusSubmitted, attempt.StatusGraded:
		default:
			writeError(w, log, r, fmt.Errorf("%w: unknown status %q", errs.ErrInvalidInput, status))
			return
		}
		list, err := svc.List(r.Context(), attempt.ListOpts{
			AssessmentID: strings.TrimSpace(qs.Get("assessment_id")),
			StudentID:    studentID,
			Status:       status,
			Limit:        parseIntDefault(qs.Get("limit"), 50),
			Offset:       parseIntDefault(qs.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /attempts/{attemptID}/result
func GetResultHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := visibleAttempt(svc, r, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		res, err := svc.Result(r.Context(), a.ID)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /attempts/{attemptID}/results
// Every stored result version, oldest first.
func ListResultsHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := visibleAttempt(svc, r, chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		list, err := svc.ResultHistory(r.Context(), a.ID)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type applyGradesReq struct {
	Items    map[string]grading.ManualInput `json:"items"`              // question_id -> grade
	Finalize bool                           `json:"finalize,omitempty"` // optional
}

// POST /attempts/{attemptID}/grading
func ApplyGradingHandler(svc *attempt.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req applyGradesReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		res, err := svc.ApplyManualGrades(r.Context(), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()), req.Items, req.Finalize)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
