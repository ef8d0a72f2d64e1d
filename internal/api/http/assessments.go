package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/review"
)

// ifMatchVersion reads the expected version from If-Match ("3" or 3).
// A missing header yields 0, which the service treats as "current".
func ifMatchVersion(r *http.Request) (int64, error) {
	h := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	if h == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(h, "W/"), 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: If-Match must be a version number", errs.ErrInvalidInput)
	}
	return v, nil
}

func writeAssessment(w http.ResponseWriter, status int, a review.ReviewableAssessment) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(a.Version, 10)))
	writeJSON(w, status, a)
}

// POST /assessments
func CreateAssessmentHandler(svc *review.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d review.Draft
		if err := decodeJSON(w, r, &d); err != nil {
			writeError(w, log, r, err)
			return
		}
		a, err := svc.Create(r.Context(), actorFrom(r), d)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeAssessment(w, http.StatusCreated, a)
	}
}

// GET /assessments/{assessmentID}
func GetAssessmentHandler(svc *review.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Get(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeAssessment(w, http.StatusOK, a)
	}
}

// GET /assessments?status=...&author_id=...&q=...&limit=50&offset=0
func ListAssessmentsHandler(svc *review.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs := r.URL.Query()
		status := review.Status(strings.TrimSpace(qs.Get("status")))
		if status != "" && !status.Valid() {
			writeError(w, log, r, fmt.Errorf("%w: unknown status %q", errs.ErrInvalidInput, status))
			return
		}
		list, err := svc.List(r.Context(), review.ListOpts{
			Status:   status,
			AuthorID: strings.TrimSpace(qs.Get("author_id")),
			Q:        strings.TrimSpace(qs.Get("q")),
			Limit:    parseIntDefault(qs.Get("limit"), 50),
			Offset:   parseIntDefault(qs.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// PUT /assessments/{assessmentID}   If-Match: "<version>"
func UpdateAssessmentHandler(svc *review.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := ifMatchVersion(r)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		var d review.Draft
		if err := decodeJSON(w, r, &d); err != nil {
			writeError(w, log, r, err)
			return
		}
		a, err := svc.Update(r.Context(), chi.URLParam(r, "assessmentID"), version, actorFrom(r), d)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeAssessment(w, http.StatusOK, a)
	}
}

type transitionReq struct {
	Target          review.Status `json:"target" validate:"required"`
	ExpectedVersion int64         `json:"expected_version" validate:"gte=0"`
	Note            string        `json:"note"`
}

// POST /assessments/{assessmentID}/transitions
// expected_version falls back to If-Match when omitted.
func TransitionHandler(svc *review.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transitionReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		if !req.Target.Valid() {
			writeError(w, log, r, fmt.Errorf("%w: unknown target %q", errs.ErrInvalidInput, req.Target))
			return
		}
		if req.ExpectedVersion == 0 {
			v, err := ifMatchVersion(r)
			if err != nil {
				writeError(w, log, r, err)
				return
			}
			req.ExpectedVersion = v
		}
		a, err := svc.Transition(r.Context(), chi.URLParam(r, "assessmentID"), req.ExpectedVersion,
			req.Target, actorFrom(r), req.Note)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeAssessment(w, http.StatusOK, a)
	}
}

// GET /assessments/{assessmentID}/history
func HistoryHandler(svc *review.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := svc.History(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		if h == nil {
			h = []review.TransitionRecord{}
		}
		writeJSON(w, http.StatusOK, h)
	}
}
