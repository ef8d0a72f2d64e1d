package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

// POST /questions
// Body is the question envelope; the key is decoded by type. An empty id is
// assigned one.
func CreateQuestionHandler(store question.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q question.Question
		if err := decodeJSON(w, r, &q); err != nil {
			writeError(w, log, r, err)
			return
		}
		if strings.TrimSpace(q.ID) == "" {
			q.ID = uuid.NewString()
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = time.Now().UTC()
		}
		if err := store.Put(r.Context(), q); err != nil {
			writeError(w, log, r, err)
			return
		}
		log.Info("question saved", zap.String("question_id", q.ID), zap.String("type", string(q.Type)))
		writeJSON(w, http.StatusCreated, q)
	}
}

// GET /questions/{questionID}
func GetQuestionHandler(store question.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.Get(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// GET /questions?type=...&q=...&limit=50&offset=0
func ListQuestionsHandler(store question.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs := r.URL.Query()
		t := question.Type(strings.TrimSpace(qs.Get("type")))
		if t != "" && !t.Valid() {
			writeError(w, log, r, fmt.Errorf("%w: unknown type %q", errs.ErrInvalidInput, t))
			return
		}
		list, err := store.List(r.Context(), question.ListOpts{
			Type:   t,
			Q:      strings.TrimSpace(qs.Get("q")),
			Limit:  parseIntDefault(qs.Get("limit"), 50),
			Offset: parseIntDefault(qs.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type gradeReq struct {
	QuestionID string          `json:"question_id" validate:"required"`
	Answer     json.RawMessage `json:"answer"`
}

// POST /grade
// Grades one answer against a stored question without recording anything.
func GradePreviewHandler(store question.Store, engine *grading.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		q, err := store.Get(r.Context(), req.QuestionID)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		ans, err := question.DecodeAnswer(q.Type, req.Answer)
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		res, err := engine.Grade(&q, question.Submission{QuestionID: q.ID, Raw: req.Answer, Answer: ans})
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
