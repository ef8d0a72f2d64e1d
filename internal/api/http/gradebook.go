package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/gradebook"
	"github.com/mind-engage/mindengage-grading/internal/review"
)

type linkReq struct {
	LineItemsURL   string `json:"lineitems_url" validate:"required,url"`
	ResourceLinkID string `json:"resource_link_id"`
	Label          string `json:"label"`
}

// PUT /assessments/{assessmentID}/gradebook-link
func LinkGradebookHandler(reviews *review.Service, gb *gradebook.Syncer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "assessmentID")
		var req linkReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		if _, err := reviews.Get(r.Context(), id); err != nil {
			writeError(w, log, r, err)
			return
		}
		l, err := gb.Link(r.Context(), gradebook.Link{
			AssessmentID:   id,
			LineItemsURL:   req.LineItemsURL,
			ResourceLinkID: req.ResourceLinkID,
			Label:          req.Label,
		})
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		log.Info("gradebook linked", zap.String("assessment_id", id), zap.String("lineitems_url", l.LineItemsURL))
		writeJSON(w, http.StatusOK, l)
	}
}

type platformUserReq struct {
	PlatformUserID string `json:"platform_user_id" validate:"required"`
}

// PUT /gradebook/users/{studentID}
func MapPlatformUserHandler(gb *gradebook.Syncer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := chi.URLParam(r, "studentID")
		var req platformUserReq
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, log, r, err)
			return
		}
		if err := gb.MapUser(r.Context(), studentID, req.PlatformUserID); err != nil {
			writeError(w, log, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /attempts/{attemptID}/gradebook-sync
// Posts the latest result again and returns the sync state.
func ResyncHandler(gb *gradebook.Syncer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := gb.Resync(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// GET /attempts/{attemptID}/gradebook-sync
func SyncStateHandler(gb *gradebook.Syncer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := gb.State(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, log, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
