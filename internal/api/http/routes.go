package http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/attempt"
	"github.com/mind-engage/mindengage-grading/internal/gradebook"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/notify"
	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/rbac"
	"github.com/mind-engage/mindengage-grading/internal/review"
)

type Deps struct {
	Questions question.Store
	Engine    *grading.Engine
	Review    *review.Service
	Attempts  *attempt.Service
	// Events enables GET /events when the event_log notifier is on.
	Events *notify.EventLog
	// Gradebook enables the score passback routes.
	Gradebook *gradebook.Syncer
	Log       *zap.Logger
}

// Mount registers the grading API on r. r must already carry the bearer
// middleware that puts subject and role into the request context.
func Mount(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	// Question bank
	r.With(rbac.Require("question:create")).
		Post("/questions", CreateQuestionHandler(d.Questions, log))
	r.With(rbac.Require("question:view")).
		Get("/questions", ListQuestionsHandler(d.Questions, log))
	r.With(rbac.Require("question:view")).
		Get("/questions/{questionID}", GetQuestionHandler(d.Questions, log))
	r.With(rbac.Require("question:import")).
		Post("/questions/import", ImportQTIHandler(d.Questions, log))
	r.With(rbac.Require("question:export")).
		Get("/questions/export", ExportQTIHandler(d.Questions, log))
	r.With(rbac.Require("grade:preview")).
		Post("/grade", GradePreviewHandler(d.Questions, d.Engine, log))

	// Assessments and review workflow. Transition permissions depend on the
	// edge and are checked by the workflow itself.
	r.With(rbac.Require("assessment:create")).
		Post("/assessments", CreateAssessmentHandler(d.Review, log))
	r.With(rbac.Require("assessment:view")).
		Get("/assessments", ListAssessmentsHandler(d.Review, log))
	r.With(rbac.Require("assessment:view")).
		Get("/assessments/{assessmentID}", GetAssessmentHandler(d.Review, log))
	r.With(rbac.Require("assessment:edit")).
		Put("/assessments/{assessmentID}", UpdateAssessmentHandler(d.Review, log))
	r.With(rbac.RequireAny("review:author", "review:claim", "review:coordinate", "review:approve")).
		Post("/assessments/{assessmentID}/transitions", TransitionHandler(d.Review, log))
	r.With(rbac.Require("assessment:view")).
		Get("/assessments/{assessmentID}/history", HistoryHandler(d.Review, log))

	// Student flow
	r.With(rbac.Require("attempt:create")).
		Post("/attempts", StartAttemptHandler(d.Attempts, log))
	r.With(rbac.Require("attempt:save")).
		Put("/attempts/{attemptID}/answers/{questionID}", SaveAnswerHandler(d.Attempts, log))
	r.With(rbac.Require("attempt:submit")).
		Post("/attempts/{attemptID}/submit", SubmitAttemptHandler(d.Attempts, log))
	r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/attempts", ListAttemptsHandler(d.Attempts, log))
	r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/attempts/{attemptID}", GetAttemptHandler(d.Attempts, log))
	r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/attempts/{attemptID}/result", GetResultHandler(d.Attempts, log))
	r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/attempts/{attemptID}/results", ListResultsHandler(d.Attempts, log))

	// Manual grading
	r.With(rbac.Require("attempt:grade")).
		Post("/attempts/{attemptID}/grading", ApplyGradingHandler(d.Attempts, log))

	if d.Gradebook != nil {
		r.With(rbac.Require("gradebook:manage")).
			Put("/assessments/{assessmentID}/gradebook-link", LinkGradebookHandler(d.Review, d.Gradebook, log))
		r.With(rbac.Require("gradebook:manage")).
			Put("/gradebook/users/{studentID}", MapPlatformUserHandler(d.Gradebook, log))
		r.With(rbac.Require("gradebook:sync")).
			Post("/attempts/{attemptID}/gradebook-sync", ResyncHandler(d.Gradebook, log))
		r.With(rbac.Require("gradebook:sync")).
			Get("/attempts/{attemptID}/gradebook-sync", SyncStateHandler(d.Gradebook, log))
	}

	if d.Events != nil {
		r.With(rbac.Require("events:view")).
			Get("/events", EventsHandler(d.Events, log))
	}
}
