// Package review implements the assessment approval workflow:
// draft -> submitted -> coordinator_review -> admin_review -> approved, with
// rejection back to the author and a new cycle from draft.
package review

import (
	"strings"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/pool"
	"github.com/mind-engage/mindengage-grading/internal/rbac"
)

type Status string

const (
	StatusDraft             Status = "draft"
	StatusSubmitted         Status = "submitted"
	StatusCoordinatorReview Status = "coordinator_review"
	StatusAdminReview       Status = "admin_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusCoordinatorReview,
		StatusAdminReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Actor is whoever asks for a transition.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// System is the actor used for automatic steps.
var System = Actor{ID: "system", Role: rbac.RoleSystem}

// TransitionRecord is one entry of the append-only history.
type TransitionRecord struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	Note      string    `json:"note,omitempty"`
	At        time.Time `json:"at"`
	Cycle     int       `json:"cycle"`
}

// ReviewableAssessment is an assessment plus its review state. Version
// increases by one on every persisted change.
type ReviewableAssessment struct {
	ID                    string             `json:"id"`
	AuthorID              string             `json:"author_id"`
	Title                 string             `json:"title"`
	Content               string             `json:"content"`
	QuestionIDs           []string           `json:"question_ids"`
	PassingScoreRatio     float64            `json:"passing_score_ratio"`
	Pool                  pool.Policy        `json:"pool"`
	Status                Status             `json:"status"`
	Version               int64              `json:"version"`
	Cycle                 int                `json:"cycle"`
	CoordinatorNote       string             `json:"coordinator_note,omitempty"`
	CoordinatorApprovedAt *time.Time         `json:"coordinator_approved_at,omitempty"`
	AdminNote             string             `json:"admin_note,omitempty"`
	AdminApprovedAt       *time.Time         `json:"admin_approved_at,omitempty"`
	History               []TransitionRecord `json:"history,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

type rule struct {
	perm       string
	authorOnly bool
	needsNote  bool
	// reviewers holding any of these may also perform it, author or not
	reviewers []string
}

func (r rule) permits(a ReviewableAssessment, actor Actor) string {
	if rbac.CanAny(actor.Role, r.reviewers...) {
		return ""
	}
	if !rbac.Can(actor.Role, r.perm) {
		return "role " + actor.Role + " may not perform it"
	}
	if r.authorOnly && actor.ID != a.AuthorID {
		return "only the author may perform it"
	}
	return ""
}

// transitions is the complete table; any pair not listed is rejected.
var transitions = map[Status]map[Status]rule{
	StatusDraft: {
		StatusSubmitted: {perm: "review:author", authorOnly: true},
	},
	StatusSubmitted: {
		StatusCoordinatorReview: {perm: "review:claim"},
	},
	StatusCoordinatorReview: {
		StatusAdminReview: {perm: "review:coordinate"},
		StatusRejected:    {perm: "review:coordinate", needsNote: true},
	},
	StatusAdminReview: {
		StatusApproved: {perm: "review:approve"},
		StatusRejected: {perm: "review:approve", needsNote: true},
	},
	StatusRejected: {
		StatusDraft: {perm: "review:author", authorOnly: true, reviewers: []string{"review:coordinate", "review:approve"}},
	},
}

// Allowed lists the states reachable from s.
func Allowed(s Status) []Status {
	var out []Status
	for _, to := range []Status{StatusDraft, StatusSubmitted, StatusCoordinatorReview,
		StatusAdminReview, StatusApproved, StatusRejected} {
		if _, ok := transitions[s][to]; ok {
			out = append(out, to)
		}
	}
	return out
}

// Transition computes the next state of a. It does not persist anything;
// the returned entity has Version+1 and one more history record.
func Transition(a ReviewableAssessment, to Status, actor Actor, note string, now time.Time) (ReviewableAssessment, error) {
	from := a.Status
	invalid := func(reason string) error {
		return &errs.InvalidTransitionError{From: string(from), To: string(to), Reason: reason}
	}
	r, ok := transitions[from][to]
	if !ok {
		return a, invalid("not allowed")
	}
	if actor.ID == "" {
		return a, invalid("no actor")
	}
	if reason := r.permits(a, actor); reason != "" {
		return a, invalid(reason)
	}
	note = strings.TrimSpace(note)
	if r.needsNote && note == "" {
		return a, invalid("a rejection needs a note")
	}
	if to == StatusSubmitted {
		if reason := readyForReview(a); reason != "" {
			return a, invalid(reason)
		}
	}

	now = now.UTC()
	next := a
	next.QuestionIDs = append([]string(nil), a.QuestionIDs...)
	// history is append-only; never share the backing array with a
	next.History = make([]TransitionRecord, len(a.History), len(a.History)+1)
	copy(next.History, a.History)

	switch {
	case from == StatusCoordinatorReview && to == StatusAdminReview:
		next.CoordinatorNote = note
		next.CoordinatorApprovedAt = &now
	case from == StatusCoordinatorReview && to == StatusRejected:
		next.CoordinatorNote = note
	case from == StatusAdminReview && to == StatusApproved:
		next.AdminNote = note
		next.AdminApprovedAt = &now
	case from == StatusAdminReview && to == StatusRejected:
		next.AdminNote = note
	case from == StatusRejected && to == StatusDraft:
		next.Cycle++
		next.CoordinatorApprovedAt = nil
		next.AdminApprovedAt = nil
	}

	next.History = append(next.History, TransitionRecord{
		From:      from,
		To:        to,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Note:      note,
		At:        now,
		Cycle:     next.Cycle,
	})
	next.Status = to
	next.Version++
	next.UpdatedAt = now
	return next, nil
}

func readyForReview(a ReviewableAssessment) string {
	switch {
	case strings.TrimSpace(a.Title) == "":
		return "title is empty"
	case strings.TrimSpace(a.Content) == "":
		return "content is empty"
	case len(a.QuestionIDs) == 0:
		return "no questions"
	}
	return ""
}
