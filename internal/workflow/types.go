// Package workflow holds the review and feedback-assignment state machines
// and the domain types they operate on.
package workflow

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus is the aggregate status of a review.
type ReviewStatus string

// Review statuses
const (
	ReviewCreated            ReviewStatus = "created"
	ReviewFeedbackInProgress ReviewStatus = "feedback_in_progress"
	ReviewFeedbackCompleted  ReviewStatus = "feedback_completed"
	ReviewClosed             ReviewStatus = "closed"
)

// ReviewStatuses lists every known review status.
var ReviewStatuses = []ReviewStatus{
	ReviewCreated, ReviewFeedbackInProgress, ReviewFeedbackCompleted, ReviewClosed,
}

// AssignmentStatus is the status of a single feedback assignment.
type AssignmentStatus string

// Assignment statuses
const (
	AssignmentAssigned      AssignmentStatus = "assigned"
	AssignmentViewed        AssignmentStatus = "viewed"
	AssignmentStarted       AssignmentStatus = "started"
	AssignmentSavedForLater AssignmentStatus = "saved_for_later"
	AssignmentCompleted     AssignmentStatus = "completed"
	AssignmentRetracted     AssignmentStatus = "retracted"
)

// AssignmentStatuses lists every known assignment status.
var AssignmentStatuses = []AssignmentStatus{
	AssignmentAssigned, AssignmentViewed, AssignmentStarted,
	AssignmentSavedForLater, AssignmentCompleted, AssignmentRetracted,
}

// IsTerminal reports whether no normal reviewer flow leaves this status.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentCompleted || s == AssignmentRetracted
}

// Action names an edge in a transition graph.
type Action string

// Assignment actions
const (
	ActionView            Action = "view"
	ActionStart           Action = "start"
	ActionSaveForLater    Action = "save_for_later"
	ActionResume          Action = "resume"
	ActionDiscardProgress Action = "discard_progress"
	ActionComplete        Action = "complete"
	ActionRetract         Action = "retract"
)

// Review actions
const (
	ActionFeedbackStarted      Action = "feedback_started"
	ActionAllFeedbackCompleted Action = "all_feedback_completed"
	ActionClose                Action = "close"
)

// QuestionType enumerates the kinds of template questions.
type QuestionType string

// Question types
const (
	QuestionRating         QuestionType = "rating"
	QuestionExtendedRating QuestionType = "extended_rating"
	QuestionStandardAnswer QuestionType = "standard_answer"
	QuestionDiscussion     QuestionType = "discussion"
)

// Review is the feedback-collection effort about one reviewee.
type Review struct {
	ID         uuid.UUID    `json:"id"`
	Reviewee   string       `json:"reviewee"`
	Status     ReviewStatus `json:"status"`
	CreatedBy  string       `json:"created_by"`
	ScheduleID *uuid.UUID   `json:"schedule_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Assignment is one reviewer's task within a review.
type Assignment struct {
	ID                  uuid.UUID        `json:"id"`
	ReviewID            uuid.UUID        `json:"review_id"`
	Reviewer            string           `json:"reviewer"`
	ReviewerName        string           `json:"reviewer_name,omitempty"`
	Reviewee            string           `json:"reviewee"`
	TemplateID          uuid.UUID        `json:"template_id"`
	Status              AssignmentStatus `json:"status"`
	Anonymous           bool             `json:"anonymous"`
	Deadline            time.Time        `json:"deadline"`
	RequiredQuestionIDs []string         `json:"required_question_ids"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Question is a single template question.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Prompt   string       `json:"prompt"`
	Required bool         `json:"required"`
}

// Template defines the questions asked by an assignment.
type Template struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	DisplayName  string     `json:"display_name,omitempty"`
	EmailSubject string     `json:"email_subject,omitempty"`
	Questions    []Question `json:"questions"`
}

// RequiredQuestionIDs returns the ids of required questions in template order.
func (t *Template) RequiredQuestionIDs() []string {
	ids := make([]string, 0, len(t.Questions))
	for _, q := range t.Questions {
		if q.Required {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// Answer is one submitted answer.
type Answer struct {
	QuestionID string `json:"question_id"`
	Rating     *int   `json:"rating,omitempty"`
	Content    string `json:"content,omitempty"`
}

// HistoryEntry is an audit record of a single status change.
type HistoryEntry struct {
	SubjectID uuid.UUID `json:"subject_id"`
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

// StatusCounts summarizes the assignments of one review.
type StatusCounts struct {
	Total     int
	Retracted int
	Completed int
	// Touched counts non-retracted assignments that have left assigned.
	Touched int
}

// Active returns the number of non-retracted assignments.
func (c StatusCounts) Active() int {
	return c.Total - c.Retracted
}
