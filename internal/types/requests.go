// Package types provides the request and response bodies of the HTTP API.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnswerRequest is one submitted answer.
type AnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	Rating     *int   `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Content    string `json:"content,omitempty" validate:"max=10000"`
}

// SubmitFeedbackRequest completes an assignment.
type SubmitFeedbackRequest struct {
	Answers   []AnswerRequest `json:"answers" validate:"required,dive"`
	Anonymous bool            `json:"anonymous"`
}

// StatusActionRequest applies a reviewer action. Progress is only read by
// the save action.
type StatusActionRequest struct {
	Action   string          `json:"action" validate:"required,oneof=view start save discard"`
	Progress json.RawMessage `json:"progress,omitempty"`
}

// ProgressRequest stores a draft.
type ProgressRequest struct {
	Progress json.RawMessage `json:"progress" validate:"required"`
}

// ReviewerRequest names one reviewer of a new review.
type ReviewerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name,omitempty" validate:"max=200"`
}

// CreateReviewRequest creates a review and its assignments from a template.
type CreateReviewRequest struct {
	Reviewee   string            `json:"reviewee" validate:"required,email"`
	TemplateID uuid.UUID         `json:"template_id" validate:"required"`
	Deadline   time.Time         `json:"deadline" validate:"required"`
	Reviewers  []ReviewerRequest `json:"reviewers" validate:"required,min=1,dive"`
	ScheduleID *uuid.UUID        `json:"schedule_id,omitempty"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// ProgressResponse is the body of GET /assignments/{id}/progress.
type ProgressResponse struct {
	AssignmentID uuid.UUID       `json:"assignment_id"`
	Progress     json.RawMessage `json:"progress"`
}
