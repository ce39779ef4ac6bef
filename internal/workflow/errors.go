package workflow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NotAuthorizedError indicates the actor is not the assignment's reviewer
type NotAuthorizedError struct {
	AssignmentID uuid.UUID
	Actor        string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("%s is not the reviewer of assignment %s", e.Actor, e.AssignmentID)
}

// IllegalTransitionError indicates there is no edge between two statuses
type IllegalTransitionError struct {
	SubjectID uuid.UUID
	From      string
	To        string
	Action    Action
}

func (e *IllegalTransitionError) Error() string {
	if e.Action != "" && e.To == "" {
		return fmt.Sprintf("action %q is not allowed from status %q", e.Action, e.From)
	}
	return fmt.Sprintf("cannot move %s from %q to %q", e.SubjectID, e.From, e.To)
}

// IncompleteSubmissionError indicates the submitted answers do not match
// the assignment's required questions
type IncompleteSubmissionError struct {
	AssignmentID uuid.UUID
	Missing      []string
	Unexpected   []string
}

func (e *IncompleteSubmissionError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing answers for "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected answers for "+strings.Join(e.Unexpected, ", "))
	}
	if len(parts) == 0 {
		return "incomplete submission"
	}
	return "incomplete submission: " + strings.Join(parts, "; ")
}

// NotFoundError indicates a review, assignment or template does not exist
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InfrastructureError wraps a failure of a collaborator such as the draft
// store or an outbound channel
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
