// Package notify runs the reminder passes that nudge reviewers before and
// after their deadlines.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// CommunicationType is the outbound channel a record refers to.
type CommunicationType string

// Communication types
const (
	TypeReviewerEmail CommunicationType = "reviewer_email"
	TypeCalendarEvent CommunicationType = "calendar_event"
)

// Reason records why a communication was sent.
type Reason string

// Reasons
const (
	ReasonSystemNudge     Reason = "system_nudge"
	ReasonManualBulkNudge Reason = "manual_bulk_nudge"
)

// CommunicationRecord is an immutable log entry for one reminder.
type CommunicationRecord struct {
	ID             uuid.UUID         `json:"id"`
	AssignmentID   uuid.UUID         `json:"assignment_id"`
	Day            time.Time         `json:"day"`
	Type           CommunicationType `json:"type"`
	Reason         Reason            `json:"reason"`
	IdempotencyKey string            `json:"idempotency_key"`
	CreatedAt      time.Time         `json:"created_at"`
}

// PendingAssignment is the read model the passes select.
type PendingAssignment struct {
	AssignmentID uuid.UUID                 `json:"assignment_id"`
	ReviewID     uuid.UUID                 `json:"review_id"`
	Reviewer     string                    `json:"reviewer"`
	ReviewerName string                    `json:"reviewer_name,omitempty"`
	Reviewee     string                    `json:"reviewee"`
	Status       workflow.AssignmentStatus `json:"status"`
	Deadline     time.Time                 `json:"deadline"`
	TemplateName string                    `json:"template_name,omitempty"`
	EmailSubject string                    `json:"email_subject,omitempty"`
}

// Source reads committed assignment state. Only assignments that are
// neither completed nor retracted are returned.
type Source interface {
	ListOpenAssignmentsDueBetween(ctx context.Context, from, to time.Time) ([]PendingAssignment, error)
	ListOpenAssignmentsDueBefore(ctx context.Context, before time.Time) ([]PendingAssignment, error)
	ListOpenAssignmentsForReview(ctx context.Context, reviewID uuid.UUID) ([]PendingAssignment, error)
}

// CommunicationLog is the append-only reminder log used for dedup.
//
// HasCommunication only considers system nudges.
// RecordCommunication returns false without error when a system nudge for
// the same (assignment, day, type) already exists. Manual nudges are always
// inserted.
type CommunicationLog interface {
	HasCommunication(ctx context.Context, assignmentID uuid.UUID, day time.Time, typ CommunicationType) (bool, error)
	RecordCommunication(ctx context.Context, rec CommunicationRecord) (bool, error)
	ListCommunications(ctx context.Context, assignmentID uuid.UUID) ([]CommunicationRecord, error)
}

// IdempotencyKey identifies one reminder of one type for one assignment on
// one day.
func IdempotencyKey(assignmentID uuid.UUID, day time.Time, typ CommunicationType) string {
	return fmt.Sprintf("%s:%s:%s", assignmentID, day.Format(time.DateOnly), typ)
}

// DayOf returns the calendar day of t in loc, as midnight UTC of that date.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// startOfDay returns the instant the given day begins in loc.
func startOfDay(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}
