// Package feedback orchestrates reviewer actions: it routes every status
// change through the assignment state machine, recomputes the owning review
// in the same transaction, and drives the draft store on the side.
package feedback

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// Tx is one database transaction. GetReview takes the review row lock that
// serializes all mutations under a review.
type Tx interface {
	workflow.Tx
	SaveAnswers(ctx context.Context, assignmentID uuid.UUID, answers []workflow.Answer, anonymous bool) error
	CreateReview(ctx context.Context, review *workflow.Review) error
	CreateAssignment(ctx context.Context, assignment *workflow.Assignment) error
}

// Store is the relational store behind the service.
type Store interface {
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetReview(ctx context.Context, id uuid.UUID) (*workflow.Review, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*workflow.Assignment, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*workflow.Template, error)
	ListAssignmentsByReview(ctx context.Context, reviewID uuid.UUID) ([]workflow.Assignment, error)
	ListAssignmentHistory(ctx context.Context, assignmentID uuid.UUID) ([]workflow.HistoryEntry, error)
}
