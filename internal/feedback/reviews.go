package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// ReviewerInput names one reviewer of a new review.
type ReviewerInput struct {
	Email string
	Name  string
}

// CreateReviewInput describes a review to create from a template.
type CreateReviewInput struct {
	Reviewee   string
	CreatedBy  string
	TemplateID uuid.UUID
	Deadline   time.Time
	Reviewers  []ReviewerInput
	ScheduleID *uuid.UUID
}

// ReviewDetail is a review with its assignments.
type ReviewDetail struct {
	Review      *workflow.Review      `json:"review"`
	Assignments []workflow.Assignment `json:"assignments"`
}

// AssignmentDetail is an assignment with its status history.
type AssignmentDetail struct {
	Assignment *workflow.Assignment     `json:"assignment"`
	History    []workflow.HistoryEntry `json:"history"`
}

// CreateReview creates a review in created status and one assigned
// assignment per reviewer, all in one transaction.
func (s *Service) CreateReview(ctx context.Context, in CreateReviewInput) (*ReviewDetail, error) {
	if strings.TrimSpace(in.Reviewee) == "" {
		return nil, &InvalidInputError{Field: "reviewee", Message: "is required"}
	}
	if len(in.Reviewers) == 0 {
		return nil, &InvalidInputError{Field: "reviewers", Message: "at least one reviewer is required"}
	}
	seen := make(map[string]bool, len(in.Reviewers))
	for _, r := range in.Reviewers {
		email := strings.ToLower(strings.TrimSpace(r.Email))
		if email == "" {
			return nil, &InvalidInputError{Field: "reviewers", Message: "reviewer email is required"}
		}
		if seen[email] {
			return nil, &InvalidInputError{Field: "reviewers", Message: fmt.Sprintf("duplicate reviewer %s", email)}
		}
		seen[email] = true
	}

	tmpl, err := s.store.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return nil, &workflow.NotFoundError{Kind: "template", ID: in.TemplateID}
	}

	now := s.now().UTC()
	review := &workflow.Review{
		ID:         uuid.New(),
		Reviewee:   strings.TrimSpace(in.Reviewee),
		Status:     workflow.ReviewCreated,
		CreatedBy:  strings.ToLower(strings.TrimSpace(in.CreatedBy)),
		ScheduleID: in.ScheduleID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	required := tmpl.RequiredQuestionIDs()

	detail := &ReviewDetail{Review: review}
	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.CreateReview(ctx, review); err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}
		for _, r := range in.Reviewers {
			a := workflow.Assignment{
				ID:                  uuid.New(),
				ReviewID:            review.ID,
				Reviewer:            strings.TrimSpace(r.Email),
				ReviewerName:        r.Name,
				Reviewee:            review.Reviewee,
				TemplateID:          tmpl.ID,
				Status:              workflow.AssignmentAssigned,
				Deadline:            in.Deadline,
				RequiredQuestionIDs: required,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := tx.CreateAssignment(ctx, &a); err != nil {
				return fmt.Errorf("failed to create assignment for %s: %w", a.Reviewer, err)
			}
			detail.Assignments = append(detail.Assignments, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("review created",
		"review_id", review.ID,
		"template", tmpl.Name,
		"assignments", len(detail.Assignments))
	return detail, nil
}

// GetReview returns a review with its assignments.
func (s *Service) GetReview(ctx context.Context, id uuid.UUID) (*ReviewDetail, error) {
	r, err := s.store.GetReview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	if r == nil {
		return nil, &workflow.NotFoundError{Kind: "review", ID: id}
	}
	assignments, err := s.store.ListAssignmentsByReview(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return &ReviewDetail{Review: r, Assignments: assignments}, nil
}

// GetAssignment returns an assignment with its history. Only the reviewer
// or an admin may read it.
func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID, actor string, admin bool) (*AssignmentDetail, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	if a == nil {
		return nil, &workflow.NotFoundError{Kind: "assignment", ID: id}
	}
	if !admin && !workflow.SameIdentity(actor, a.Reviewer) {
		return nil, &workflow.NotAuthorizedError{AssignmentID: id, Actor: actor}
	}
	history, err := s.store.ListAssignmentHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return &AssignmentDetail{Assignment: a, History: history}, nil
}
