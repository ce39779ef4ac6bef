package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReviewMachine derives a review's status from its assignments.
type ReviewMachine struct {
	graph *Graph[ReviewStatus]
	now   func() time.Time
}

// NewReviewMachine creates a machine over the given graph. A nil clock
// defaults to time.Now.
func NewReviewMachine(graph *Graph[ReviewStatus], now func() time.Time) *ReviewMachine {
	if now == nil {
		now = time.Now
	}
	return &ReviewMachine{graph: graph, now: now}
}

// Graph returns the machine's transition table.
func (m *ReviewMachine) Graph() *Graph[ReviewStatus] {
	return m.graph
}

// Recompute advances the review when its assignments call for it.
//
// A created review moves to in-progress once any non-retracted assignment
// has left assigned. A review moves to feedback-completed once it has at
// least one non-retracted assignment and all of them are completed. A
// missing edge is a no-op, not an error. Calling Recompute again without an
// intervening assignment change never changes anything.
func (m *ReviewMachine) Recompute(ctx context.Context, tx Tx, reviewID uuid.UUID) (bool, ReviewStatus, error) {
	r, err := tx.GetReview(ctx, reviewID)
	if err != nil {
		return false, "", fmt.Errorf("failed to load review %s: %w", reviewID, err)
	}
	if r == nil {
		return false, "", &NotFoundError{Kind: "review", ID: reviewID}
	}

	counts, err := tx.CountAssignmentStatuses(ctx, reviewID)
	if err != nil {
		return false, "", fmt.Errorf("failed to count assignments of review %s: %w", reviewID, err)
	}

	status := r.Status
	changed := false

	if status == ReviewCreated && counts.Touched > 0 {
		if to, ok := m.graph.Next(status, ActionFeedbackStarted); ok {
			if err := m.write(ctx, tx, reviewID, ActionFeedbackStarted, status, to, SystemActor); err != nil {
				return false, status, err
			}
			status, changed = to, true
		}
	}

	allDone := counts.Active() > 0 && counts.Completed == counts.Active()
	if allDone && status != ReviewFeedbackCompleted {
		if to, ok := m.graph.Next(status, ActionAllFeedbackCompleted); ok {
			if err := m.write(ctx, tx, reviewID, ActionAllFeedbackCompleted, status, to, SystemActor); err != nil {
				return changed, status, err
			}
			status, changed = to, true
		}
	}

	return changed, status, nil
}

// Apply applies an administrative action such as close.
func (m *ReviewMachine) Apply(ctx context.Context, tx Tx, reviewID uuid.UUID, action Action, actor string) (*Review, error) {
	r, err := tx.GetReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review %s: %w", reviewID, err)
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "review", ID: reviewID}
	}

	to, ok := m.graph.Next(r.Status, action)
	if !ok {
		return nil, &IllegalTransitionError{SubjectID: reviewID, From: string(r.Status), Action: action}
	}
	if err := m.write(ctx, tx, reviewID, action, r.Status, to, actor); err != nil {
		return nil, err
	}

	updated := *r
	updated.Status = to
	updated.UpdatedAt = m.now().UTC()
	return &updated, nil
}

func (m *ReviewMachine) write(ctx context.Context, tx Tx, id uuid.UUID, action Action, from, to ReviewStatus, actor string) error {
	at := m.now().UTC()
	if err := tx.UpdateReviewStatus(ctx, id, to, at); err != nil {
		return fmt.Errorf("failed to update review %s: %w", id, err)
	}
	if err := tx.AppendReviewHistory(ctx, HistoryEntry{
		SubjectID: id,
		Actor:     strings.ToLower(strings.TrimSpace(actor)),
		Action:    action,
		From:      string(from),
		To:        string(to),
		At:        at,
	}); err != nil {
		return fmt.Errorf("failed to record review history: %w", err)
	}
	return nil
}
