package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/notify"
)

var _ notify.Source = (*DB)(nil)

const pendingQuery = `SELECT a.id, a.review_id, a.reviewer, a.reviewer_name, a.reviewee, a.status, a.deadline,
	        COALESCE(NULLIF(t.display_name, ''), t.name), t.email_subject
	 FROM feedback_assignments a
	 JOIN templates t ON t.id = a.template_id
	 WHERE a.status NOT IN ('completed', 'retracted') AND `

// ListOpenAssignmentsDueBetween lists open assignments with from <= deadline <= to
func (db *DB) ListOpenAssignmentsDueBetween(ctx context.Context, from, to time.Time) ([]notify.PendingAssignment, error) {
	return db.listPending(ctx, pendingQuery+`a.deadline BETWEEN $1 AND $2 ORDER BY a.deadline, a.id`, from, to)
}

// ListOpenAssignmentsDueBefore lists open assignments with deadline < before
func (db *DB) ListOpenAssignmentsDueBefore(ctx context.Context, before time.Time) ([]notify.PendingAssignment, error) {
	return db.listPending(ctx, pendingQuery+`a.deadline < $1 ORDER BY a.deadline, a.id`, before)
}

// ListOpenAssignmentsForReview lists a review's open assignments
func (db *DB) ListOpenAssignmentsForReview(ctx context.Context, reviewID uuid.UUID) ([]notify.PendingAssignment, error) {
	return db.listPending(ctx, pendingQuery+`a.review_id = $1 ORDER BY a.deadline, a.id`, reviewID)
}

func (db *DB) listPending(ctx context.Context, sql string, args ...any) ([]notify.PendingAssignment, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending assignments: %w", err)
	}
	defer rows.Close()

	var out []notify.PendingAssignment
	for rows.Next() {
		var p notify.PendingAssignment
		if err := rows.Scan(&p.AssignmentID, &p.ReviewID, &p.Reviewer, &p.ReviewerName, &p.Reviewee,
			&p.Status, &p.Deadline, &p.TemplateName, &p.EmailSubject); err != nil {
			return nil, fmt.Errorf("failed to scan pending assignment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
