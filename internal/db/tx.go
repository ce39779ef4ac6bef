package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// pgTx implements feedback.Tx. Reads take row locks held until the
// transaction ends; the review row lock is the serialization point for
// everything under one review.
type pgTx struct {
	tx pgx.Tx
}

var _ feedback.Tx = (*pgTx)(nil)

func (t *pgTx) GetReview(ctx context.Context, id uuid.UUID) (*workflow.Review, error) {
	return getReview(ctx, t.tx, id, true)
}

func (t *pgTx) GetAssignment(ctx context.Context, id uuid.UUID) (*workflow.Assignment, error) {
	return getAssignment(ctx, t.tx, id, true)
}

func (t *pgTx) CountAssignmentStatuses(ctx context.Context, reviewID uuid.UUID) (workflow.StatusCounts, error) {
	var c workflow.StatusCounts
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'retracted'),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COUNT(*) FILTER (WHERE status NOT IN ('assigned', 'retracted'))
		 FROM feedback_assignments WHERE review_id = $1`,
		reviewID,
	).Scan(&c.Total, &c.Retracted, &c.Completed, &c.Touched)
	if err != nil {
		return c, fmt.Errorf("failed to count assignment statuses: %w", err)
	}
	return c, nil
}

func (t *pgTx) UpdateAssignmentStatus(ctx context.Context, id uuid.UUID, status workflow.AssignmentStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE feedback_assignments SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update assignment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &workflow.NotFoundError{Kind: "assignment", ID: id}
	}
	return nil
}

func (t *pgTx) UpdateReviewStatus(ctx context.Context, id uuid.UUID, status workflow.ReviewStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE reviews SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &workflow.NotFoundError{Kind: "review", ID: id}
	}
	return nil
}

func (t *pgTx) AppendAssignmentHistory(ctx context.Context, e workflow.HistoryEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO assignment_status_history (assignment_id, actor, action, from_status, to_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.SubjectID, e.Actor, string(e.Action), e.From, e.To, e.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append assignment history: %w", err)
	}
	return nil
}

func (t *pgTx) AppendReviewHistory(ctx context.Context, e workflow.HistoryEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO review_status_history (review_id, actor, action, from_status, to_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.SubjectID, e.Actor, string(e.Action), e.From, e.To, e.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append review history: %w", err)
	}
	return nil
}

func (t *pgTx) SaveAnswers(ctx context.Context, assignmentID uuid.UUID, answers []workflow.Answer, anonymous bool) error {
	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(
			`INSERT INTO feedback_answers (assignment_id, question_id, rating, content)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (assignment_id, question_id) DO UPDATE SET rating = $3, content = $4`,
			assignmentID, a.QuestionID, a.Rating, a.Content,
		)
	}
	batch.Queue(`UPDATE feedback_assignments SET anonymous = $1 WHERE id = $2`, anonymous, assignmentID)

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save answers: %w", err)
	}
	return nil
}

func (t *pgTx) CreateReview(ctx context.Context, r *workflow.Review) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Reviewee, string(r.Status), r.CreatedBy, r.ScheduleID, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

func (t *pgTx) CreateAssignment(ctx context.Context, a *workflow.Assignment) error {
	required := a.RequiredQuestionIDs
	if required == nil {
		required = []string{}
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO feedback_assignments (`+assignmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.ReviewID, a.Reviewer, a.ReviewerName, a.Reviewee, a.TemplateID, string(a.Status),
		a.Anonymous, a.Deadline, required, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}
