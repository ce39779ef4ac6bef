package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const reviewColumns = `id, reviewee, status, created_by, schedule_id, created_at, updated_at`

const assignmentColumns = `id, review_id, reviewer, reviewer_name, reviewee, template_id, status,
	anonymous, deadline, required_question_ids, created_at, updated_at`

func scanReview(row pgx.Row) (*workflow.Review, error) {
	var r workflow.Review
	err := row.Scan(&r.ID, &r.Reviewee, &r.Status, &r.CreatedBy, &r.ScheduleID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanAssignment(row pgx.Row) (*workflow.Assignment, error) {
	var a workflow.Assignment
	err := row.Scan(&a.ID, &a.ReviewID, &a.Reviewer, &a.ReviewerName, &a.Reviewee, &a.TemplateID,
		&a.Status, &a.Anonymous, &a.Deadline, &a.RequiredQuestionIDs, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func getReview(ctx context.Context, q queryer, id uuid.UUID, lock bool) (*workflow.Review, error) {
	sql := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	r, err := scanReview(q.QueryRow(ctx, sql, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return r, nil
}

func getAssignment(ctx context.Context, q queryer, id uuid.UUID, lock bool) (*workflow.Assignment, error) {
	sql := `SELECT ` + assignmentColumns + ` FROM feedback_assignments WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	a, err := scanAssignment(q.QueryRow(ctx, sql, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// GetReview retrieves a review by ID
func (db *DB) GetReview(ctx context.Context, id uuid.UUID) (*workflow.Review, error) {
	return getReview(ctx, db.pool, id, false)
}

// GetAssignment retrieves an assignment by ID
func (db *DB) GetAssignment(ctx context.Context, id uuid.UUID) (*workflow.Assignment, error) {
	return getAssignment(ctx, db.pool, id, false)
}

// ListAssignmentsByReview lists a review's assignments in creation order
func (db *DB) ListAssignmentsByReview(ctx context.Context, reviewID uuid.UUID) ([]workflow.Assignment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM feedback_assignments
		 WHERE review_id = $1
		 ORDER BY created_at, lower(reviewer)`,
		reviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []workflow.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetTemplate retrieves a template by ID
func (db *DB) GetTemplate(ctx context.Context, id uuid.UUID) (*workflow.Template, error) {
	var t workflow.Template
	var questions []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, display_name, email_subject, questions FROM templates WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.DisplayName, &t.EmailSubject, &questions)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if err := json.Unmarshal(questions, &t.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode questions of template %s: %w", id, err)
	}
	return &t, nil
}

// UpsertTemplate creates or replaces a template by name
func (db *DB) UpsertTemplate(ctx context.Context, t *workflow.Template) (uuid.UUID, error) {
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal questions: %w", err)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	var id uuid.UUID
	err = db.pool.QueryRow(ctx,
		`INSERT INTO templates (id, name, display_name, email_subject, questions)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO UPDATE SET display_name = $3, email_subject = $4, questions = $5
		 RETURNING id`,
		t.ID, t.Name, t.DisplayName, t.EmailSubject, questions,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert template %s: %w", t.Name, err)
	}
	t.ID = id
	return id, nil
}

// ListAssignmentHistory returns an assignment's status changes in order
func (db *DB) ListAssignmentHistory(ctx context.Context, assignmentID uuid.UUID) ([]workflow.HistoryEntry, error) {
	return listHistory(ctx, db.pool,
		`SELECT assignment_id, actor, action, from_status, to_status, created_at
		 FROM assignment_status_history WHERE assignment_id = $1 ORDER BY id`,
		assignmentID)
}

// ListReviewHistory returns a review's status changes in order
func (db *DB) ListReviewHistory(ctx context.Context, reviewID uuid.UUID) ([]workflow.HistoryEntry, error) {
	return listHistory(ctx, db.pool,
		`SELECT review_id, actor, action, from_status, to_status, created_at
		 FROM review_status_history WHERE review_id = $1 ORDER BY id`,
		reviewID)
}

func listHistory(ctx context.Context, q queryer, sql string, id uuid.UUID) ([]workflow.HistoryEntry, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []workflow.HistoryEntry
	for rows.Next() {
		var e workflow.HistoryEntry
		if err := rows.Scan(&e.SubjectID, &e.Actor, &e.Action, &e.From, &e.To, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
