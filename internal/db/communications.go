package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/notify"
)

var _ notify.CommunicationLog = (*DB)(nil)

// HasCommunication reports whether a system nudge of the given type was
// already logged for the assignment on day
func (db *DB) HasCommunication(ctx context.Context, assignmentID uuid.UUID, day time.Time, typ notify.CommunicationType) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM communication_log
		   WHERE assignment_id = $1 AND day = $2 AND type = $3 AND reason = 'system_nudge')`,
		assignmentID, day, string(typ),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check communication log: %w", err)
	}
	return exists, nil
}

// RecordCommunication appends a record. A duplicate system nudge is
// ignored and reported as not inserted.
func (db *DB) RecordCommunication(ctx context.Context, rec notify.CommunicationRecord) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO communication_log (id, assignment_id, day, type, reason, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (assignment_id, day, type) WHERE reason = 'system_nudge' DO NOTHING`,
		rec.ID, rec.AssignmentID, rec.Day, string(rec.Type), string(rec.Reason), rec.IdempotencyKey, rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record communication %s: %w", rec.IdempotencyKey, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListCommunications returns an assignment's log in insertion order
func (db *DB) ListCommunications(ctx context.Context, assignmentID uuid.UUID) ([]notify.CommunicationRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, assignment_id, day, type, reason, idempotency_key, created_at
		 FROM communication_log WHERE assignment_id = $1
		 ORDER BY created_at, id`,
		assignmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list communications: %w", err)
	}
	defer rows.Close()

	var out []notify.CommunicationRecord
	for rows.Next() {
		var r notify.CommunicationRecord
		if err := rows.Scan(&r.ID, &r.AssignmentID, &r.Day, &r.Type, &r.Reason, &r.IdempotencyKey, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan communication: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
