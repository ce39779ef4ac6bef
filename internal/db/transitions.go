package db

import (
	"context"
	"fmt"

	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// LoadTransitionGraphs builds both state machine graphs from the
// status_transitions lookup table.
func (db *DB) LoadTransitionGraphs(ctx context.Context) (*workflow.Graphs, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT machine, from_status, action, to_status
		 FROM status_transitions
		 ORDER BY machine, position`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load status transitions: %w", err)
	}
	defer rows.Close()

	var assignment, review []workflow.EdgeSpec
	for rows.Next() {
		var machine string
		var e workflow.EdgeSpec
		if err := rows.Scan(&machine, &e.From, &e.Action, &e.To); err != nil {
			return nil, fmt.Errorf("failed to scan status transition: %w", err)
		}
		switch machine {
		case "assignment":
			assignment = append(assignment, e)
		case "review":
			review = append(review, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status transitions: %w", err)
	}
	if len(assignment) == 0 || len(review) == 0 {
		return nil, fmt.Errorf("status_transitions is missing rows for one of the machines")
	}
	return workflow.BuildGraphs(assignment, review)
}
