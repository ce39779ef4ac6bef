package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SystemActor is recorded in history for transitions nobody asked for
// directly, such as a review advancing after its last assignment completes.
const SystemActor = "system"

// Tx is the transactional view the state machines run against. Reads
// return nil, nil when the row does not exist. Implementations backed by a
// database hold row locks for the rows they return until the transaction
// ends.
type Tx interface {
	GetReview(ctx context.Context, id uuid.UUID) (*Review, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*Assignment, error)
	CountAssignmentStatuses(ctx context.Context, reviewID uuid.UUID) (StatusCounts, error)
	UpdateAssignmentStatus(ctx context.Context, id uuid.UUID, status AssignmentStatus, at time.Time) error
	UpdateReviewStatus(ctx context.Context, id uuid.UUID, status ReviewStatus, at time.Time) error
	AppendAssignmentHistory(ctx context.Context, entry HistoryEntry) error
	AppendReviewHistory(ctx context.Context, entry HistoryEntry) error
}

// SameIdentity compares two identities case-insensitively. Empty
// identities never match.
func SameIdentity(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
