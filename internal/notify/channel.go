package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pass names a scheduler run.
type Pass string

// Passes
const (
	PassDueSoon Pass = "due_soon"
	PassOverdue Pass = "overdue"
	PassManual  Pass = "manual_nudge"
)

// Batch is everything one reviewer is reminded about in one pass on one
// channel. Delivery is at-least-once: a batch may be delivered again when a
// pass is re-run after a failure to log it.
type Batch struct {
	Pass         Pass
	Type         CommunicationType
	Day          time.Time
	Location     *time.Location
	Reviewer     string
	ReviewerName string
	Assignments  []PendingAssignment
}

// AssignmentIDs returns the ids of the batch's assignments.
func (b Batch) AssignmentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.Assignments))
	for _, a := range b.Assignments {
		ids = append(ids, a.AssignmentID)
	}
	return ids
}

// IdempotencyKeys returns the per-assignment keys covered by the batch,
// sorted.
func (b Batch) IdempotencyKeys() []string {
	keys := make([]string, 0, len(b.Assignments))
	for _, a := range b.Assignments {
		keys = append(keys, IdempotencyKey(a.AssignmentID, b.Day, b.Type))
	}
	slices.Sort(keys)
	return keys
}

// DeliveryID is a stable identifier for the batch derived from its
// idempotency keys and pass. Hex digits are valid in calendar event ids.
func (b Batch) DeliveryID() string {
	sum := sha256.Sum256([]byte(string(b.Pass) + "|" + strings.Join(b.IdempotencyKeys(), "|")))
	return hex.EncodeToString(sum[:])
}

// Channel is the outbound boundary for one communication type.
type Channel interface {
	Type() CommunicationType
	Deliver(ctx context.Context, batch Batch) error
}
