// Package progress stores unsubmitted draft answers ("save for later").
//
// Drafts are a cache of intent, not a source of truth. A Store is not part
// of the database transaction that changes an assignment's status, and no
// ordering is guaranteed between the two: a draft can outlive a completed
// submission until it is discarded, and a missing draft does not mean no
// progress was ever saved. Callers must not assume a draft and the
// assignment row agree.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// EmptyDraft is returned by Load when nothing is stored.
var EmptyDraft = json.RawMessage(`{}`)

// DefaultSnapshots is how many previous saves a store keeps per key.
const DefaultSnapshots = 5

// Key identifies one reviewer's draft for one assignment.
type Key struct {
	Environment  string
	Reviewer     string
	AssignmentID uuid.UUID
}

// String renders the key as environment/reviewer/assignment with the
// reviewer lower-cased.
func (k Key) String() string {
	env := k.Environment
	if env == "" {
		env = "default"
	}
	return fmt.Sprintf("%s/%s/%s", env, strings.ToLower(strings.TrimSpace(k.Reviewer)), k.AssignmentID)
}

// Store is a blob-like key/value store for drafts. It is eventually
// consistent relative to the assignment's persisted status.
type Store interface {
	// Save creates or overwrites the draft. The previous value, if any, is
	// kept as a snapshot.
	Save(ctx context.Context, key Key, payload json.RawMessage) error
	// Load returns EmptyDraft, not an error, when nothing is stored.
	Load(ctx context.Context, key Key) (json.RawMessage, error)
	// Discard deletes the draft and its snapshots. Deleting a missing draft
	// is not an error.
	Discard(ctx context.Context, key Key) error
}

// ValidatePayload rejects payloads that are not JSON.
func ValidatePayload(payload json.RawMessage) error {
	if len(payload) == 0 || !json.Valid(payload) {
		return fmt.Errorf("draft payload is not valid JSON")
	}
	return nil
}

// AnswerCount returns the number of entries under "answers" in a draft,
// whether stored as an array or an object keyed by question id.
func AnswerCount(payload json.RawMessage) int {
	answers := gjson.GetBytes(payload, "answers")
	switch {
	case answers.IsArray():
		return len(answers.Array())
	case answers.IsObject():
		return len(answers.Map())
	default:
		return 0
	}
}
