package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransitionRequest asks for an assignment to move to Target.
type TransitionRequest struct {
	AssignmentID uuid.UUID
	Target       AssignmentStatus
	Actor        string
	// AnswerIDs is the completion proof, required when Target is completed.
	AnswerIDs []string
	// Administrative skips the reviewer identity check. Only retraction is
	// reachable this way.
	Administrative bool
}

// ActionRequest asks for an assignment action to be applied by name.
type ActionRequest struct {
	AssignmentID   uuid.UUID
	Action         Action
	Actor          string
	AnswerIDs      []string
	Administrative bool
}

// AssignmentMachine guards and applies feedback-assignment transitions.
type AssignmentMachine struct {
	graph *Graph[AssignmentStatus]
	now   func() time.Time
}

// NewAssignmentMachine creates a machine over the given graph. A nil clock
// defaults to time.Now.
func NewAssignmentMachine(graph *Graph[AssignmentStatus], now func() time.Time) *AssignmentMachine {
	if now == nil {
		now = time.Now
	}
	return &AssignmentMachine{graph: graph, now: now}
}

// Graph returns the machine's transition table.
func (m *AssignmentMachine) Graph() *Graph[AssignmentStatus] {
	return m.graph
}

// Transition moves an assignment to req.Target along a graph edge. The
// caller is expected to recompute the owning review in the same tx.
func (m *AssignmentMachine) Transition(ctx context.Context, tx Tx, req TransitionRequest) (*Assignment, error) {
	a, err := m.load(ctx, tx, req.AssignmentID, req.Actor, req.Administrative)
	if err != nil {
		return nil, err
	}

	action, ok := m.graph.ActionTo(a.Status, req.Target)
	if !ok {
		return nil, &IllegalTransitionError{
			SubjectID: a.ID,
			From:      string(a.Status),
			To:        string(req.Target),
		}
	}
	return m.apply(ctx, tx, a, action, req.Target, req.Actor, req.AnswerIDs, req.Administrative)
}

// ApplyAction applies a named action to an assignment.
func (m *AssignmentMachine) ApplyAction(ctx context.Context, tx Tx, req ActionRequest) (*Assignment, error) {
	a, err := m.load(ctx, tx, req.AssignmentID, req.Actor, req.Administrative)
	if err != nil {
		return nil, err
	}

	target, ok := m.graph.Next(a.Status, req.Action)
	if !ok {
		return nil, &IllegalTransitionError{
			SubjectID: a.ID,
			From:      string(a.Status),
			Action:    req.Action,
		}
	}
	return m.apply(ctx, tx, a, req.Action, target, req.Actor, req.AnswerIDs, req.Administrative)
}

func (m *AssignmentMachine) load(ctx context.Context, tx Tx, id uuid.UUID, actor string, administrative bool) (*Assignment, error) {
	a, err := tx.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment %s: %w", id, err)
	}
	if a == nil {
		return nil, &NotFoundError{Kind: "assignment", ID: id}
	}
	if !administrative && !SameIdentity(actor, a.Reviewer) {
		return nil, &NotAuthorizedError{AssignmentID: id, Actor: actor}
	}
	return a, nil
}

func (m *AssignmentMachine) apply(ctx context.Context, tx Tx, a *Assignment, action Action, target AssignmentStatus, actor string, answerIDs []string, administrative bool) (*Assignment, error) {
	// Retract is the only administrative action, and only admins retract.
	if administrative != (action == ActionRetract) {
		return nil, &NotAuthorizedError{AssignmentID: a.ID, Actor: actor}
	}

	if target == AssignmentCompleted {
		missing, unexpected := CompareAnswerSets(a.RequiredQuestionIDs, answerIDs)
		if len(missing) > 0 || len(unexpected) > 0 {
			return nil, &IncompleteSubmissionError{
				AssignmentID: a.ID,
				Missing:      missing,
				Unexpected:   unexpected,
			}
		}
	}

	at := m.now().UTC()
	if err := tx.UpdateAssignmentStatus(ctx, a.ID, target, at); err != nil {
		return nil, fmt.Errorf("failed to update assignment %s: %w", a.ID, err)
	}
	if err := tx.AppendAssignmentHistory(ctx, HistoryEntry{
		SubjectID: a.ID,
		Actor:     strings.ToLower(strings.TrimSpace(actor)),
		Action:    action,
		From:      string(a.Status),
		To:        string(target),
		At:        at,
	}); err != nil {
		return nil, fmt.Errorf("failed to record assignment history: %w", err)
	}

	updated := *a
	updated.Status = target
	updated.UpdatedAt = at
	return &updated, nil
}

// CompareAnswerSets returns the required ids that were not answered and the
// answered ids that are not required. Order and duplicates are ignored;
// both results are sorted.
func CompareAnswerSets(required, answered []string) (missing, unexpected []string) {
	req := make(map[string]struct{}, len(required))
	for _, id := range required {
		req[id] = struct{}{}
	}
	got := make(map[string]struct{}, len(answered))
	for _, id := range answered {
		got[id] = struct{}{}
	}

	for id := range req {
		if _, ok := got[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id := range got {
		if _, ok := req[id]; !ok {
			unexpected = append(unexpected, id)
		}
	}
	slices.Sort(missing)
	slices.Sort(unexpected)
	return missing, unexpected
}
