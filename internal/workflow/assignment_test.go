package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultGraphs(t *testing.T) *Graphs {
	t.Helper()
	g, err := DefaultGraphs()
	require.NoError(t, err)
	return g
}

func TestTransition_EdgeExistsIffTransitionSucceeds(t *testing.T) {
	graphs := defaultGraphs(t)
	m := NewAssignmentMachine(graphs.Assignment, fixedNow)
	ctx := context.Background()

	for _, from := range AssignmentStatuses {
		for _, to := range AssignmentStatuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				tx := newFakeTx()
				r := tx.addReview(ReviewFeedbackInProgress)
				a := tx.addAssignment(r.ID, "alice@example.com", from, "q1")

				req := TransitionRequest{
					AssignmentID: a.ID,
					Target:       to,
					Actor:        "alice@example.com",
					AnswerIDs:    []string{"q1"},
				}
				if to == AssignmentRetracted {
					req.Administrative = true
					req.Actor = "admin@example.com"
				}

				_, edge := graphs.Assignment.ActionTo(from, to)
				got, err := m.Transition(ctx, tx, req)
				if edge {
					require.NoError(t, err)
					assert.Equal(t, to, got.Status)
					assert.Equal(t, to, tx.assignments[a.ID].Status)
					require.Len(t, tx.assignmentHistory, 1)
					assert.Equal(t, string(from), tx.assignmentHistory[0].From)
					assert.Equal(t, string(to), tx.assignmentHistory[0].To)
				} else {
					var illegal *IllegalTransitionError
					require.ErrorAs(t, err, &illegal)
					assert.Equal(t, from, tx.assignments[a.ID].Status, "status unchanged")
					assert.Empty(t, tx.assignmentHistory)
				}
			})
		}
	}
}

func TestTransition_IdentityIsCaseInsensitive(t *testing.T) {
	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	tx := newFakeTx()
	r := tx.addReview(ReviewCreated)
	a := tx.addAssignment(r.ID, "Alice@Example.com", AssignmentAssigned)

	got, err := m.ApplyAction(context.Background(), tx, ActionRequest{
		AssignmentID: a.ID,
		Action:       ActionView,
		Actor:        "  alice@EXAMPLE.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, AssignmentViewed, got.Status)
	assert.Equal(t, "alice@example.com", tx.assignmentHistory[0].Actor)
	assert.Equal(t, fixedNow(), tx.assignmentHistory[0].At)
}

func TestTransition_WrongReviewer(t *testing.T) {
	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	tx := newFakeTx()
	r := tx.addReview(ReviewCreated)
	a := tx.addAssignment(r.ID, "alice@example.com", AssignmentViewed)

	for _, actor := range []string{"bob@example.com", "", "  "} {
		_, err := m.Transition(context.Background(), tx, TransitionRequest{
			AssignmentID: a.ID,
			Target:       AssignmentStarted,
			Actor:        actor,
		})
		var notAuth *NotAuthorizedError
		require.ErrorAs(t, err, &notAuth, "actor %q", actor)
	}
	assert.Equal(t, AssignmentViewed, tx.assignments[a.ID].Status)
}

func TestTransition_AdministrativeOnlyRetracts(t *testing.T) {
	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	tx := newFakeTx()
	r := tx.addReview(ReviewCreated)
	a := tx.addAssignment(r.ID, "alice@example.com", AssignmentViewed)

	_, err := m.Transition(context.Background(), tx, TransitionRequest{
		AssignmentID:   a.ID,
		Target:         AssignmentStarted,
		Actor:          "admin@example.com",
		Administrative: true,
	})
	var notAuth *NotAuthorizedError
	require.ErrorAs(t, err, &notAuth)

	got, err := m.Transition(context.Background(), tx, TransitionRequest{
		AssignmentID:   a.ID,
		Target:         AssignmentRetracted,
		Actor:          "admin@example.com",
		Administrative: true,
	})
	require.NoError(t, err)
	assert.Equal(t, AssignmentRetracted, got.Status)
}

func TestTransition_ReviewerCannotRetract(t *testing.T) {
	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	tx := newFakeTx()
	r := tx.addReview(ReviewCreated)
	a := tx.addAssignment(r.ID, "alice@example.com", AssignmentStarted)

	_, err := m.Transition(context.Background(), tx, TransitionRequest{
		AssignmentID: a.ID,
		Target:       AssignmentRetracted,
		Actor:        "alice@example.com",
	})
	var notAuth *NotAuthorizedError
	require.ErrorAs(t, err, &notAuth)

	_, err = m.ApplyAction(context.Background(), tx, ActionRequest{
		AssignmentID: a.ID,
		Action:       ActionRetract,
		Actor:        "alice@example.com",
	})
	require.ErrorAs(t, err, &notAuth)
	assert.Equal(t, AssignmentStarted, tx.assignments[a.ID].Status)
	assert.Empty(t, tx.assignmentHistory)
}

func TestTransition_NotFound(t *testing.T) {
	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	_, err := m.Transition(context.Background(), newFakeTx(), TransitionRequest{
		AssignmentID: uuid.New(),
		Target:       AssignmentViewed,
		Actor:        "alice@example.com",
	})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "assignment", nf.Kind)
}

func TestTransition_CompletionRequiresExactAnswerSet(t *testing.T) {
	tests := []struct {
		name           string
		answers        []string
		wantMissing    []string
		wantUnexpected []string
	}{
		{name: "subset", answers: []string{"Q1", "Q2"}, wantMissing: []string{"Q3"}},
		{name: "superset", answers: []string{"Q1", "Q2", "Q3", "Q4"}, wantUnexpected: []string{"Q4"}},
		{name: "disjoint", answers: []string{"Q9"}, wantMissing: []string{"Q1", "Q2", "Q3"}, wantUnexpected: []string{"Q9"}},
		{name: "empty", answers: nil, wantMissing: []string{"Q1", "Q2", "Q3"}},
		{name: "exact reordered with duplicates", answers: []string{"Q3", "Q1", "Q2", "Q1"}},
	}

	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newFakeTx()
			r := tx.addReview(ReviewFeedbackInProgress)
			a := tx.addAssignment(r.ID, "alice@example.com", AssignmentStarted, "Q1", "Q2", "Q3")

			got, err := m.Transition(context.Background(), tx, TransitionRequest{
				AssignmentID: a.ID,
				Target:       AssignmentCompleted,
				Actor:        "alice@example.com",
				AnswerIDs:    tt.answers,
			})
			if tt.wantMissing == nil && tt.wantUnexpected == nil {
				require.NoError(t, err)
				assert.Equal(t, AssignmentCompleted, got.Status)
				return
			}
			var incomplete *IncompleteSubmissionError
			require.ErrorAs(t, err, &incomplete)
			assert.Equal(t, tt.wantMissing, incomplete.Missing)
			assert.Equal(t, tt.wantUnexpected, incomplete.Unexpected)
			assert.Equal(t, AssignmentStarted, tx.assignments[a.ID].Status)
		})
	}
}

func TestTransition_DoubleSubmitRejected(t *testing.T) {
	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	tx := newFakeTx()
	r := tx.addReview(ReviewFeedbackInProgress)
	a := tx.addAssignment(r.ID, "alice@example.com", AssignmentStarted, "Q1")

	req := TransitionRequest{
		AssignmentID: a.ID,
		Target:       AssignmentCompleted,
		Actor:        "alice@example.com",
		AnswerIDs:    []string{"Q1"},
	}
	_, err := m.Transition(context.Background(), tx, req)
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), tx, req)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Len(t, tx.assignmentHistory, 1)
}

func TestApplyAction_Unknown(t *testing.T) {
	m := NewAssignmentMachine(defaultGraphs(t).Assignment, fixedNow)
	tx := newFakeTx()
	r := tx.addReview(ReviewCreated)
	a := tx.addAssignment(r.ID, "alice@example.com", AssignmentAssigned)

	_, err := m.ApplyAction(context.Background(), tx, ActionRequest{
		AssignmentID: a.ID,
		Action:       ActionResume,
		Actor:        "alice@example.com",
	})
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Contains(t, illegal.Error(), `action "resume" is not allowed from status "assigned"`)
}

func TestCompareAnswerSets(t *testing.T) {
	missing, unexpected := CompareAnswerSets([]string{"b", "a", "a"}, []string{"c", "a"})
	assert.Equal(t, []string{"b"}, missing)
	assert.Equal(t, []string{"c"}, unexpected)

	missing, unexpected = CompareAnswerSets(nil, nil)
	assert.Empty(t, missing)
	assert.Empty(t, unexpected)
}
