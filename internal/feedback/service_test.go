package feedback_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/memstore"
	"github.com/jonathan/feedback-reviews/internal/progress"
	"github.com/jonathan/feedback-reviews/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	drafts   progress.Store
	svc      *feedback.Service
	template workflow.Template
}

func newFixture(t *testing.T, drafts progress.Store) *fixture {
	t.Helper()
	graphs, err := workflow.DefaultGraphs()
	require.NoError(t, err)

	store := memstore.New()
	tmpl := workflow.Template{
		ID:   uuid.New(),
		Name: "peer",
		Questions: []workflow.Question{
			{ID: "Q1", Type: workflow.QuestionRating, Required: true},
			{ID: "Q2", Type: workflow.QuestionStandardAnswer, Required: true},
			{ID: "Q3", Type: workflow.QuestionDiscussion, Required: true},
			{ID: "Q4", Type: workflow.QuestionDiscussion},
		},
	}
	store.PutTemplate(tmpl)

	if drafts == nil {
		drafts = progress.NewMemoryStore(0)
	}
	svc := feedback.NewService(store, drafts, graphs,
		feedback.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		feedback.WithClock(func() time.Time { return testNow }),
		feedback.WithEnvironment("test"))
	return &fixture{store: store, drafts: drafts, svc: svc, template: tmpl}
}

func (f *fixture) createReview(t *testing.T, reviewers ...string) *feedback.ReviewDetail {
	t.Helper()
	in := feedback.CreateReviewInput{
		Reviewee:   "erin@example.com",
		CreatedBy:  "admin@example.com",
		TemplateID: f.template.ID,
		Deadline:   testNow.AddDate(0, 0, 7),
	}
	for _, r := range reviewers {
		in.Reviewers = append(in.Reviewers, feedback.ReviewerInput{Email: r})
	}
	detail, err := f.svc.CreateReview(context.Background(), in)
	require.NoError(t, err)
	return detail
}

func answers(ids ...string) []workflow.Answer {
	out := make([]workflow.Answer, 0, len(ids))
	for _, id := range ids {
		out = append(out, workflow.Answer{QuestionID: id, Content: "ok"})
	}
	return out
}

func TestCreateReview(t *testing.T) {
	f := newFixture(t, nil)
	detail := f.createReview(t, "alice@example.com", "bob@example.com")

	assert.Equal(t, workflow.ReviewCreated, detail.Review.Status)
	require.Len(t, detail.Assignments, 2)
	for _, a := range detail.Assignments {
		assert.Equal(t, workflow.AssignmentAssigned, a.Status)
		assert.Equal(t, []string{"Q1", "Q2", "Q3"}, a.RequiredQuestionIDs)
	}

	got, err := f.svc.GetReview(context.Background(), detail.Review.ID)
	require.NoError(t, err)
	assert.Len(t, got.Assignments, 2)
}

func TestCreateReview_Invalid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateReview(ctx, feedback.CreateReviewInput{
		Reviewee:   "erin@example.com",
		TemplateID: f.template.ID,
		Reviewers:  []feedback.ReviewerInput{{Email: "a@example.com"}, {Email: "A@example.com"}},
	})
	var invalid *feedback.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "reviewers", invalid.Field)

	_, err = f.svc.CreateReview(ctx, feedback.CreateReviewInput{
		Reviewee:   "erin@example.com",
		TemplateID: uuid.New(),
		Reviewers:  []feedback.ReviewerInput{{Email: "a@example.com"}},
	})
	var nf *workflow.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "template", nf.Kind)
}

func TestSubmit_RequiresAllQuestions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	_, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusView, nil)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: id, Actor: "alice@example.com", Answers: answers("Q1", "Q2")})
	var incomplete *workflow.IncompleteSubmissionError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"Q3"}, incomplete.Missing)

	a, err := f.store.GetAssignment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentViewed, a.Status)
	assert.Empty(t, f.store.Answers(id), "rejected submission stores nothing")

	res, err := f.svc.Submit(ctx, feedback.SubmitInput{
		AssignmentID: id,
		Actor:        "ALICE@example.com",
		Answers:      answers("Q1", "Q2", "Q3"),
		Anonymous:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentCompleted, res.Assignment.Status)
	assert.True(t, res.Assignment.Anonymous)
	assert.True(t, res.ReviewChanged)
	assert.Equal(t, workflow.ReviewFeedbackCompleted, res.ReviewStatus)
	assert.Len(t, f.store.Answers(id), 3)
}

func TestSubmit_OptionalAnswersAreKept(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	_, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusView, nil)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: id, Actor: "alice@example.com", Answers: answers("Q1", "Q2", "Q4")})
	var incomplete *workflow.IncompleteSubmissionError
	require.ErrorAs(t, err, &incomplete, "optional answers do not stand in for required ones")
	assert.Equal(t, []string{"Q3"}, incomplete.Missing)
	assert.Empty(t, incomplete.Unexpected)

	_, err = f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: id, Actor: "alice@example.com", Answers: answers("Q1", "Q2", "Q3", "Q9")})
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"Q9"}, incomplete.Unexpected)

	res, err := f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: id, Actor: "alice@example.com", Answers: answers("Q1", "Q2", "Q3", "Q4")})
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentCompleted, res.Assignment.Status)
	assert.Equal(t, workflow.ReviewFeedbackCompleted, res.ReviewStatus)

	var stored []string
	for _, a := range f.store.Answers(id) {
		stored = append(stored, a.QuestionID)
	}
	assert.ElementsMatch(t, []string{"Q1", "Q2", "Q3", "Q4"}, stored)
}

func TestSubmit_TwoReviewers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "a1@example.com", "a2@example.com")
	a1, a2 := detail.Assignments[0], detail.Assignments[1]

	_, err := f.svc.PerformAction(ctx, a2.ID, a2.Reviewer, feedback.StatusView, nil)
	require.NoError(t, err)
	res, err := f.svc.PerformAction(ctx, a2.ID, a2.Reviewer, feedback.StatusStart, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentStarted, res.Assignment.Status)
	assert.Equal(t, workflow.ReviewFeedbackInProgress, res.ReviewStatus)

	_, err = f.svc.PerformAction(ctx, a1.ID, a1.Reviewer, feedback.StatusView, nil)
	require.NoError(t, err)
	res, err = f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: a1.ID, Actor: a1.Reviewer, Answers: answers("Q1", "Q2", "Q3")})
	require.NoError(t, err)
	assert.False(t, res.ReviewChanged)
	assert.Equal(t, workflow.ReviewFeedbackInProgress, res.ReviewStatus)

	res, err = f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: a2.ID, Actor: a2.Reviewer, Answers: answers("Q1", "Q2", "Q3")})
	require.NoError(t, err)
	assert.True(t, res.ReviewChanged)
	assert.Equal(t, workflow.ReviewFeedbackCompleted, res.ReviewStatus)
}

func TestSubmit_ConcurrentCompletionAdvancesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	reviewers := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	detail := f.createReview(t, reviewers...)

	for _, a := range detail.Assignments {
		_, err := f.svc.PerformAction(ctx, a.ID, a.Reviewer, feedback.StatusView, nil)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(detail.Assignments))
	for i, a := range detail.Assignments {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(ctx, feedback.SubmitInput{
				AssignmentID: a.ID,
				Actor:        a.Reviewer,
				Answers:      answers("Q1", "Q2", "Q3"),
			})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	r, err := f.store.GetReview(ctx, detail.Review.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ReviewFeedbackCompleted, r.Status)

	history, err := f.store.ListReviewHistory(ctx, detail.Review.ID)
	require.NoError(t, err)
	completions := 0
	for _, e := range history {
		if e.Action == workflow.ActionAllFeedbackCompleted {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestPerformAction_ViewIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	for range 3 {
		res, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusView, nil)
		require.NoError(t, err)
		assert.Equal(t, workflow.AssignmentViewed, res.Assignment.Status)
	}
	history, err := f.store.ListAssignmentHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = f.svc.PerformAction(ctx, id, "mallory@example.com", feedback.StatusView, nil)
	var notAuth *workflow.NotAuthorizedError
	require.ErrorAs(t, err, &notAuth)
}

func TestPerformAction_SaveAndDiscard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	_, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusView, nil)
	require.NoError(t, err)

	res, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusSave,
		json.RawMessage(`{"answers":[{"question_id":"Q1"}]}`))
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentSavedForLater, res.Assignment.Status)

	draft, err := f.svc.LoadProgress(ctx, id, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, progress.AnswerCount(draft))

	res, err = f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusDiscard, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentStarted, res.Assignment.Status)
	assert.Empty(t, res.DraftError)

	draft, err = f.svc.LoadProgress(ctx, id, "alice@example.com")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(draft))

	res, err = f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusDiscard, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentStarted, res.Assignment.Status, "discard from started keeps status")
}

func TestPerformAction_RejectedSaveStoresNoDraft(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	_, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusSave,
		json.RawMessage(`{"answers":{"Q1":"x"}}`))
	var illegal *workflow.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, string(workflow.AssignmentAssigned), illegal.From)

	a, err := f.store.GetAssignment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentAssigned, a.Status)

	draft, err := f.svc.LoadProgress(ctx, id, "alice@example.com")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(draft))
}

func TestPerformAction_SaveRejectsInvalidPayload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	_, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusSave, json.RawMessage(`{nope`))
	var invalid *feedback.InvalidInputError
	require.ErrorAs(t, err, &invalid)

	_, err = f.svc.PerformAction(ctx, id, "alice@example.com", "shred", nil)
	require.ErrorAs(t, err, &invalid)
}

func TestSaveProgress_WrongReviewerCannotWrite(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	err := f.svc.SaveProgress(ctx, id, "mallory@example.com", json.RawMessage(`{"answers":[]}`))
	var notAuth *workflow.NotAuthorizedError
	require.ErrorAs(t, err, &notAuth)

	require.NoError(t, f.svc.SaveProgress(ctx, id, "alice@example.com", json.RawMessage(`{"answers":[1]}`)))
	a, err := f.store.GetAssignment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentAssigned, a.Status, "draft saves do not change status")
}

type failingDrafts struct {
	progress.Store
}

func (failingDrafts) Discard(context.Context, progress.Key) error {
	return errors.New("blob store unavailable")
}

func TestDiscardProgress_DraftFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t, failingDrafts{Store: progress.NewMemoryStore(0)})
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	_, err := f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusView, nil)
	require.NoError(t, err)
	_, err = f.svc.PerformAction(ctx, id, "alice@example.com", feedback.StatusSave, nil)
	require.NoError(t, err)

	res, err := f.svc.DiscardProgress(ctx, id, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentStarted, res.Assignment.Status)
	assert.Contains(t, res.DraftError, "blob store unavailable")

	res, err = f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: id, Actor: "alice@example.com", Answers: answers("Q1", "Q2", "Q3")})
	require.NoError(t, err, "draft failures never fail a submission")
	assert.NotEmpty(t, res.DraftError)
}

func TestRetract_CompletesReview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "a1@example.com", "a2@example.com")
	a1, a2 := detail.Assignments[0], detail.Assignments[1]

	_, err := f.svc.PerformAction(ctx, a1.ID, a1.Reviewer, feedback.StatusView, nil)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, feedback.SubmitInput{AssignmentID: a1.ID, Actor: a1.Reviewer, Answers: answers("Q1", "Q2", "Q3")})
	require.NoError(t, err)

	res, err := f.svc.Retract(ctx, a2.ID, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentRetracted, res.Assignment.Status)
	assert.Equal(t, workflow.ReviewFeedbackCompleted, res.ReviewStatus)

	_, err = f.svc.Retract(ctx, a1.ID, "admin@example.com")
	var illegal *workflow.IllegalTransitionError
	require.ErrorAs(t, err, &illegal, "completed assignments cannot be retracted")

	review, err := f.svc.CloseReview(ctx, detail.Review.ID, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, workflow.ReviewClosed, review.Status)
}

func TestGetAssignment_Authorization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	detail := f.createReview(t, "alice@example.com")
	id := detail.Assignments[0].ID

	_, err := f.svc.GetAssignment(ctx, id, "bob@example.com", false)
	var notAuth *workflow.NotAuthorizedError
	require.ErrorAs(t, err, &notAuth)

	got, err := f.svc.GetAssignment(ctx, id, "bob@example.com", true)
	require.NoError(t, err)
	assert.Equal(t, id, got.Assignment.ID)

	_, err = f.svc.GetAssignment(ctx, uuid.New(), "alice@example.com", false)
	var nf *workflow.NotFoundError
	require.ErrorAs(t, err, &nf)
}
