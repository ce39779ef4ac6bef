package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/progress"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// StatusAction is a reviewer action accepted by the status endpoint.
type StatusAction string

// Status actions
const (
	StatusView    StatusAction = "view"
	StatusStart   StatusAction = "start"
	StatusSave    StatusAction = "save"
	StatusDiscard StatusAction = "discard"
)

// InvalidInputError indicates a request the service cannot act on
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Result is the outcome of a mutating call.
type Result struct {
	Assignment    *workflow.Assignment  `json:"assignment"`
	ReviewStatus  workflow.ReviewStatus `json:"review_status"`
	ReviewChanged bool                  `json:"review_changed"`
	// DraftError is set when the draft store failed and the failure was
	// absorbed.
	DraftError string `json:"draft_error,omitempty"`
}

// Service is the entry point for reviewer and admin actions.
type Service struct {
	store       Store
	drafts      progress.Store
	assignments *workflow.AssignmentMachine
	reviews     *workflow.ReviewMachine
	environment string
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEnvironment sets the environment component of draft keys.
func WithEnvironment(env string) Option {
	return func(s *Service) { s.environment = env }
}

// NewService wires the state machines for graphs over store and drafts.
func NewService(store Store, drafts progress.Store, graphs *workflow.Graphs, opts ...Option) *Service {
	s := &Service{
		store:       store,
		drafts:      drafts,
		environment: "default",
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.assignments = workflow.NewAssignmentMachine(graphs.Assignment, s.now)
	s.reviews = workflow.NewReviewMachine(graphs.Review, s.now)
	return s
}

// SubmitInput is a completed feedback form.
type SubmitInput struct {
	AssignmentID uuid.UUID
	Actor        string
	Answers      []workflow.Answer
	Anonymous    bool
}

// Submit completes an assignment and recomputes its review in one
// transaction. The draft is discarded afterwards on a best-effort basis, so
// it can briefly outlive the completed submission.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	answerIDs, err := s.proofAnswerIDs(ctx, in)
	if err != nil {
		return nil, err
	}

	res, err := s.mutate(ctx, in.AssignmentID, func(tx Tx) (*workflow.Assignment, error) {
		a, err := s.assignments.Transition(ctx, tx, workflow.TransitionRequest{
			AssignmentID: in.AssignmentID,
			Target:       workflow.AssignmentCompleted,
			Actor:        in.Actor,
			AnswerIDs:    answerIDs,
		})
		if err != nil {
			return nil, err
		}
		if err := tx.SaveAnswers(ctx, a.ID, in.Answers, in.Anonymous); err != nil {
			return nil, fmt.Errorf("failed to save answers: %w", err)
		}
		a.Anonymous = in.Anonymous
		return a, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.discardDraft(ctx, res.Assignment); err != nil {
		res.DraftError = err.Error()
	}
	s.logger.Info("feedback submitted",
		"assignment_id", in.AssignmentID,
		"review_id", res.Assignment.ReviewID,
		"review_status", res.ReviewStatus,
		"review_changed", res.ReviewChanged)
	return res, nil
}

// proofAnswerIDs returns the answered question ids that take part in the
// completion check. Answers to the template's optional questions are stored
// but left out, so the check compares against the required set only.
func (s *Service) proofAnswerIDs(ctx context.Context, in SubmitInput) ([]string, error) {
	ids := make([]string, 0, len(in.Answers))
	for _, a := range in.Answers {
		ids = append(ids, a.QuestionID)
	}

	a, err := s.store.GetAssignment(ctx, in.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	if a == nil {
		return ids, nil
	}
	tmpl, err := s.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return ids, nil
	}

	optional := make(map[string]bool, len(tmpl.Questions))
	for _, q := range tmpl.Questions {
		optional[q.ID] = true
	}
	for _, id := range a.RequiredQuestionIDs {
		delete(optional, id)
	}

	out := ids[:0]
	for _, id := range ids {
		if !optional[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// PerformAction applies a lower-severity reviewer action. payload is only
// used by save.
func (s *Service) PerformAction(ctx context.Context, assignmentID uuid.UUID, actor string, action StatusAction, payload json.RawMessage) (*Result, error) {
	switch action {
	case StatusView:
		return s.view(ctx, assignmentID, actor)
	case StatusStart:
		return s.start(ctx, assignmentID, actor)
	case StatusSave:
		return s.saveForLater(ctx, assignmentID, actor, payload)
	case StatusDiscard:
		return s.DiscardProgress(ctx, assignmentID, actor)
	default:
		return nil, &InvalidInputError{Field: "action", Message: fmt.Sprintf("unknown action %q", action)}
	}
}

func (s *Service) view(ctx context.Context, assignmentID uuid.UUID, actor string) (*Result, error) {
	return s.mutate(ctx, assignmentID, func(tx Tx) (*workflow.Assignment, error) {
		a, err := s.lockedAssignment(ctx, tx, assignmentID, actor)
		if err != nil {
			return nil, err
		}
		// Viewing again is not a status change.
		if a.Status != workflow.AssignmentAssigned {
			return a, nil
		}
		return s.assignments.ApplyAction(ctx, tx, workflow.ActionRequest{
			AssignmentID: assignmentID,
			Action:       workflow.ActionView,
			Actor:        actor,
		})
	})
}

func (s *Service) start(ctx context.Context, assignmentID uuid.UUID, actor string) (*Result, error) {
	return s.mutate(ctx, assignmentID, func(tx Tx) (*workflow.Assignment, error) {
		a, err := s.lockedAssignment(ctx, tx, assignmentID, actor)
		if err != nil {
			return nil, err
		}
		if a.Status == workflow.AssignmentStarted {
			return a, nil
		}
		action := workflow.ActionStart
		if a.Status == workflow.AssignmentSavedForLater {
			action = workflow.ActionResume
		}
		return s.assignments.ApplyAction(ctx, tx, workflow.ActionRequest{
			AssignmentID: assignmentID,
			Action:       action,
			Actor:        actor,
		})
	})
}

func (s *Service) saveForLater(ctx context.Context, assignmentID uuid.UUID, actor string, payload json.RawMessage) (*Result, error) {
	a, err := s.authorize(ctx, assignmentID, actor)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := progress.ValidatePayload(payload); err != nil {
			return nil, &InvalidInputError{Field: "progress", Message: err.Error()}
		}
	}
	// A rejected save leaves no draft behind. The transaction below checks
	// the edge again against locked state.
	if a.Status != workflow.AssignmentSavedForLater {
		if _, ok := s.assignments.Graph().ActionTo(a.Status, workflow.AssignmentSavedForLater); !ok {
			return nil, &workflow.IllegalTransitionError{
				SubjectID: a.ID,
				From:      string(a.Status),
				To:        string(workflow.AssignmentSavedForLater),
			}
		}
	}
	if len(payload) > 0 {
		if err := s.drafts.Save(ctx, s.draftKey(a), payload); err != nil {
			return nil, &workflow.InfrastructureError{Op: "save draft", Err: err}
		}
	}

	return s.mutate(ctx, assignmentID, func(tx Tx) (*workflow.Assignment, error) {
		current, err := s.lockedAssignment(ctx, tx, assignmentID, actor)
		if err != nil {
			return nil, err
		}
		if current.Status == workflow.AssignmentSavedForLater {
			return current, nil
		}
		return s.assignments.Transition(ctx, tx, workflow.TransitionRequest{
			AssignmentID: assignmentID,
			Target:       workflow.AssignmentSavedForLater,
			Actor:        actor,
		})
	})
}

// DiscardProgress deletes the reviewer's draft and, when the assignment was
// saved for later, reverts it to started. A draft store failure is logged
// and absorbed; the review is recomputed either way.
func (s *Service) DiscardProgress(ctx context.Context, assignmentID uuid.UUID, actor string) (*Result, error) {
	a, err := s.authorize(ctx, assignmentID, actor)
	if err != nil {
		return nil, err
	}
	draftErr := s.discardDraft(ctx, a)

	res, err := s.mutate(ctx, assignmentID, func(tx Tx) (*workflow.Assignment, error) {
		current, err := s.lockedAssignment(ctx, tx, assignmentID, actor)
		if err != nil {
			return nil, err
		}
		if _, ok := s.assignments.Graph().Next(current.Status, workflow.ActionDiscardProgress); !ok {
			return current, nil
		}
		return s.assignments.ApplyAction(ctx, tx, workflow.ActionRequest{
			AssignmentID: assignmentID,
			Action:       workflow.ActionDiscardProgress,
			Actor:        actor,
		})
	})
	if err != nil {
		return nil, err
	}
	if draftErr != nil {
		res.DraftError = draftErr.Error()
	}
	return res, nil
}

// LoadProgress returns the reviewer's draft, or an empty object.
func (s *Service) LoadProgress(ctx context.Context, assignmentID uuid.UUID, actor string) (json.RawMessage, error) {
	a, err := s.authorize(ctx, assignmentID, actor)
	if err != nil {
		return nil, err
	}
	draft, err := s.drafts.Load(ctx, s.draftKey(a))
	if err != nil {
		return nil, &workflow.InfrastructureError{Op: "load draft", Err: err}
	}
	return draft, nil
}

// SaveProgress stores a draft without changing the assignment's status.
func (s *Service) SaveProgress(ctx context.Context, assignmentID uuid.UUID, actor string, payload json.RawMessage) error {
	a, err := s.authorize(ctx, assignmentID, actor)
	if err != nil {
		return err
	}
	if err := progress.ValidatePayload(payload); err != nil {
		return &InvalidInputError{Field: "progress", Message: err.Error()}
	}
	if err := s.drafts.Save(ctx, s.draftKey(a), payload); err != nil {
		return &workflow.InfrastructureError{Op: "save draft", Err: err}
	}
	s.logger.Debug("draft saved",
		"assignment_id", assignmentID,
		"answers", progress.AnswerCount(payload))
	return nil
}

// Retract withdraws an assignment administratively.
func (s *Service) Retract(ctx context.Context, assignmentID uuid.UUID, admin string) (*Result, error) {
	res, err := s.mutate(ctx, assignmentID, func(tx Tx) (*workflow.Assignment, error) {
		return s.assignments.Transition(ctx, tx, workflow.TransitionRequest{
			AssignmentID:   assignmentID,
			Target:         workflow.AssignmentRetracted,
			Actor:          admin,
			Administrative: true,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("assignment retracted", "assignment_id", assignmentID, "by", admin)
	return res, nil
}

// CloseReview applies the administrative close action.
func (s *Service) CloseReview(ctx context.Context, reviewID uuid.UUID, admin string) (*workflow.Review, error) {
	var review *workflow.Review
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.reviews.Apply(ctx, tx, reviewID, workflow.ActionClose, admin)
		if err != nil {
			return err
		}
		review = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// mutate runs fn and the review recompute in one transaction. The review
// row is locked before fn runs so concurrent completions under the same
// review apply one after the other.
func (s *Service) mutate(ctx context.Context, assignmentID uuid.UUID, fn func(tx Tx) (*workflow.Assignment, error)) (*Result, error) {
	current, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	if current == nil {
		return nil, &workflow.NotFoundError{Kind: "assignment", ID: assignmentID}
	}

	var res Result
	err = s.store.InTx(ctx, func(tx Tx) error {
		review, err := tx.GetReview(ctx, current.ReviewID)
		if err != nil {
			return fmt.Errorf("failed to lock review: %w", err)
		}
		if review == nil {
			return &workflow.NotFoundError{Kind: "review", ID: current.ReviewID}
		}

		a, err := fn(tx)
		if err != nil {
			return err
		}
		changed, status, err := s.reviews.Recompute(ctx, tx, current.ReviewID)
		if err != nil {
			return err
		}
		res = Result{Assignment: a, ReviewStatus: status, ReviewChanged: changed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Service) lockedAssignment(ctx context.Context, tx Tx, id uuid.UUID, actor string) (*workflow.Assignment, error) {
	a, err := tx.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	if a == nil {
		return nil, &workflow.NotFoundError{Kind: "assignment", ID: id}
	}
	if !workflow.SameIdentity(actor, a.Reviewer) {
		return nil, &workflow.NotAuthorizedError{AssignmentID: id, Actor: actor}
	}
	return a, nil
}

// authorize reads committed state outside any transaction; it only gates
// draft store access.
func (s *Service) authorize(ctx context.Context, id uuid.UUID, actor string) (*workflow.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	if a == nil {
		return nil, &workflow.NotFoundError{Kind: "assignment", ID: id}
	}
	if !workflow.SameIdentity(actor, a.Reviewer) {
		return nil, &workflow.NotAuthorizedError{AssignmentID: id, Actor: actor}
	}
	return a, nil
}

func (s *Service) draftKey(a *workflow.Assignment) progress.Key {
	return progress.Key{Environment: s.environment, Reviewer: a.Reviewer, AssignmentID: a.ID}
}

func (s *Service) discardDraft(ctx context.Context, a *workflow.Assignment) error {
	if err := s.drafts.Discard(ctx, s.draftKey(a)); err != nil {
		s.logger.Warn("failed to discard draft",
			"assignment_id", a.ID,
			"error", err)
		return &workflow.InfrastructureError{Op: "discard draft", Err: err}
	}
	return nil
}
