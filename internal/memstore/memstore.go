// Package memstore is an in-process implementation of the feedback store,
// the scheduler's read model and the communication log. Transactions run
// against a private copy of the state which replaces the committed state
// when the callback succeeds.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/notify"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

type state struct {
	reviews           map[uuid.UUID]workflow.Review
	assignments       map[uuid.UUID]workflow.Assignment
	templates         map[uuid.UUID]workflow.Template
	answers           map[uuid.UUID][]workflow.Answer
	assignmentHistory []workflow.HistoryEntry
	reviewHistory     []workflow.HistoryEntry
}

func newState() state {
	return state{
		reviews:     map[uuid.UUID]workflow.Review{},
		assignments: map[uuid.UUID]workflow.Assignment{},
		templates:   map[uuid.UUID]workflow.Template{},
		answers:     map[uuid.UUID][]workflow.Answer{},
	}
}

func (s state) clone() state {
	c := state{
		reviews:           make(map[uuid.UUID]workflow.Review, len(s.reviews)),
		assignments:       make(map[uuid.UUID]workflow.Assignment, len(s.assignments)),
		templates:         s.templates,
		answers:           make(map[uuid.UUID][]workflow.Answer, len(s.answers)),
		assignmentHistory: slices.Clone(s.assignmentHistory),
		reviewHistory:     slices.Clone(s.reviewHistory),
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.assignments {
		v.RequiredQuestionIDs = slices.Clone(v.RequiredQuestionIDs)
		c.assignments[k] = v
	}
	for k, v := range s.answers {
		c.answers[k] = slices.Clone(v)
	}
	return c
}

// Store holds all state behind one mutex. Transactions are serialized.
type Store struct {
	mu    sync.Mutex
	state state

	logMu          sync.Mutex
	communications []notify.CommunicationRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{state: newState()}
}

var (
	_ feedback.Store          = (*Store)(nil)
	_ notify.Source           = (*Store)(nil)
	_ notify.CommunicationLog = (*Store)(nil)
)

// PutTemplate adds or replaces a template.
func (s *Store) PutTemplate(t workflow.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	templates := make(map[uuid.UUID]workflow.Template, len(s.state.templates)+1)
	for k, v := range s.state.templates {
		templates[k] = v
	}
	t.Questions = slices.Clone(t.Questions)
	templates[t.ID] = t
	s.state.templates = templates
}

// InTx implements feedback.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx feedback.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// GetReview implements feedback.Store.
func (s *Store) GetReview(_ context.Context, id uuid.UUID) (*workflow.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.reviews[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// GetAssignment implements feedback.Store.
func (s *Store) GetAssignment(_ context.Context, id uuid.UUID) (*workflow.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.state.assignments[id]
	if !ok {
		return nil, nil
	}
	a.RequiredQuestionIDs = slices.Clone(a.RequiredQuestionIDs)
	return &a, nil
}

// GetTemplate implements feedback.Store.
func (s *Store) GetTemplate(_ context.Context, id uuid.UUID) (*workflow.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.templates[id]
	if !ok {
		return nil, nil
	}
	t.Questions = slices.Clone(t.Questions)
	return &t, nil
}

// ListAssignmentsByReview implements feedback.Store.
func (s *Store) ListAssignmentsByReview(_ context.Context, reviewID uuid.UUID) ([]workflow.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []workflow.Assignment
	for _, a := range s.state.assignments {
		if a.ReviewID == reviewID {
			a.RequiredQuestionIDs = slices.Clone(a.RequiredQuestionIDs)
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Reviewer < out[j].Reviewer
	})
	return out, nil
}

// ListAssignmentHistory implements feedback.Store.
func (s *Store) ListAssignmentHistory(_ context.Context, assignmentID uuid.UUID) ([]workflow.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterHistory(s.state.assignmentHistory, assignmentID), nil
}

// ListReviewHistory returns the review's status changes in order.
func (s *Store) ListReviewHistory(_ context.Context, reviewID uuid.UUID) ([]workflow.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterHistory(s.state.reviewHistory, reviewID), nil
}

// Answers returns the answers stored for an assignment.
func (s *Store) Answers(assignmentID uuid.UUID) []workflow.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.answers[assignmentID])
}

func filterHistory(entries []workflow.HistoryEntry, id uuid.UUID) []workflow.HistoryEntry {
	var out []workflow.HistoryEntry
	for _, e := range entries {
		if e.SubjectID == id {
			out = append(out, e)
		}
	}
	return out
}

// ListOpenAssignmentsDueBetween implements notify.Source. Both bounds are
// inclusive.
func (s *Store) ListOpenAssignmentsDueBetween(_ context.Context, from, to time.Time) ([]notify.PendingAssignment, error) {
	return s.pending(func(a workflow.Assignment) bool {
		return !a.Deadline.Before(from) && !a.Deadline.After(to)
	}), nil
}

// ListOpenAssignmentsDueBefore implements notify.Source.
func (s *Store) ListOpenAssignmentsDueBefore(_ context.Context, before time.Time) ([]notify.PendingAssignment, error) {
	return s.pending(func(a workflow.Assignment) bool {
		return a.Deadline.Before(before)
	}), nil
}

// ListOpenAssignmentsForReview implements notify.Source.
func (s *Store) ListOpenAssignmentsForReview(_ context.Context, reviewID uuid.UUID) ([]notify.PendingAssignment, error) {
	return s.pending(func(a workflow.Assignment) bool {
		return a.ReviewID == reviewID
	}), nil
}

func (s *Store) pending(match func(workflow.Assignment) bool) []notify.PendingAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []notify.PendingAssignment
	for _, a := range s.state.assignments {
		if a.Status.IsTerminal() || !match(a) {
			continue
		}
		p := notify.PendingAssignment{
			AssignmentID: a.ID,
			ReviewID:     a.ReviewID,
			Reviewer:     a.Reviewer,
			ReviewerName: a.ReviewerName,
			Reviewee:     a.Reviewee,
			Status:       a.Status,
			Deadline:     a.Deadline,
		}
		if t, ok := s.state.templates[a.TemplateID]; ok {
			p.TemplateName = t.DisplayName
			if p.TemplateName == "" {
				p.TemplateName = t.Name
			}
			p.EmailSubject = t.EmailSubject
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].AssignmentID.String() < out[j].AssignmentID.String()
	})
	return out
}

// HasCommunication implements notify.CommunicationLog.
func (s *Store) HasCommunication(_ context.Context, assignmentID uuid.UUID, day time.Time, typ notify.CommunicationType) (bool, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return s.hasSystemNudge(assignmentID, day, typ), nil
}

// RecordCommunication implements notify.CommunicationLog.
func (s *Store) RecordCommunication(_ context.Context, rec notify.CommunicationRecord) (bool, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	if rec.Reason == notify.ReasonSystemNudge && s.hasSystemNudge(rec.AssignmentID, rec.Day, rec.Type) {
		return false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.communications = append(s.communications, rec)
	return true, nil
}

// ListCommunications implements notify.CommunicationLog.
func (s *Store) ListCommunications(_ context.Context, assignmentID uuid.UUID) ([]notify.CommunicationRecord, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	var out []notify.CommunicationRecord
	for _, c := range s.communications {
		if c.AssignmentID == assignmentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) hasSystemNudge(assignmentID uuid.UUID, day time.Time, typ notify.CommunicationType) bool {
	for _, c := range s.communications {
		if c.AssignmentID == assignmentID && c.Type == typ &&
			c.Reason == notify.ReasonSystemNudge && c.Day.Equal(day) {
			return true
		}
	}
	return false
}

type memTx struct {
	state state
}

func (t *memTx) GetReview(_ context.Context, id uuid.UUID) (*workflow.Review, error) {
	r, ok := t.state.reviews[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *memTx) GetAssignment(_ context.Context, id uuid.UUID) (*workflow.Assignment, error) {
	a, ok := t.state.assignments[id]
	if !ok {
		return nil, nil
	}
	a.RequiredQuestionIDs = slices.Clone(a.RequiredQuestionIDs)
	return &a, nil
}

func (t *memTx) CountAssignmentStatuses(_ context.Context, reviewID uuid.UUID) (workflow.StatusCounts, error) {
	var c workflow.StatusCounts
	for _, a := range t.state.assignments {
		if a.ReviewID != reviewID {
			continue
		}
		c.Total++
		switch a.Status {
		case workflow.AssignmentRetracted:
			c.Retracted++
			continue
		case workflow.AssignmentCompleted:
			c.Completed++
		}
		if a.Status != workflow.AssignmentAssigned {
			c.Touched++
		}
	}
	return c, nil
}

func (t *memTx) UpdateAssignmentStatus(_ context.Context, id uuid.UUID, status workflow.AssignmentStatus, at time.Time) error {
	a, ok := t.state.assignments[id]
	if !ok {
		return &workflow.NotFoundError{Kind: "assignment", ID: id}
	}
	a.Status = status
	a.UpdatedAt = at
	t.state.assignments[id] = a
	return nil
}

func (t *memTx) UpdateReviewStatus(_ context.Context, id uuid.UUID, status workflow.ReviewStatus, at time.Time) error {
	r, ok := t.state.reviews[id]
	if !ok {
		return &workflow.NotFoundError{Kind: "review", ID: id}
	}
	r.Status = status
	r.UpdatedAt = at
	t.state.reviews[id] = r
	return nil
}

func (t *memTx) AppendAssignmentHistory(_ context.Context, entry workflow.HistoryEntry) error {
	t.state.assignmentHistory = append(t.state.assignmentHistory, entry)
	return nil
}

func (t *memTx) AppendReviewHistory(_ context.Context, entry workflow.HistoryEntry) error {
	t.state.reviewHistory = append(t.state.reviewHistory, entry)
	return nil
}

func (t *memTx) SaveAnswers(_ context.Context, assignmentID uuid.UUID, answers []workflow.Answer, anonymous bool) error {
	a, ok := t.state.assignments[assignmentID]
	if !ok {
		return &workflow.NotFoundError{Kind: "assignment", ID: assignmentID}
	}
	a.Anonymous = anonymous
	t.state.assignments[assignmentID] = a
	t.state.answers[assignmentID] = slices.Clone(answers)
	return nil
}

func (t *memTx) CreateReview(_ context.Context, review *workflow.Review) error {
	t.state.reviews[review.ID] = *review
	return nil
}

func (t *memTx) CreateAssignment(_ context.Context, a *workflow.Assignment) error {
	if _, ok := t.state.reviews[a.ReviewID]; !ok {
		return &workflow.NotFoundError{Kind: "review", ID: a.ReviewID}
	}
	for _, existing := range t.state.assignments {
		if existing.ReviewID == a.ReviewID && strings.EqualFold(existing.Reviewer, a.Reviewer) {
			return fmt.Errorf("reviewer %s is already assigned to review %s", a.Reviewer, a.ReviewID)
		}
	}
	c := *a
	c.RequiredQuestionIDs = slices.Clone(a.RequiredQuestionIDs)
	t.state.assignments[a.ID] = c
	return nil
}
