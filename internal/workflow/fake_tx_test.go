package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// fakeTx is a map-backed Tx for machine tests.
type fakeTx struct {
	reviews           map[uuid.UUID]*Review
	assignments       map[uuid.UUID]*Assignment
	assignmentHistory []HistoryEntry
	reviewHistory     []HistoryEntry
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		reviews:     map[uuid.UUID]*Review{},
		assignments: map[uuid.UUID]*Assignment{},
	}
}

func (f *fakeTx) addReview(status ReviewStatus) *Review {
	r := &Review{ID: uuid.New(), Reviewee: "reviewee@example.com", Status: status}
	f.reviews[r.ID] = r
	return r
}

func (f *fakeTx) addAssignment(reviewID uuid.UUID, reviewer string, status AssignmentStatus, required ...string) *Assignment {
	a := &Assignment{
		ID:                  uuid.New(),
		ReviewID:            reviewID,
		Reviewer:            reviewer,
		Status:              status,
		RequiredQuestionIDs: required,
	}
	f.assignments[a.ID] = a
	return a
}

func (f *fakeTx) GetReview(_ context.Context, id uuid.UUID) (*Review, error) {
	r, ok := f.reviews[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (f *fakeTx) GetAssignment(_ context.Context, id uuid.UUID) (*Assignment, error) {
	a, ok := f.assignments[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (f *fakeTx) CountAssignmentStatuses(_ context.Context, reviewID uuid.UUID) (StatusCounts, error) {
	var c StatusCounts
	for _, a := range f.assignments {
		if a.ReviewID != reviewID {
			continue
		}
		c.Total++
		switch a.Status {
		case AssignmentRetracted:
			c.Retracted++
			continue
		case AssignmentCompleted:
			c.Completed++
		}
		if a.Status != AssignmentAssigned {
			c.Touched++
		}
	}
	return c, nil
}

func (f *fakeTx) UpdateAssignmentStatus(_ context.Context, id uuid.UUID, status AssignmentStatus, at time.Time) error {
	f.assignments[id].Status = status
	f.assignments[id].UpdatedAt = at
	return nil
}

func (f *fakeTx) UpdateReviewStatus(_ context.Context, id uuid.UUID, status ReviewStatus, at time.Time) error {
	f.reviews[id].Status = status
	f.reviews[id].UpdatedAt = at
	return nil
}

func (f *fakeTx) AppendAssignmentHistory(_ context.Context, e HistoryEntry) error {
	f.assignmentHistory = append(f.assignmentHistory, e)
	return nil
}

func (f *fakeTx) AppendReviewHistory(_ context.Context, e HistoryEntry) error {
	f.reviewHistory = append(f.reviewHistory, e)
	return nil
}

var fixedNow = func() time.Time {
	return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
}
