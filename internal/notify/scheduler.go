package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config controls the reminder passes.
type Config struct {
	// DueSoonDays is how many days ahead of today the due-soon pass looks.
	DueSoonDays int
	// OverdueWeekday is the only weekday the overdue pass sends on.
	OverdueWeekday time.Weekday
	// Location defines calendar days.
	Location *time.Location
	// Concurrency bounds how many batches are delivered at once.
	Concurrency int
}

// Failure describes one batch that could not be delivered or logged.
type Failure struct {
	Reviewer      string            `json:"reviewer"`
	Channel       CommunicationType `json:"channel"`
	AssignmentIDs []uuid.UUID       `json:"assignment_ids"`
	Error         string            `json:"error"`
}

// Report summarizes one pass. Counts are per assignment and channel.
type Report struct {
	Pass        Pass      `json:"pass"`
	Day         string    `json:"day"`
	Sent        int       `json:"sent"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Failures    []Failure `json:"failures"`
	SkippedPass bool      `json:"skipped_pass"`
	Reason      string    `json:"reason,omitempty"`
}

// Scheduler runs the reminder passes. It only reads committed state and
// never blocks reviewer submissions.
type Scheduler struct {
	source   Source
	log      CommunicationLog
	channels []Channel
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithSchedulerClock sets the scheduler clock.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler delivering through channels.
func NewScheduler(source Source, log CommunicationLog, channels []Channel, cfg Config, opts ...SchedulerOption) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.DueSoonDays < 0 {
		cfg.DueSoonDays = 0
	}
	s := &Scheduler{
		source:   source,
		log:      log,
		channels: channels,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunDueSoon reminds reviewers whose open assignments are due between
// today and DueSoonDays from now, inclusive.
func (s *Scheduler) RunDueSoon(ctx context.Context) (*Report, error) {
	today := DayOf(s.now(), s.cfg.Location)
	from := startOfDay(today, s.cfg.Location)
	to := startOfDay(today.AddDate(0, 0, s.cfg.DueSoonDays+1), s.cfg.Location).Add(-time.Microsecond)

	pending, err := s.source.ListOpenAssignmentsDueBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments due soon: %w", err)
	}
	return s.run(ctx, PassDueSoon, ReasonSystemNudge, today, pending), nil
}

// RunOverdue reminds reviewers whose open assignments were due before
// today. It only sends on the configured weekday.
func (s *Scheduler) RunOverdue(ctx context.Context) (*Report, error) {
	today := DayOf(s.now(), s.cfg.Location)
	if today.Weekday() != s.cfg.OverdueWeekday {
		return &Report{
			Pass:        PassOverdue,
			Day:         today.Format(time.DateOnly),
			Failures:    []Failure{},
			SkippedPass: true,
			Reason:      fmt.Sprintf("overdue reminders are only sent on %s", s.cfg.OverdueWeekday),
		}, nil
	}

	pending, err := s.source.ListOpenAssignmentsDueBefore(ctx, startOfDay(today, s.cfg.Location))
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue assignments: %w", err)
	}
	return s.run(ctx, PassOverdue, ReasonSystemNudge, today, pending), nil
}

// NudgeReview reminds every reviewer with an open assignment on one
// review. Manual nudges are logged but never deduplicated.
func (s *Scheduler) NudgeReview(ctx context.Context, reviewID uuid.UUID, actor string) (*Report, error) {
	today := DayOf(s.now(), s.cfg.Location)
	pending, err := s.source.ListOpenAssignmentsForReview(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments of review %s: %w", reviewID, err)
	}
	s.logger.Info("manual nudge requested", "review_id", reviewID, "by", actor, "assignments", len(pending))
	return s.run(ctx, PassManual, ReasonManualBulkNudge, today, pending), nil
}

type tally struct {
	mu     sync.Mutex
	report *Report
}

func (t *tally) add(sent, skipped, failed int, f *Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Sent += sent
	t.report.Skipped += skipped
	t.report.Failed += failed
	if f != nil {
		t.report.Failures = append(t.report.Failures, *f)
	}
}

func (s *Scheduler) run(ctx context.Context, pass Pass, reason Reason, day time.Time, pending []PendingAssignment) *Report {
	t := &tally{report: &Report{Pass: pass, Day: day.Format(time.DateOnly), Failures: []Failure{}}}

	var batches []Batch
	for _, ch := range s.channels {
		batches = append(batches, s.plan(ctx, t, ch.Type(), pass, reason, day, pending)...)
	}

	channels := make(map[CommunicationType]Channel, len(s.channels))
	for _, ch := range s.channels {
		channels[ch.Type()] = ch
	}

	// Tasks never return an error so one failing batch cannot cancel the
	// others.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, b := range batches {
		g.Go(func() error {
			s.deliver(gctx, t, channels[b.Type], b, reason)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(t.report.Failures, func(i, j int) bool {
		a, b := t.report.Failures[i], t.report.Failures[j]
		if a.Reviewer != b.Reviewer {
			return a.Reviewer < b.Reviewer
		}
		return a.Channel < b.Channel
	})

	s.logger.Info("reminder pass finished",
		"pass", pass,
		"day", t.report.Day,
		"sent", t.report.Sent,
		"skipped", t.report.Skipped,
		"failed", t.report.Failed)
	return t.report
}

// plan drops assignments already reminded today on this channel and groups
// the rest by reviewer.
func (s *Scheduler) plan(ctx context.Context, t *tally, typ CommunicationType, pass Pass, reason Reason, day time.Time, pending []PendingAssignment) []Batch {
	groups := make(map[string]*Batch)
	for _, p := range pending {
		if reason == ReasonSystemNudge {
			sent, err := s.log.HasCommunication(ctx, p.AssignmentID, day, typ)
			if err != nil {
				s.logger.Warn("failed to check communication log",
					"assignment_id", p.AssignmentID, "channel", typ, "error", err)
				t.add(0, 0, 1, &Failure{
					Reviewer:      strings.ToLower(p.Reviewer),
					Channel:       typ,
					AssignmentIDs: []uuid.UUID{p.AssignmentID},
					Error:         err.Error(),
				})
				continue
			}
			if sent {
				t.add(0, 1, 0, nil)
				continue
			}
		}

		key := strings.ToLower(strings.TrimSpace(p.Reviewer))
		b, ok := groups[key]
		if !ok {
			b = &Batch{
				Pass:         pass,
				Type:         typ,
				Day:          day,
				Location:     s.cfg.Location,
				Reviewer:     key,
				ReviewerName: p.ReviewerName,
			}
			groups[key] = b
		}
		b.Assignments = append(b.Assignments, p)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Batch, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	return out
}

func (s *Scheduler) deliver(ctx context.Context, t *tally, ch Channel, b Batch, reason Reason) {
	if err := ch.Deliver(ctx, b); err != nil {
		s.logger.Warn("failed to deliver reminder",
			"reviewer", b.Reviewer, "channel", b.Type, "assignments", len(b.Assignments), "error", err)
		t.add(0, 0, len(b.Assignments), &Failure{
			Reviewer:      b.Reviewer,
			Channel:       b.Type,
			AssignmentIDs: b.AssignmentIDs(),
			Error:         err.Error(),
		})
		return
	}

	// The send already happened; a logging failure means the reminder may
	// be sent again on the next run.
	var failedIDs []uuid.UUID
	var lastErr error
	sent, skipped := 0, 0
	for _, a := range b.Assignments {
		inserted, err := s.log.RecordCommunication(ctx, CommunicationRecord{
			AssignmentID:   a.AssignmentID,
			Day:            b.Day,
			Type:           b.Type,
			Reason:         reason,
			IdempotencyKey: IdempotencyKey(a.AssignmentID, b.Day, b.Type),
			CreatedAt:      s.now().UTC(),
		})
		switch {
		case err != nil:
			failedIDs = append(failedIDs, a.AssignmentID)
			lastErr = err
		case inserted:
			sent++
		default:
			skipped++
		}
	}

	var f *Failure
	if len(failedIDs) > 0 {
		s.logger.Warn("failed to record reminder", "reviewer", b.Reviewer, "channel", b.Type, "error", lastErr)
		f = &Failure{
			Reviewer:      b.Reviewer,
			Channel:       b.Type,
			AssignmentIDs: failedIDs,
			Error:         fmt.Sprintf("delivered but not recorded: %v", lastErr),
		}
	}
	t.add(sent, skipped, len(failedIDs), f)
}
