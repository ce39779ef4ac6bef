package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// CalendarChannel places an all-day reminder event on the reviewer's
// calendar. Event ids are derived from the batch so a re-run updates the
// existing event instead of creating a second one.
type CalendarChannel struct {
	svc        *calendar.Service
	calendarID string
}

// NewCalendarChannel creates a calendar channel writing to calendarID.
func NewCalendarChannel(ctx context.Context, calendarID string, opts ...option.ClientOption) (*CalendarChannel, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	opts = append([]option.ClientOption{option.WithScopes(calendar.CalendarEventsScope)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &CalendarChannel{svc: svc, calendarID: calendarID}, nil
}

// Type implements Channel.
func (c *CalendarChannel) Type() CommunicationType {
	return TypeCalendarEvent
}

// Deliver implements Channel.
func (c *CalendarChannel) Deliver(ctx context.Context, b Batch) error {
	event := buildEvent(b)

	_, err := c.svc.Events.Insert(c.calendarID, event).SendUpdates("all").Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusConflict {
		return fmt.Errorf("failed to create calendar event for %s: %w", b.Reviewer, err)
	}

	if _, err := c.svc.Events.Update(c.calendarID, event.Id, event).SendUpdates("all").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update calendar event for %s: %w", b.Reviewer, err)
	}
	return nil
}

func buildEvent(b Batch) *calendar.Event {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}

	// The event sits on the earliest deadline, or today for overdue work.
	day := b.Day
	for i, a := range b.Assignments {
		d := DayOf(a.Deadline, loc)
		if i == 0 || d.Before(day) {
			day = d
		}
	}
	if day.Before(b.Day) {
		day = b.Day
	}

	reviewees := make([]string, 0, len(b.Assignments))
	for _, a := range b.Assignments {
		reviewees = append(reviewees, a.Reviewee)
	}

	return &calendar.Event{
		Id:           b.DeliveryID(),
		Summary:      fmt.Sprintf("%s: %d feedback request(s)", subjectByPass[b.Pass], len(b.Assignments)),
		Description:  "Feedback requested for " + strings.Join(reviewees, ", "),
		Start:        &calendar.EventDateTime{Date: day.Format(time.DateOnly)},
		End:          &calendar.EventDateTime{Date: day.AddDate(0, 0, 1).Format(time.DateOnly)},
		Attendees:    []*calendar.EventAttendee{{Email: b.Reviewer}},
		Transparency: "transparent",
	}
}
