package notify

import (
	"context"
	"log/slog"
)

// LogChannel writes batches to the log instead of sending them. It is used
// for local development.
type LogChannel struct {
	typ      CommunicationType
	logger   *slog.Logger
	renderer *Renderer
}

// NewLogChannel creates a log-only channel for typ. renderer may be nil.
func NewLogChannel(typ CommunicationType, logger *slog.Logger, renderer *Renderer) *LogChannel {
	return &LogChannel{typ: typ, logger: logger, renderer: renderer}
}

// Type implements Channel.
func (c *LogChannel) Type() CommunicationType {
	return c.typ
}

// Deliver implements Channel.
func (c *LogChannel) Deliver(_ context.Context, b Batch) error {
	attrs := []any{
		"channel", c.typ,
		"pass", b.Pass,
		"reviewer", b.Reviewer,
		"assignments", len(b.Assignments),
		"delivery_id", b.DeliveryID(),
	}
	if c.renderer != nil {
		msg, err := c.renderer.Render(b)
		if err != nil {
			return err
		}
		attrs = append(attrs, "subject", msg.Subject, "body", msg.Text)
	}
	c.logger.Info("reminder delivered", attrs...)
	return nil
}
