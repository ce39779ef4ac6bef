package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailChannel sends reminder emails through the Gmail API.
type GmailChannel struct {
	svc      *gmail.Service
	from     string
	renderer *Renderer
}

// NewGmailChannel creates an email channel sending as from. Client options
// carry credentials, or an endpoint in tests.
func NewGmailChannel(ctx context.Context, from string, renderer *Renderer, opts ...option.ClientOption) (*GmailChannel, error) {
	opts = append([]option.ClientOption{option.WithScopes(gmail.GmailSendScope)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &GmailChannel{svc: svc, from: from, renderer: renderer}, nil
}

// Type implements Channel.
func (c *GmailChannel) Type() CommunicationType {
	return TypeReviewerEmail
}

// Deliver implements Channel.
func (c *GmailChannel) Deliver(ctx context.Context, b Batch) error {
	msg, err := c.renderer.Render(b)
	if err != nil {
		return err
	}
	raw, err := buildMIME(c.from, b.Reviewer, b.DeliveryID(), msg)
	if err != nil {
		return err
	}

	_, err = c.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", b.Reviewer, err)
	}
	return nil
}

func buildMIME(from, to, messageID string, msg *Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("failed to build email part: %w", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("failed to write email part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close email body: %w", err)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", from)
	fmt.Fprintf(&out, "To: %s\r\n", to)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&out, "X-Entity-Ref-ID: %s\r\n", messageID)
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
