package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const emailTemplate = `<!DOCTYPE html>
<html>
<body>
<p>Hi {{.Name}},</p>
<p>{{.Intro}}</p>
<ul>
{{- range .Items}}
<li>{{.Reviewee}} ({{.Template}}), due {{.Due}}</li>
{{- end}}
</ul>
{{- if .Link}}
<p><a href="{{.Link}}">Open your feedback requests</a></p>
{{- end}}
<p>Thank you.</p>
</body>
</html>`

var introByPass = map[Pass]string{
	PassDueSoon: "The following feedback requests are due soon:",
	PassOverdue: "The following feedback requests are past their deadline:",
	PassManual:  "You have been reminded about the following feedback requests:",
}

var subjectByPass = map[Pass]string{
	PassDueSoon: "Feedback due soon",
	PassOverdue: "Overdue feedback",
	PassManual:  "Reminder: feedback requested",
}

// Message is a rendered reminder email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer renders reminder emails for batches.
type Renderer struct {
	tmpl *template.Template
	// Link is included in every email when set.
	Link string
}

// NewRenderer parses the email template.
func NewRenderer(link string) (*Renderer, error) {
	tmpl, err := template.New("reminder").Parse(emailTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email template: %w", err)
	}
	return &Renderer{tmpl: tmpl, Link: link}, nil
}

type emailItem struct {
	Reviewee string
	Template string
	Due      string
}

// Render renders the email for a batch. The plain-text part is derived
// from the HTML.
func (r *Renderer) Render(b Batch) (*Message, error) {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	items := make([]emailItem, 0, len(b.Assignments))
	for _, a := range b.Assignments {
		items = append(items, emailItem{
			Reviewee: a.Reviewee,
			Template: a.TemplateName,
			Due:      a.Deadline.In(loc).Format("Mon Jan 2"),
		})
	}
	name := b.ReviewerName
	if name == "" {
		name = b.Reviewer
	}

	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, map[string]any{
		"Name":  name,
		"Intro": introByPass[b.Pass],
		"Items": items,
		"Link":  r.Link,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}

	text, err := plainText(buf.String())
	if err != nil {
		return nil, err
	}
	return &Message{Subject: subject(b), HTML: buf.String(), Text: text}, nil
}

func subject(b Batch) string {
	if len(b.Assignments) == 1 && b.Assignments[0].EmailSubject != "" {
		return b.Assignments[0].EmailSubject
	}
	return fmt.Sprintf("%s (%d)", subjectByPass[b.Pass], len(b.Assignments))
}

func plainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered email: %w", err)
	}

	var lines []string
	doc.Find("p, li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(sel) == "li" {
			text = "- " + text
		}
		if href, ok := sel.Find("a").Attr("href"); ok {
			text += ": " + href
		}
		lines = append(lines, text)
	})
	return strings.Join(lines, "\n"), nil
}
