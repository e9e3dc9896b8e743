package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// EventDetails is the data rendered into event emails.
type EventDetails struct {
	RecipientName string
	EventTitle    string
	Location      string
	StartDate     time.Time
	Link          string
}

// When formats the start date for display.
func (d EventDetails) When() string {
	return d.StartDate.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
}

var approvedTmpl = template.Must(template.New("approved").Parse(`<p>Hi {{.RecipientName}},</p>
<p>Your enrollment for <strong>{{.EventTitle}}</strong> has been approved.</p>
<p>When: {{.When}}{{if .Location}}<br/>Where: {{.Location}}{{end}}</p>
<p><a href="{{.Link}}">View event</a></p>`))

var reminderTmpl = template.Must(template.New("reminder").Parse(`<p>Hi {{.RecipientName}},</p>
<p><strong>{{.EventTitle}}</strong> starts in {{.Window}}.</p>
<p>When: {{.When}}{{if .Location}}<br/>Where: {{.Location}}{{end}}</p>
<p><a href="{{.Link}}">View event</a></p>`))

// ApprovedEmail renders the enrollment approval email.
func ApprovedEmail(d EventDetails) (subject, html string, err error) {
	var buf bytes.Buffer
	if err := approvedTmpl.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("render approved email: %w", err)
	}
	return "You're in: " + d.EventTitle, buf.String(), nil
}

// ReminderEmail renders a reminder for the given window label, e.g. "1 hour".
func ReminderEmail(d EventDetails, window string) (subject, html string, err error) {
	var buf bytes.Buffer
	data := struct {
		EventDetails
		Window string
	}{d, window}
	if err := reminderTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render reminder email: %w", err)
	}
	return fmt.Sprintf("Reminder: %s starts in %s", d.EventTitle, window), buf.String(), nil
}

// EventLink builds the public URL of an event.
func EventLink(baseURL, slug string) string {
	return baseURL + "/events/" + slug
}
