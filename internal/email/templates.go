package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type followUpReminderEmailData struct {
	baseEmailData
	LeadName    string
	Message     string
	ScheduledAt string
}

func newFollowUpReminderData(r FollowUpReminder) followUpReminderEmailData {
	return followUpReminderEmailData{
		baseEmailData: baseEmailData{
			Title:      "Follow-up reminder",
			Heading:    r.Title,
			Subheading: "A scheduled follow-up is due.",
		},
		LeadName:    r.LeadName,
		Message:     r.Message,
		ScheduledAt: r.ScheduledAt.UTC().Format(time.RFC1123),
	}
}

func followUpReminderText(d followUpReminderEmailData) string {
	text := d.Heading + "\n\n"
	if d.LeadName != "" {
		text += "Lead: " + d.LeadName + "\n"
	}
	text += "Scheduled: " + d.ScheduledAt + "\n\n" + d.Message + "\n"
	return text
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
