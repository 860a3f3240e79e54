package mailer

import (
	"fmt"
	"strings"

	mailtpl "github.com/swordot/portal/pkg/mailer/templates"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Either Template (+Data) or Subject with Text/HTML must be set.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // e.g. "welcome_account"
	Data     map[string]any `json:"data,omitempty"`
}

// SubjectFor picks a fallback subject when the job carries none.
func SubjectFor(job EmailJob) string {
	if s := strings.TrimSpace(job.Subject); s != "" {
		return s
	}
	switch strings.ToLower(job.Template) {
	case mailtpl.WelcomeAccount:
		return "Welcome to your new account"
	default:
		return "Notification"
	}
}

// EnsureRecipient fills the recipient field templates expect from job.To.
func EnsureRecipient(job *EmailJob) {
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	if v, ok := job.Data["Email"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["Email"] = job.To
	}
}
