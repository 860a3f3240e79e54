package mailer

import (
	"context"
	"errors"
	"fmt"

	mailtpl "github.com/swordot/portal/pkg/mailer/templates"
)

// ErrEmptyJob is returned for jobs with neither a template nor a body.
var ErrEmptyJob = errors.New("mailer: job has no template and no body")

// RenderError marks a job that can never be delivered; the worker drops it instead of requeueing.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render %s: %v", e.Template, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

// Deliver renders the job (if templated) and hands it to the sender.
func Deliver(ctx context.Context, s Sender, job EmailJob) error {
	EnsureRecipient(&job)

	subject, text, html := job.Subject, job.Text, job.HTML
	if job.Template != "" {
		rs, rt, rh, err := mailtpl.Render(job.Template, job.Data)
		if err != nil {
			return &RenderError{Template: job.Template, Err: err}
		}
		subject, text, html = rs, rt, rh
	} else if text == "" && html == "" {
		return ErrEmptyJob
	}
	if subject == "" {
		subject = SubjectFor(job)
	}
	return s.Send(ctx, job.To, subject, text, html)
}
