package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/pkg/mailer"
)

type outcome int

const (
	ack outcome = iota
	drop
	requeue
)

const sendTimeout = 15 * time.Second

// handle delivers one queued job. Malformed or unrenderable jobs are dropped; send
// failures are requeued.
func handle(ctx context.Context, logger *logrus.Logger, sender mailer.Sender, body []byte) outcome {
	var job mailer.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		logger.WithError(err).Warn("bad message")
		return drop
	}
	if job.To == "" {
		logger.Warn("message without recipient")
		return drop
	}

	c, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	err := mailer.Deliver(c, sender, job)
	var renderErr *mailer.RenderError
	switch {
	case err == nil:
		logger.WithFields(logrus.Fields{"to": job.To, "template": job.Template}).Info("email sent")
		return ack
	case errors.As(err, &renderErr), errors.Is(err, mailer.ErrEmptyJob):
		logger.WithError(err).WithField("template", job.Template).Warn("undeliverable job dropped")
		return drop
	default:
		logger.WithError(err).WithField("to", job.To).Warn("send failed")
		return requeue
	}
}
