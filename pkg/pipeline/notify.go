package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
)

// warningSkippedRatio is the skipped fraction above which a run without
// failures is reported as a warning.
const warningSkippedRatio = 0.2

var errNoRecipients = errors.New("no notification recipients")

// Severity grades a run for notifications.
func Severity(s *summary.RunSummary) provider.Severity {
	switch {
	case len(s.Failures) > 0:
		return provider.SeverityError
	case s.SkippedRatio() > warningSkippedRatio:
		return provider.SeverityWarning
	default:
		return provider.SeverityInfo
	}
}

func (o *Orchestrator) runNotification(ctx context.Context, r *run) {
	if !r.notify.Enabled() {
		o.skip(r.notify)

		return
	}

	if o.providers.Notification == nil {
		o.misconfigured(r.notify, "configure providers.notification", provider.ErrNotConfigured)

		return
	}

	cfg := o.cfg.Pipeline.Notification
	if len(cfg.Recipients) == 0 {
		o.misconfigured(r.notify, "set pipeline.notification.recipients", errNoRecipients)

		return
	}

	r.notify.start()

	s := r.in.Summary
	limiter := newLimiter(cfg.RateLimitConfig)
	opts := provider.NotificationOptions{
		Recipients: cfg.Recipients,
		Subject:    notificationSubject(cfg.SubjectPrefix, s),
		Severity:   Severity(s),
	}

	send := func(item string, fn func() (*provider.NotificationResult, error)) bool {
		r.notify.Attempted++

		if err := wait(ctx, limiter); err != nil {
			return o.itemFailed(r.notify, item, err)
		}

		res, err := fn()
		if err != nil {
			return o.itemFailed(r.notify, item, err)
		}

		r.report.Notifications = append(r.report.Notifications, res)
		o.itemOK(r.notify)

		return false
	}

	aborted := send("summary", func() (*provider.NotificationResult, error) {
		return o.providers.Notification.SendTestSummary(ctx, s, opts)
	})

	if len(s.Failures) == 0 {
		return
	}

	if aborted {
		r.notify.Skipped++

		return
	}

	failureOpts := opts
	failureOpts.Subject = opts.Subject + " (failures)"

	send("failures", func() (*provider.NotificationResult, error) {
		return o.providers.Notification.SendTestFailures(ctx, s.Failures, failureOpts)
	})
}

func notificationSubject(prefix string, s *summary.RunSummary) string {
	status := "Passed"
	if s.HasErrors() {
		status = "Failed"
	}

	subject := fmt.Sprintf("%s: %d passed, %d failed, %d skipped", status, s.PassedCount, s.FailedCount, s.SkippedCount)
	if prefix != "" {
		subject = prefix + " " + subject
	}

	return subject
}
