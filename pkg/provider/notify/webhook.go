package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultWebhookTimeout = 10 * time.Second

// Payload types posted to the webhook.
const (
	PayloadSummary  = "run_summary"
	PayloadFailures = "test_failures"
)

// WebhookPayload is the JSON document posted per notification.
type WebhookPayload struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Subject    string              `json:"subject"`
	Severity   provider.Severity   `json:"severity"`
	Recipients []string            `json:"recipients"`
	Text       string              `json:"text"`
	Summary    *summary.RunSummary `json:"summary,omitempty"`
	Failures   []summary.Failure   `json:"failures,omitempty"`
}

// Webhook posts notifications as JSON.
type Webhook struct {
	log  logrus.FieldLogger
	cfg  config.WebhookSettings
	http *http.Client
}

var _ provider.NotificationProvider = (*Webhook)(nil)

// NewWebhook creates a webhook notifier from validated settings.
func NewWebhook(log logrus.FieldLogger, cfg *config.WebhookSettings) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	return &Webhook{
		log:  log.WithField("component", "notify-webhook"),
		cfg:  *cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// SendTestSummary posts the run summary.
func (w *Webhook) SendTestSummary(
	ctx context.Context, s *summary.RunSummary, opts provider.NotificationOptions,
) (*provider.NotificationResult, error) {
	text, err := renderSummary(s)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "send summary", err)
	}

	return w.post(ctx, "send summary", WebhookPayload{
		Type:    PayloadSummary,
		Text:    text,
		Summary: s,
	}, opts)
}

// SendTestFailures posts the failure list.
func (w *Webhook) SendTestFailures(
	ctx context.Context, failures []summary.Failure, opts provider.NotificationOptions,
) (*provider.NotificationResult, error) {
	text, err := renderFailures(failures)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "send failures", err)
	}

	return w.post(ctx, "send failures", WebhookPayload{
		Type:     PayloadFailures,
		Text:     text,
		Failures: failures,
	}, opts)
}

func (w *Webhook) post(
	ctx context.Context, op string, payload WebhookPayload, opts provider.NotificationOptions,
) (*provider.NotificationResult, error) {
	payload.ID = uuid.NewString()
	payload.Subject = opts.Subject
	payload.Severity = opts.Severity
	payload.Recipients = opts.Recipients

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, op, fmt.Errorf("encoding payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return nil, provider.NewError(provider.KindConfiguration, op, fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, provider.NewError(provider.KindTransient, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, provider.NewError(
			provider.KindForStatus(resp.StatusCode), op,
			fmt.Errorf("webhook returned %d", resp.StatusCode),
		)
	}

	w.log.WithFields(logrus.Fields{
		"type":     payload.Type,
		"severity": payload.Severity,
	}).Info("Webhook notification sent")

	return &provider.NotificationResult{
		ID:     payload.ID,
		Sent:   true,
		Detail: resp.Status,
	}, nil
}
