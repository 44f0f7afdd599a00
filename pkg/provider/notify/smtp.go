package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends notifications over SMTP.
type Email struct {
	log  logrus.FieldLogger
	cfg  config.SMTPSettings
	send sendFunc
	now  func() time.Time
}

var _ provider.NotificationProvider = (*Email)(nil)

// NewEmail creates an SMTP notifier from validated settings.
func NewEmail(log logrus.FieldLogger, cfg *config.SMTPSettings) *Email {
	return &Email{
		log:  log.WithField("component", "notify-smtp"),
		cfg:  *cfg,
		send: smtp.SendMail,
		now:  time.Now,
	}
}

// SendTestSummary emails the run summary.
func (e *Email) SendTestSummary(
	ctx context.Context, s *summary.RunSummary, opts provider.NotificationOptions,
) (*provider.NotificationResult, error) {
	body, err := renderSummary(s)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "send summary", err)
	}

	return e.deliver(ctx, "send summary", opts, body)
}

// SendTestFailures emails the failure list.
func (e *Email) SendTestFailures(
	ctx context.Context, failures []summary.Failure, opts provider.NotificationOptions,
) (*provider.NotificationResult, error) {
	body, err := renderFailures(failures)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "send failures", err)
	}

	return e.deliver(ctx, "send failures", opts, body)
}

func (e *Email) deliver(
	ctx context.Context, op string, opts provider.NotificationOptions, body string,
) (*provider.NotificationResult, error) {
	if len(opts.Recipients) == 0 {
		return nil, provider.NewError(provider.KindConfiguration, op, errors.New("no recipients"))
	}

	if err := ctx.Err(); err != nil {
		return nil, provider.NewError(provider.KindTransient, op, err)
	}

	id := uuid.NewString()
	msg := e.message(id, opts, body)

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))

	if err := e.send(addr, auth, e.cfg.From, opts.Recipients, msg); err != nil {
		return nil, provider.NewError(smtpKind(err), op, err)
	}

	e.log.WithFields(logrus.Fields{
		"recipients": len(opts.Recipients),
		"severity":   opts.Severity,
	}).Info("Email sent")

	return &provider.NotificationResult{ID: id, Sent: true}, nil
}

func (e *Email) message(id string, opts provider.NotificationOptions, body string) []byte {
	var b strings.Builder

	b.WriteString("From: " + e.cfg.From + "\r\n")
	b.WriteString("To: " + strings.Join(opts.Recipients, ", ") + "\r\n")
	b.WriteString("Subject: " + opts.Subject + "\r\n")
	b.WriteString("Date: " + e.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString(fmt.Sprintf("Message-ID: <%s@reportoor>\r\n", id))
	b.WriteString("X-Priority: " + priorityHeader(opts.Severity) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(b.String())
}

func priorityHeader(s provider.Severity) string {
	switch s {
	case provider.SeverityError:
		return "1"
	case provider.SeverityWarning:
		return "2"
	default:
		return "3"
	}
}

// smtpKind maps SMTP reply codes: 534/535 are auth failures, 4xx are
// temporary, other 5xx are permanent. Connection errors are transient.
func smtpKind(err error) provider.ErrorKind {
	var reply *textproto.Error
	if !errors.As(err, &reply) {
		return provider.KindTransient
	}

	switch {
	case reply.Code == 534, reply.Code == 535:
		return provider.KindAuth
	case reply.Code >= 500:
		return provider.KindPermanent
	default:
		return provider.KindTransient
	}
}
