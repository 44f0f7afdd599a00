// Package pipeline runs the best-effort post-run channels: fix
// suggestions, pull request automation, bug filing, result publishing and
// notifications.
package pipeline

import (
	"context"
	"time"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/record"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config for the orchestrator.
type Config struct {
	OutputDir  string
	Owner      *fsutil.OwnerConfig
	SourceRoot string
	Pipeline   config.PipelineConfig
}

// Input is the frozen run data the pipeline works on.
type Input struct {
	Summary *summary.RunSummary
	Records []*record.TestRecord
}

// Recorder observes channel outcomes, e.g. for metrics.
type Recorder interface {
	ChannelItem(channel string, ok bool)
	ChannelState(channel, state string)
}

// Orchestrator drives the channels in a fixed order. A channel failure is
// never fatal to the run or to later channels.
type Orchestrator struct {
	log       logrus.FieldLogger
	cfg       Config
	providers *provider.Set
	recorder  Recorder
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a Recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithClock overrides the clock used for branch names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator. providers may hold nil
// collaborators; enabled channels without one fail with a hint.
func NewOrchestrator(log logrus.FieldLogger, cfg Config, providers *provider.Set, opts ...Option) *Orchestrator {
	if providers == nil {
		providers = &provider.Set{}
	}

	o := &Orchestrator{
		log:       log.WithField("component", "pipeline"),
		cfg:       cfg,
		providers: providers,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// run holds the per-invocation state shared by the channels.
type run struct {
	in     Input
	report *Report
	fix    *ChannelReport
	pr     *ChannelReport
	bug    *ChannelReport
	db     *ChannelReport
	notify *ChannelReport
}

// Run executes every channel once over in. It detaches from ctx
// cancellation so a started channel runs each item to completion.
func (o *Orchestrator) Run(ctx context.Context, in Input) *Report {
	ctx = context.WithoutCancel(ctx)

	p := o.cfg.Pipeline

	r := &run{
		in:     in,
		fix:    newChannelReport(ChannelFixSuggestion, p.GenerateFix),
		pr:     newChannelReport(ChannelPRAutomation, p.GeneratePR),
		bug:    newChannelReport(ChannelBugFiling, p.CreateBug),
		db:     newChannelReport(ChannelDBPublish, p.PublishToDB),
		notify: newChannelReport(ChannelNotification, p.SendEmail),
	}

	r.report = &Report{
		Channels: []*ChannelReport{r.fix, r.pr, r.bug, r.db, r.notify},
	}

	o.log.WithFields(logrus.Fields{
		"failures": len(in.Summary.Failures),
		"tests":    in.Summary.TestCount,
	}).Info("Running post-run pipeline")

	o.runFixSuggestions(ctx, r)
	o.runBugFiling(ctx, r)
	o.runDBPublish(ctx, r)
	o.runNotification(ctx, r)

	for _, c := range r.report.Channels {
		c.finish()

		if o.recorder != nil {
			o.recorder.ChannelState(string(c.Channel), string(c.State))
		}

		o.log.WithFields(logrus.Fields{
			"channel":   c.Channel,
			"state":     c.State,
			"succeeded": c.Succeeded,
			"failed":    c.Failed,
		}).Debug("Channel finished")
	}

	return r.report
}

func (o *Orchestrator) skip(c *ChannelReport) {
	o.log.WithField("channel", c.Channel).Info("Channel disabled, skipping")
}

func (o *Orchestrator) itemOK(c *ChannelReport) {
	c.Succeeded++

	if o.recorder != nil {
		o.recorder.ChannelItem(string(c.Channel), true)
	}
}

// itemFailed records err against item and reports whether the remaining
// items of the channel must be abandoned.
func (o *Orchestrator) itemFailed(c *ChannelReport, item string, err error) bool {
	kind := provider.KindOf(err)

	o.log.WithFields(logrus.Fields{
		"channel": c.Channel,
		"item":    item,
		"kind":    kind,
	}).WithError(err).Warn("Channel item failed")

	c.itemFailed(item, err)

	if o.recorder != nil {
		o.recorder.ChannelItem(string(c.Channel), false)
	}

	if kind.AbortsChannel() {
		c.Aborted = true

		o.log.WithFields(logrus.Fields{
			"channel": c.Channel,
			"kind":    kind,
		}).Error("Aborting channel")

		return true
	}

	return false
}

func (o *Orchestrator) misconfigured(c *ChannelReport, hint string, err error) {
	o.log.WithFields(logrus.Fields{
		"channel": c.Channel,
		"hint":    hint,
	}).WithError(err).Warn("Channel is enabled but not configured")

	c.misconfigured(hint, err)
}

// newLimiter returns nil when rate limiting is disabled.
func newLimiter(rl config.RateLimitConfig) *rate.Limiter {
	if rl.RequestsPerMinute <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.RequestsPerMinute)), 1)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}

	if err := l.Wait(ctx); err != nil {
		return provider.NewError(provider.KindTransient, "rate limit", err)
	}

	return nil
}
