package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethpandaops/reportoor/pkg/buildinfo"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/engine"
	"github.com/ethpandaops/reportoor/pkg/exitcodes"
	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/metrics"
	"github.com/ethpandaops/reportoor/pkg/pipeline"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/provider/registry"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/ethpandaops/reportoor/pkg/upload"
	"github.com/sirupsen/logrus"
)

var metadataLabels []string

// observer bundles everything one observed run needs.
type observer struct {
	cfg       *config.Config
	engine    *engine.Engine
	metrics   *metrics.Metrics
	providers *provider.Set
	uploader  upload.Uploader
}

// loadConfig loads the config file and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if logLevel == "" {
		if err := setLogLevel(cfg.Global.LogLevel); err != nil {
			return nil, err
		}
	}

	// CLI labels win on conflict.
	for _, entry := range metadataLabels {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata label %q: must be key=value", entry)
		}

		if cfg.Report.Labels == nil {
			cfg.Report.Labels = make(map[string]string, len(metadataLabels))
		}

		cfg.Report.Labels[k] = v
	}

	return cfg, nil
}

// newObserver builds the providers, pipeline and engine for one run. The
// S3 uploader is checked up front so a broken upload config fails before
// any event is consumed.
func newObserver(ctx context.Context, cfg *config.Config, withProcessMetrics bool) (*observer, error) {
	owner, err := fsutil.ParseOwner(cfg.Global.ResultsOwner)
	if err != nil {
		return nil, fmt.Errorf("parsing results_owner: %w", err)
	}

	if err := fsutil.MkdirAll(cfg.Global.OutputDir, owner); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	o := &observer{
		cfg:     cfg,
		metrics: metrics.New(withProcessMetrics),
	}

	if cfg.Upload.S3.Enabled {
		uploader, err := upload.NewS3Uploader(log, &cfg.Upload.S3)
		if err != nil {
			return nil, fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := uploader.Preflight(ctx); err != nil {
			return nil, fmt.Errorf("S3 preflight check: %w", err)
		}

		o.uploader = uploader
	}

	providers, err := registry.Build(ctx, log, &cfg.Providers)
	if err != nil {
		return nil, fmt.Errorf("building providers: %w", err)
	}

	o.providers = providers

	orchestrator := pipeline.NewOrchestrator(log, pipeline.Config{
		OutputDir:  cfg.Global.OutputDir,
		Owner:      owner,
		SourceRoot: cfg.Report.SourceRoot,
		Pipeline:   cfg.Pipeline,
	}, providers, pipeline.WithRecorder(o.metrics))

	builder := &summary.Builder{
		Calculator: summary.Calculator{
			MaxSlowTests:  cfg.Report.MaxSlowTestsToShow,
			SlowThreshold: cfg.Report.SlowThreshold(),
		},
		BuildInfo: buildinfo.NewCollector(log, buildinfo.Config{
			Labels:      cfg.Report.Labels,
			CollectHost: cfg.Report.CollectHostInfo,
		}),
	}

	o.engine = engine.New(log, engine.Config{
		OutputDir:        cfg.Global.OutputDir,
		Owner:            owner,
		MarkdownMaxChars: cfg.Report.MarkdownMaxChars,
	}, builder, orchestrator, engine.WithRecorder(o.metrics))

	return o, nil
}

// finish finalizes the run, prints the console report and exports the
// results. It returns the process exit code.
func (o *observer) finish(ctx context.Context) int {
	defer func() {
		if err := o.providers.Close(); err != nil {
			log.WithError(err).Warn("Failed to close providers")
		}
	}()

	res, err := o.engine.Finish(ctx)
	if res == nil {
		log.WithError(err).Error("Failed to finish run")

		return exitcodes.RuntimeErr
	}

	if err := report.Console(os.Stdout, res.ReportInput(), o.cfg.Global.ShowStackTraces); err != nil {
		log.WithError(err).Warn("Failed to print console report")
	}

	if path := o.cfg.Global.MetricsTextfile; path != "" {
		if err := o.metrics.WriteTextfile(path); err != nil {
			log.WithError(err).Warn("Failed to write metrics textfile")
		}
	}

	if o.uploader != nil {
		runName := upload.RunName(runStart(res), buildID(res))

		log.WithFields(logrus.Fields{
			"dir": o.cfg.Global.OutputDir,
			"run": runName,
		}).Info("Uploading run artifacts")

		if err := o.uploader.Upload(ctx, o.cfg.Global.OutputDir, runName); err != nil {
			log.WithError(err).Error("Failed to upload run artifacts")
		}
	}

	return res.ExitCode
}

// interrupt ends a run that stopped without run end.
func (o *observer) interrupt(reason error) {
	log.WithError(reason).Warn("Run stopped without run end, treating it as interrupted")

	if err := o.engine.Interrupt(time.Now()); err != nil && !errors.Is(err, engine.ErrInvalidTransition) {
		log.WithError(err).Error("Failed to interrupt run")
	}
}

func runStart(res *engine.Result) time.Time {
	if res.Summary != nil && !res.Summary.StartedAt.IsZero() {
		return res.Summary.StartedAt
	}

	return time.Now()
}

func buildID(res *engine.Result) string {
	if res.Summary == nil || res.Summary.Build == nil {
		return ""
	}

	return res.Summary.Build.BuildID
}
