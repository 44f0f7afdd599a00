// Package metrics exposes run and pipeline outcomes as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/pipeline"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "reportoor"

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	tests        *prometheus.GaugeVec
	failures     *prometheus.GaugeVec
	runDuration  prometheus.Gauge
	exitCode     prometheus.Gauge
	runsTotal    *prometheus.CounterVec
	eventsTotal  *prometheus.CounterVec
	channelItems *prometheus.CounterVec
	channelState *prometheus.GaugeVec
}

var _ pipeline.Recorder = (*Metrics)(nil)

// New registers every collector on a fresh registry. withProcess adds the
// Go and process collectors for long-running modes.
func New(withProcess bool) *Metrics {
	reg := prometheus.NewRegistry()

	if withProcess {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tests: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tests",
			Help:      "Number of tests in the last run by final status bucket",
		}, []string{"status"}),
		failures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "failures",
			Help:      "Number of failures in the last run by category",
		}, []string{"category"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of the last run",
		}),
		exitCode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "exit_code",
			Help:      "Exit code decided for the last run",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Count of finished runs by result",
		}, []string{"result"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Count of runner events received",
		}, []string{"type", "result"}),
		channelItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_items_total",
			Help:      "Count of pipeline channel items by result",
		}, []string{"channel", "result"}),
		channelState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pipeline_channel_state",
			Help:      "Current state of each pipeline channel (1 for the active state)",
		}, []string{"channel", "state"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ChannelItem counts one pipeline item outcome.
func (m *Metrics) ChannelItem(channel string, ok bool) {
	m.channelItems.WithLabelValues(channel, resultLabel(ok)).Inc()
}

// ChannelState sets channel to state, clearing its previous state.
func (m *Metrics) ChannelState(channel, state string) {
	m.channelState.DeletePartialMatch(prometheus.Labels{"channel": channel})
	m.channelState.WithLabelValues(channel, state).Set(1)
}

// EventObserved counts one runner event.
func (m *Metrics) EventObserved(eventType string, ok bool) {
	m.eventsTotal.WithLabelValues(eventType, resultLabel(ok)).Inc()
}

// RunFinished records the outcome of a decided run. s is nil when no tests
// were discovered.
func (m *Metrics) RunFinished(s *summary.RunSummary, exitCode int, success bool) {
	m.exitCode.Set(float64(exitCode))

	result := summary.StatusFailed
	if success {
		result = summary.StatusPassed
	}

	m.runsTotal.WithLabelValues(result).Inc()

	m.tests.Reset()
	m.failures.Reset()

	if s == nil {
		m.runDuration.Set(0)

		return
	}

	m.tests.WithLabelValues("total").Set(float64(s.TestCount))
	m.tests.WithLabelValues("passed").Set(float64(s.PassedCount))
	m.tests.WithLabelValues("failed").Set(float64(s.FailedCount))
	m.tests.WithLabelValues("skipped").Set(float64(s.SkippedCount))
	m.tests.WithLabelValues("flaky").Set(float64(s.FlakyCount))
	m.tests.WithLabelValues("slow").Set(float64(s.SlowTestCount))

	for _, f := range s.Failures {
		m.failures.WithLabelValues(string(f.Category)).Inc()
	}

	m.runDuration.Set(s.TotalWallClockSeconds)
}

// WriteTextfile writes every metric in the text exposition format to path,
// for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}

	return nil
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}

	return "failure"
}
