package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/engine"
	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/ethpandaops/reportoor/pkg/metrics"
	"github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 10 * time.Second

	// maxBodyBytes caps one event post.
	maxBodyBytes = 8 << 20
)

// Receiver is the run that posted events are dispatched to.
type Receiver interface {
	events.Sink

	Phase() engine.Phase
	Tests() int
	Result() *engine.Result
}

// Ensure the engine can back the server.
var _ Receiver = (*engine.Engine)(nil)

// Server exposes the event receiver HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	// RunEnded is closed once a run_end event was accepted.
	RunEnded() <-chan struct{}
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.ServerConfig
	receiver   Receiver
	metrics    *metrics.Metrics
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
	now        func() time.Time

	runEnded     chan struct{}
	runEndedOnce sync.Once
}

// NewServer creates a new event receiver. m may be nil, in which case
// /metrics is not served.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.ServerConfig,
	receiver Receiver,
	m *metrics.Metrics,
) Server {
	return &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		receiver: receiver,
		metrics:  m,
		done:     make(chan struct{}),
		now:      time.Now,
		runEnded: make(chan struct{}),
	}
}

// Start binds the listener and serves requests in the background.
func (s *server) Start(_ context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).
			Info("Event receiver starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("Event receiver stopped")

	return nil
}

// RunEnded returns a channel closed once run_end was accepted.
func (s *server) RunEnded() <-chan struct{} {
	return s.runEnded
}

func (s *server) markRunEnded() {
	s.runEndedOnce.Do(func() { close(s.runEnded) })
}
