package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/reportoor/pkg/events"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var eventsPath string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Observe a run from a JSON-lines event stream",
	Long: `Read runner events, one JSON object per line, from a file or stdin and
observe the run they describe. A stream that ends without run_end, or an
interrupt signal, ends the run as interrupted. The process exits with the
decided run status.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&eventsPath, "events", "-",
		"event stream file, - for stdin")
	ingestCmd.Flags().StringSliceVar(&metadataLabels, "metadata.label", nil,
		"Add metadata label as key=value (can be repeated)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin

	if eventsPath != "-" {
		f, err := os.Open(eventsPath)
		if err != nil {
			return fmt.Errorf("opening event stream: %w", err)
		}
		defer func() { _ = f.Close() }()

		in = f
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	obs, err := newObserver(ctx, cfg, false)
	if err != nil {
		return err
	}

	stats, err := events.Replay(ctx, log, in, obs.engine, obs.metrics)

	log.WithFields(logrus.Fields{
		"lines":    stats.Lines,
		"events":   stats.Events,
		"rejected": stats.Rejected,
	}).Info("Event stream consumed")

	if err != nil {
		obs.interrupt(err)
	}

	// Reporting outlives an interrupt signal.
	exitCode = obs.finish(context.WithoutCancel(ctx))

	return nil
}
