package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/reportoor/pkg/api"
	"github.com/spf13/cobra"
)

var lingerFor time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Observe a run from events posted over HTTP",
	Long: `Start the event receiver. Runners post their lifecycle events to
/api/v1/events; the run is finalized once run_end is accepted or the
process receives an interrupt signal, which ends the run as interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().DurationVar(&lingerFor, "linger", 0,
		"keep serving status and metrics this long after the run is finalized")
	serveCmd.Flags().StringSliceVar(&metadataLabels, "metadata.label", nil,
		"Add metadata label as key=value (can be repeated)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	obs, err := newObserver(ctx, cfg, true)
	if err != nil {
		return err
	}

	srv := api.NewServer(log, &cfg.Server, obs.engine, obs.metrics)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting event receiver: %w", err)
	}

	select {
	case <-srv.RunEnded():
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("Received shutdown signal")
		obs.interrupt(errors.New("interrupted by " + sig.String()))
	}

	exitCode = obs.finish(ctx)

	if lingerFor > 0 {
		log.WithField("linger", lingerFor).Info("Run finalized, serving results")

		select {
		case <-time.After(lingerFor):
		case <-sigCh:
		}
	}

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping event receiver: %w", err)
	}

	return nil
}
