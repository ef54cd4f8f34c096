package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/birdofpreyru/audiostream/internal/bridge"
	"github.com/birdofpreyru/audiostream/internal/events"
	"github.com/birdofpreyru/audiostream/internal/stream"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer requests from stdin and write events to stdout",
	Long: `Reads one JSON request per line from stdin and writes replies and stream
events to stdout until stdin is closed or the process is interrupted.
All active streams are stopped on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()
	log := env.log

	driver, err := openDriver(env.cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize audio")
		return err
	}
	streamsLeft := false
	defer func() { closeDriver(driver, log, streamsLeft) }()

	emitter, err := events.NewEmitter(os.Stdout, env.cfg.EventFormat, log)
	if err != nil {
		return err
	}
	registry := stream.New(stream.Config{Driver: driver, Sink: emitter, Logger: log})
	b := bridge.New(bridge.Config{
		Registry: registry,
		Driver:   driver,
		Emitter:  emitter,
		Logger:   log,
	})

	ctx, cancel := signalContext()
	defer cancel()

	log.Info().Str("version", Version).Str("format", env.cfg.EventFormat).Msg("Serving requests")
	serveErr := b.Serve(ctx, os.Stdin)
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	log.Info().Int("streams", registry.Len()).Msg("Shutting down...")
	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if err := registry.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
		if serveErr == nil {
			serveErr = fmt.Errorf("stop streams: %w", err)
		}
		streamsLeft = true
	}
	return serveErr
}
