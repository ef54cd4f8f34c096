package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/birdofpreyru/audiostream/internal/events"
	"github.com/birdofpreyru/audiostream/internal/stream"
	"github.com/spf13/cobra"
)

var (
	listenDuration time.Duration
	listenStream   struct {
		source, rate, channels, format, size int
	}
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Capture one stream and write its events to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListen(cmd)
	},
}

func init() {
	f := listenCmd.Flags()
	f.DurationVar(&listenDuration, "duration", 0, "stop after this long (0 runs until interrupted)")
	f.IntVar(&listenStream.source, "audio-source", 0, "audio source constant")
	f.IntVar(&listenStream.rate, "sample-rate", 0, "sample rate in Hz (0 uses the device default)")
	f.IntVar(&listenStream.channels, "channel-config", 0, "channel config constant")
	f.IntVar(&listenStream.format, "audio-format", 0, "audio format constant")
	f.IntVar(&listenStream.size, "sampling-size", 0, "frames per chunk")
}

func runListen(cmd *cobra.Command) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()
	log := env.log

	sc := env.cfg.Stream
	f := cmd.Flags()
	if f.Changed("audio-source") {
		sc.AudioSource = listenStream.source
	}
	if f.Changed("sample-rate") {
		sc.SampleRate = listenStream.rate
	}
	if f.Changed("channel-config") {
		sc.ChannelConfig = listenStream.channels
	}
	if f.Changed("audio-format") {
		sc.AudioFormat = listenStream.format
	}
	if f.Changed("sampling-size") {
		sc.SamplingSize = listenStream.size
	}

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

	ctx, cancel := signalContext()
	defer cancel()
	if listenDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, listenDuration)
		defer cancel()
	}
	ctx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)

	sink := &stopOnError{Sink: emitter, cancel: cancelCause}
	registry := stream.New(stream.Config{Driver: driver, Sink: sink, Logger: log})
	if _, err := registry.Listen(sc.Params()); err != nil {
		return err
	}
	<-ctx.Done()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if err := registry.Close(closeCtx); err != nil {
		streamsLeft = true
		return err
	}
	return sink.Err()
}

// stopOnError forwards events and cancels the command once the stream
// reports its terminal failure.
type stopOnError struct {
	stream.Sink
	cancel context.CancelCauseFunc

	mu  sync.Mutex
	err error
}

func (s *stopOnError) Error(id stream.StreamID, err error) {
	s.Sink.Error(id, err)
	s.mu.Lock()
	if s.err == nil {
		s.err = fmt.Errorf("stream %d: %w", id, err)
	}
	s.mu.Unlock()
	s.cancel(err)
}

// Err returns the failure that stopped the command, if any.
func (s *stopOnError) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
