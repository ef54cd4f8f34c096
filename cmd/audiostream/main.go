package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birdofpreyru/audiostream/internal/audio"
	"github.com/birdofpreyru/audiostream/internal/config"
	"github.com/birdofpreyru/audiostream/internal/logging"
	"github.com/birdofpreyru/audiostream/internal/permissions"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

// shutdownTimeout bounds how long exit waits for device sessions to close.
const shutdownTimeout = 5 * time.Second

var (
	cfgFile  string
	backend  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "audiostream",
	Short:         "Stream raw microphone audio as chunk events",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("audiostream %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is audiostream.yaml in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "audio backend: portaudio or malgo")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(constantsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtimeEnv is what every capture command needs once the config is loaded.
type runtimeEnv struct {
	cfg    *config.Config
	log    zerolog.Logger
	closer io.Closer
}

func (e *runtimeEnv) Close() {
	e.closer.Close()
}

func setup() (*runtimeEnv, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	// Clamps must land before the logger is built from cfg.Log.
	problems := cfg.Validate()
	log, closer := logging.New(cfg.Log)
	for _, err := range problems {
		log.Warn().Err(err).Msg("Config problem")
	}
	return &runtimeEnv{cfg: cfg, log: log, closer: closer}, nil
}

// openDriver checks the microphone permission and opens the configured
// backend.
func openDriver(cfg *config.Config, log zerolog.Logger) (audio.Driver, error) {
	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsureMicrophone(); err != nil {
		return nil, err
	}
	return newDriver(cfg, log)
}

func newDriver(cfg *config.Config, log zerolog.Logger) (audio.Driver, error) {
	switch cfg.Backend {
	case config.BackendPortAudio:
		d, err := audio.NewPortAudio(cfg.Device, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.BackendMalgo:
		d, err := audio.NewMalgo(cfg.Device, log)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// closeDriver tears down the backend unless streams failed to stop in
// time. Terminating it under live sessions is unsafe, so in that case the
// backend is left to process exit.
func closeDriver(d audio.Driver, log zerolog.Logger, streamsLeft bool) {
	if streamsLeft {
		log.Warn().Msg("Streams still running, skipping audio backend teardown")
		return
	}
	if err := d.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audio backend")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
