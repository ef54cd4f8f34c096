package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/birdofpreyru/audiostream/internal/audio"
	"github.com/spf13/viper"
)

const appName = "audiostream"

// Backends.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

type Config struct {
	Backend     string       `mapstructure:"backend"`
	Device      string       `mapstructure:"device"`
	EventFormat string       `mapstructure:"event_format"`
	Log         LogConfig    `mapstructure:"log"`
	Stream      StreamConfig `mapstructure:"stream"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty disables file output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StreamConfig holds the capture parameters used by the listen command.
type StreamConfig struct {
	AudioSource   int `mapstructure:"audio_source"`
	SampleRate    int `mapstructure:"sample_rate"`
	ChannelConfig int `mapstructure:"channel_config"`
	AudioFormat   int `mapstructure:"audio_format"`
	SamplingSize  int `mapstructure:"sampling_size"`
}

// Params converts the stream section into capture parameters.
func (s StreamConfig) Params() audio.Params {
	return audio.Params{
		Source:        audio.Source(s.AudioSource),
		SampleRate:    s.SampleRate,
		ChannelConfig: audio.ChannelConfig(s.ChannelConfig),
		Format:        audio.Format(s.AudioFormat),
		SamplingSize:  s.SamplingSize,
	}
}

func Default() *Config {
	return &Config{
		Backend:     BackendPortAudio,
		EventFormat: "json",
		Log: LogConfig{
			Level:      "info",
			File:       LogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Stream: StreamConfig{
			AudioSource:   int(audio.SourceMic),
			SampleRate:    44100,
			ChannelConfig: int(audio.ChannelInMono),
			AudioFormat:   int(audio.FormatPCM16Bit),
			SamplingSize:  4096,
		},
	}
}

// Load reads cfgFile, or audiostream.yaml from the config dir or the working
// dir when cfgFile is empty. A missing default file is not an error.
// Environment variables such as AUDIOSTREAM_LOG_LEVEL override both.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AUDIOSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that environment overrides apply even
// when the file does not mention it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("device", cfg.Device)
	v.SetDefault("event_format", cfg.EventFormat)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)
	v.SetDefault("stream.audio_source", cfg.Stream.AudioSource)
	v.SetDefault("stream.sample_rate", cfg.Stream.SampleRate)
	v.SetDefault("stream.channel_config", cfg.Stream.ChannelConfig)
	v.SetDefault("stream.audio_format", cfg.Stream.AudioFormat)
	v.SetDefault("stream.sampling_size", cfg.Stream.SamplingSize)
}

// configDir returns the platform-specific config directory
func configDir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName)
}

// LogPath returns the platform-specific default log file path
func LogPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, appName, appName+".log")
}
