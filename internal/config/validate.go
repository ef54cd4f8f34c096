package config

import (
	"fmt"
	"strings"
)

var validBackends = map[string]bool{
	BackendPortAudio: true,
	BackendMalgo:     true,
}

var validEventFormats = map[string]bool{
	"json":    true,
	"msgpack": true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config and returns all problems found. Values that
// would make capture impossible are clamped to defaults; the returned
// errors describe each clamp. Channel config and audio format are left to
// the capture engine, which reports them per stream.
func (c *Config) Validate() []error {
	var errs []error
	def := Default()

	if !validBackends[strings.ToLower(c.Backend)] {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if !validEventFormats[strings.ToLower(c.EventFormat)] {
		errs = append(errs, fmt.Errorf("unknown event_format %q", c.EventFormat))
	}

	if c.Log.Level != "" && !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("unknown log level %q, using info", c.Log.Level))
	}

	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("log.max_size_mb %d must be positive, clamping to %d", c.Log.MaxSizeMB, def.Log.MaxSizeMB))
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}

	if c.Stream.SamplingSize <= 0 {
		errs = append(errs, fmt.Errorf("stream.sampling_size %d must be positive, clamping to %d", c.Stream.SamplingSize, def.Stream.SamplingSize))
		c.Stream.SamplingSize = def.Stream.SamplingSize
	}

	if c.Stream.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("stream.sample_rate %d is negative, using device default", c.Stream.SampleRate))
		c.Stream.SampleRate = 0
	}

	return errs
}
