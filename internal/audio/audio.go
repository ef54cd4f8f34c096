package audio

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidChannelConfig = errors.New("invalid channel config")
	ErrInvalidAudioFormat   = errors.New("invalid audio format")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrSessionReleased      = errors.New("device session released")
	ErrInvalidSamplingSize  = errors.New("invalid sampling size")
	ErrInvalidSampleRate    = errors.New("invalid sample rate")
)

// MaxChunkBytes bounds the size of a single chunk.
const MaxChunkBytes = 1 << 24

// Source selects the platform audio input. Desktop backends pass it through
// untouched; only the numeric value is part of the contract.
type Source int

const (
	SourceDefault            Source = 0
	SourceMic                Source = 1
	SourceVoiceUplink        Source = 2
	SourceVoiceDownlink      Source = 3
	SourceVoiceCall          Source = 4
	SourceCamcorder          Source = 5
	SourceVoiceRecognition   Source = 6
	SourceVoiceCommunication Source = 7
	SourceRemoteSubmix       Source = 8
	SourceUnprocessed        Source = 9
	SourceVoicePerformance   Source = 10
)

// ChannelConfig is the channel layout mask of a capture request.
type ChannelConfig int

const (
	ChannelInStereo ChannelConfig = 12
	ChannelInMono   ChannelConfig = 16
)

// Format is the sample encoding of a capture request.
type Format int

const (
	FormatPCM16Bit Format = 2
	FormatPCM8Bit  Format = 3
	FormatPCMFloat Format = 4
)

// Channels returns the number of interleaved channels for c.
func (c ChannelConfig) Channels() (int, error) {
	switch c {
	case ChannelInMono:
		return 1, nil
	case ChannelInStereo:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannelConfig, int(c))
	}
}

// SampleSize returns the width of one sample in bytes.
func (f Format) SampleSize() (int, error) {
	switch f {
	case FormatPCM8Bit:
		return 1, nil
	case FormatPCM16Bit:
		return 2, nil
	case FormatPCMFloat:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidAudioFormat, int(f))
	}
}

func (f Format) String() string {
	switch f {
	case FormatPCM8Bit:
		return "pcm8"
	case FormatPCM16Bit:
		return "pcm16"
	case FormatPCMFloat:
		return "float32"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Params describes one capture stream. It is a value type and is never
// modified once a stream has started.
type Params struct {
	Source        Source
	SampleRate    int // Hz, 0 selects the device default
	ChannelConfig ChannelConfig
	Format        Format
	SamplingSize  int // samples per channel in one chunk
}

// FrameSize returns the size of one interleaved frame in bytes.
func (p Params) FrameSize() (int, error) {
	channels, err := p.ChannelConfig.Channels()
	if err != nil {
		return 0, err
	}
	width, err := p.Format.SampleSize()
	if err != nil {
		return 0, err
	}
	return channels * width, nil
}

// ChunkSize returns the size of one delivered chunk in bytes. It also
// rejects a negative sample rate and chunks larger than MaxChunkBytes.
func (p Params) ChunkSize() (int, error) {
	frame, err := p.FrameSize()
	if err != nil {
		return 0, err
	}
	if p.SampleRate < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSampleRate, p.SampleRate)
	}
	// Checked by division so the product below cannot overflow.
	if p.SamplingSize <= 0 || p.SamplingSize > MaxChunkBytes/frame {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSamplingSize, p.SamplingSize)
	}
	return frame * p.SamplingSize, nil
}

// Session is one live capture handle on an input device. Start must be
// called before Read, and Release exactly once when the caller is done.
type Session interface {
	Start() error
	// Read blocks until len(p) bytes of PCM data have been captured.
	Read(p []byte) error
	Release() error
}

// Driver opens capture sessions on a concrete audio backend.
type Driver interface {
	// Open prepares a session for p whose device-side buffer holds at least
	// bufferSize bytes.
	Open(p Params, bufferSize int) (Session, error)
	// MinBufferSize reports the smallest device buffer (bytes) the backend
	// accepts for p, or 0 when it has no opinion.
	MinBufferSize(p Params) int
	ListDevices() ([]Device, error)
	InputAvailable() (bool, error)
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID      string
	Name    string
	Default bool
}

// Constants returns the contract constant table exported to callers.
func Constants() map[string]any {
	return map[string]any{
		"AUDIO_FORMAT_PCM_8BIT":  int(FormatPCM8Bit),
		"AUDIO_FORMAT_PCM_16BIT": int(FormatPCM16Bit),
		"AUDIO_FORMAT_PCM_FLOAT": int(FormatPCMFloat),

		"AUDIO_SOURCE_CAMCODER":            int(SourceCamcorder),
		"AUDIO_SOURCE_DEFAULT":             int(SourceDefault),
		"AUDIO_SOURCE_MIC":                 int(SourceMic),
		"AUDIO_SOURCE_REMOTE_SUBMIX":       int(SourceRemoteSubmix),
		"AUDIO_SOURCE_UNPROCESSED":         int(SourceUnprocessed),
		"AUDIO_SOURCE_VOICE_CALL":          int(SourceVoiceCall),
		"AUDIO_SOURCE_VOICE_COMMUNICATION": int(SourceVoiceCommunication),
		"AUDIO_SOURCE_VOICE_DOWNLINK":      int(SourceVoiceDownlink),
		"AUDIO_SOURCE_VOICE_PERFORMANCE":   int(SourceVoicePerformance),
		"AUDIO_SOURCE_VOICE_RECOGNITION":   int(SourceVoiceRecognition),
		"AUDIO_SOURCE_VOICE_UPLINK":        int(SourceVoiceUplink),

		"CHANNEL_IN_MONO":   int(ChannelInMono),
		"CHANNEL_IN_STEREO": int(ChannelInStereo),

		"IS_MAC_CATALYST": false,
	}
}
