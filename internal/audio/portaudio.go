package audio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// PortAudio is a Driver backed by PortAudio blocking streams.
type PortAudio struct {
	device string
	log    zerolog.Logger
}

// NewPortAudio initializes PortAudio. device selects an input device by
// name; empty means the system default.
func NewPortAudio(device string, log zerolog.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudio{
		device: device,
		log:    log.With().Str("backend", "portaudio").Logger(),
	}, nil
}

func (d *PortAudio) inputDevice() (*portaudio.DeviceInfo, error) {
	if d.device == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == d.device && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.device)
}

func sampleRate(p Params, device *portaudio.DeviceInfo) float64 {
	if p.SampleRate > 0 {
		return float64(p.SampleRate)
	}
	return device.DefaultSampleRate
}

// MinBufferSize converts the device's default low input latency to bytes.
func (d *PortAudio) MinBufferSize(p Params) int {
	frameSize, err := p.FrameSize()
	if err != nil {
		return 0
	}
	device, err := d.inputDevice()
	if err != nil {
		return 0
	}
	frames := math.Ceil(device.DefaultLowInputLatency.Seconds() * sampleRate(p, device))
	return int(frames) * frameSize
}

func (d *PortAudio) Open(p Params, bufferSize int) (Session, error) {
	channels, err := p.ChannelConfig.Channels()
	if err != nil {
		return nil, err
	}
	frameSize, err := p.FrameSize()
	if err != nil {
		return nil, err
	}
	device, err := d.inputDevice()
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < channels {
		return nil, fmt.Errorf("device '%s' supports %d input channels, %d requested",
			device.Name, device.MaxInputChannels, channels)
	}

	rate := sampleRate(p, device)

	// The suggested latency is how PortAudio sizes its host-side ring.
	latency := time.Duration(float64(bufferSize/frameSize) / rate * float64(time.Second))
	if latency < device.DefaultHighInputLatency {
		latency = device.DefaultHighInputLatency
	}

	s := &portAudioSession{log: d.log}
	samples := p.SamplingSize * channels
	var buffer any
	switch p.Format {
	case FormatPCM8Bit:
		s.u8 = make([]uint8, samples)
		buffer = s.u8
	case FormatPCM16Bit:
		s.i16 = make([]int16, samples)
		buffer = s.i16
	case FormatPCMFloat:
		s.f32 = make([]float32, samples)
		buffer = s.f32
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidAudioFormat, int(p.Format))
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      rate,
		FramesPerBuffer: p.SamplingSize,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	s.stream = stream

	d.log.Debug().
		Str("device", device.Name).
		Float64("rate", rate).
		Int("channels", channels).
		Stringer("format", p.Format).
		Dur("latency", latency).
		Msg("Opened input stream")
	return s, nil
}

func (d *PortAudio) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      dev.Name,
				Name:    dev.Name,
				Default: dev == defaultDevice,
			})
		}
	}

	return result, nil
}

func (d *PortAudio) InputAvailable() (bool, error) {
	devices, err := d.ListDevices()
	if err != nil {
		return false, err
	}
	return len(devices) > 0, nil
}

func (d *PortAudio) Close() error {
	return portaudio.Terminate()
}

type portAudioSession struct {
	stream  *portaudio.Stream
	started bool
	log     zerolog.Logger

	u8  []uint8
	i16 []int16
	f32 []float32
}

func (s *portAudioSession) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *portAudioSession) Read(p []byte) error {
	if err := s.stream.Read(); err != nil {
		// Overflow means frames were lost upstream; the buffer still holds
		// a full chunk of valid samples.
		if !errors.Is(err, portaudio.InputOverflowed) {
			return err
		}
		s.log.Warn().Err(err).Msg("Input overflowed")
	}

	switch {
	case s.u8 != nil:
		return packUint8(p, s.u8)
	case s.i16 != nil:
		return packInt16(p, s.i16)
	default:
		return packFloat32(p, s.f32)
	}
}

func (s *portAudioSession) Release() error {
	var errs []error
	if s.started {
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop stream: %w", err))
		}
		s.started = false
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close stream: %w", err))
	}
	return errors.Join(errs...)
}
