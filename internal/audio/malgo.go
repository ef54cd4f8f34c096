package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

var errDeviceStopped = errors.New("capture device stopped unexpectedly")

// Malgo is a Driver backed by miniaudio. miniaudio delivers capture data
// through a callback; sessions buffer it so Read can block like PortAudio.
type Malgo struct {
	ctx    *malgo.AllocatedContext
	device string
	log    zerolog.Logger
}

// NewMalgo creates a miniaudio context on the platform default backend.
func NewMalgo(device string, log zerolog.Logger) (*Malgo, error) {
	log = log.With().Str("backend", "malgo").Logger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}
	return &Malgo{ctx: ctx, device: device, log: log}, nil
}

func malgoFormat(f Format) (malgo.FormatType, error) {
	switch f {
	case FormatPCM8Bit:
		return malgo.FormatU8, nil
	case FormatPCM16Bit:
		return malgo.FormatS16, nil
	case FormatPCMFloat:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: %d", ErrInvalidAudioFormat, int(f))
	}
}

func (d *Malgo) lookup() (*malgo.DeviceInfo, error) {
	if d.device == "" {
		return nil, nil
	}
	infos, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for i := range infos {
		if infos[i].Name() == d.device {
			info := infos[i]
			return &info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.device)
}

// MinBufferSize returns 0: miniaudio derives its own period sizes.
func (d *Malgo) MinBufferSize(Params) int {
	return 0
}

func (d *Malgo) Open(p Params, bufferSize int) (Session, error) {
	channels, err := p.ChannelConfig.Channels()
	if err != nil {
		return nil, err
	}
	format, err := malgoFormat(p.Format)
	if err != nil {
		return nil, err
	}
	chunkSize, err := p.ChunkSize()
	if err != nil {
		return nil, err
	}
	info, err := d.lookup()
	if err != nil {
		return nil, err
	}

	periods := (bufferSize + chunkSize - 1) / chunkSize
	if periods < 3 {
		periods = 3
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = format
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(p.SampleRate)
	cfg.PeriodSizeInFrames = uint32(p.SamplingSize)
	cfg.Periods = uint32(periods)
	if info != nil {
		cfg.Capture.DeviceID = info.ID.Pointer()
	}

	s := &malgoSession{
		info:  info,
		limit: periods * chunkSize,
		log:   d.log,
	}
	s.cond = sync.NewCond(&s.mu)

	device, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	s.device = device

	d.log.Debug().
		Int("channels", channels).
		Stringer("format", p.Format).
		Int("sample_rate", p.SampleRate).
		Int("periods", periods).
		Msg("Opened capture device")
	return s, nil
}

func (d *Malgo) ListDevices() ([]Device, error) {
	infos, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	result := make([]Device, 0, len(infos))
	for _, info := range infos {
		result = append(result, Device{
			ID:      info.ID.String(),
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return result, nil
}

func (d *Malgo) InputAvailable() (bool, error) {
	infos, err := d.ctx.Devices(malgo.Capture)
	if err != nil {
		return false, fmt.Errorf("failed to list devices: %w", err)
	}
	return len(infos) > 0, nil
}

func (d *Malgo) Close() error {
	err := d.ctx.Uninit()
	d.ctx.Free()
	return err
}

type malgoSession struct {
	device *malgo.Device
	info   *malgo.DeviceInfo // owns the memory behind the device ID pointer
	log    zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []byte
	limit   int
	dropped int
	err     error
}

// onData runs on the miniaudio thread. When the reader falls more than the
// session buffer behind, incoming frames are dropped.
func (s *malgoSession) onData(_, in []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if len(s.pending)+len(in) > s.limit {
		s.dropped += len(in)
		return
	}
	s.pending = append(s.pending, in...)
	s.cond.Signal()
}

func (s *malgoSession) onStop() {
	s.fail(errDeviceStopped)
}

func (s *malgoSession) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *malgoSession) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}
	return nil
}

func (s *malgoSession) Read(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) < len(p) && s.err == nil {
		s.cond.Wait()
	}
	if len(s.pending) < len(p) {
		return s.err
	}
	copy(p, s.pending)
	n := copy(s.pending, s.pending[len(p):])
	s.pending = s.pending[:n]
	if s.dropped > 0 {
		s.log.Warn().Int("bytes", s.dropped).Msg("Capture buffer overrun, data dropped")
		s.dropped = 0
	}
	return nil
}

func (s *malgoSession) Release() error {
	s.fail(ErrSessionReleased)
	s.device.Uninit()
	return nil
}
