// Package audiotest provides an in-memory audio.Driver for tests.
package audiotest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/birdofpreyru/audiostream/internal/audio"
)

// Driver is a scriptable audio.Driver. Its exported fields must be set
// before the first Open and not changed afterwards.
type Driver struct {
	// OpenErr and StartErr fail session initialization.
	OpenErr  error
	StartErr error
	// ReadErr is returned by every read after FailAfter successful ones.
	ReadErr   error
	FailAfter int
	// Gate, when non-nil, makes each Read wait for one receive. Otherwise
	// reads are paced by Interval.
	Gate     chan struct{}
	Interval time.Duration

	MinBuffer int
	Devices   []audio.Device

	mu       sync.Mutex
	sessions []*Session
	closed   bool
}

// New returns a Driver producing a chunk every millisecond.
func New() *Driver {
	return &Driver{
		Interval: time.Millisecond,
		Devices:  []audio.Device{{ID: "fake", Name: "Fake Microphone", Default: true}},
	}
}

func (d *Driver) Open(p audio.Params, bufferSize int) (audio.Session, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Session{
		driver:     d,
		Params:     p,
		BufferSize: bufferSize,
		released:   make(chan struct{}),
	}
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s, nil
}

func (d *Driver) MinBufferSize(audio.Params) int { return d.MinBuffer }

func (d *Driver) ListDevices() ([]audio.Device, error) { return d.Devices, nil }

func (d *Driver) InputAvailable() (bool, error) { return len(d.Devices) > 0, nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Sessions returns every session opened so far, in order.
func (d *Driver) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session(nil), d.sessions...)
}

// Session records what the engine did with it. Each read fills the chunk
// with the byte value of its read index so tests can match chunks to ids.
type Session struct {
	driver     *Driver
	Params     audio.Params
	BufferSize int

	started  atomic.Bool
	reads    atomic.Int64
	releases atomic.Int64
	released chan struct{}
}

func (s *Session) Start() error {
	if s.driver.StartErr != nil {
		return s.driver.StartErr
	}
	s.started.Store(true)
	return nil
}

func (s *Session) Read(p []byte) error {
	if !s.started.Load() {
		return errors.New("read before start")
	}
	n := s.reads.Load()
	if s.driver.ReadErr != nil && n >= int64(s.driver.FailAfter) {
		return s.driver.ReadErr
	}
	if s.driver.Gate != nil {
		select {
		case <-s.driver.Gate:
		case <-s.released:
			return audio.ErrSessionReleased
		}
	} else if s.driver.Interval > 0 {
		time.Sleep(s.driver.Interval)
	}
	for i := range p {
		p[i] = byte(n)
	}
	s.reads.Add(1)
	return nil
}

func (s *Session) Release() error {
	if s.releases.Add(1) == 1 {
		close(s.released)
	}
	return nil
}

// Started reports whether Start succeeded.
func (s *Session) Started() bool { return s.started.Load() }

// Reads returns the number of completed reads.
func (s *Session) Reads() int { return int(s.reads.Load()) }

// Releases returns how many times Release was called.
func (s *Session) Releases() int { return int(s.releases.Load()) }

// Released is closed on the first Release.
func (s *Session) Released() <-chan struct{} { return s.released }
