package stream

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/birdofpreyru/audiostream/internal/audio"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// StreamID identifies one capture stream. Issued identities only grow.
type StreamID int64

// Sink receives the events of every stream. Implementations must be safe
// for concurrent use: each stream calls it from its own goroutine.
type Sink interface {
	// Chunk delivers one captured chunk; data is only valid during the call.
	Chunk(id StreamID, chunkID int, data []byte)
	Error(id StreamID, err error)
}

type Config struct {
	Driver audio.Driver
	Sink   Sink
	Logger zerolog.Logger
}

// Registry owns the engines of all active streams, keyed by identity.
type Registry struct {
	driver audio.Driver
	sink   Sink
	log    zerolog.Logger

	mu      sync.Mutex
	lastID  StreamID
	engines map[StreamID]*Engine
	closed  bool
}

func New(cfg Config) *Registry {
	return &Registry{
		driver:  cfg.Driver,
		sink:    cfg.Sink,
		log:     cfg.Logger,
		engines: make(map[StreamID]*Engine),
	}
}

// Listen starts a stream with a newly issued identity. Capture failures,
// including invalid parameters, are reported later through the sink.
func (r *Registry) Listen(p audio.Params) (StreamID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrRegistryClosed
	}
	r.lastID++
	id := r.lastID
	r.startLocked(id, p)
	return id, nil
}

// ListenWithID starts a stream under a caller-chosen identity, which must
// be greater than every identity issued or accepted before.
func (r *Registry) ListenWithID(id StreamID, p audio.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.engines[id]; ok {
		return fmt.Errorf("%w: %d", ErrStreamExists, id)
	}
	if id <= r.lastID {
		return fmt.Errorf("%w: %d <= %d", ErrInvalidStreamID, id, r.lastID)
	}
	r.lastID = id
	r.startLocked(id, p)
	return nil
}

func (r *Registry) startLocked(id StreamID, p audio.Params) {
	log := r.log.With().Int64("stream", int64(id)).Logger()
	r.engines[id] = StartEngine(EngineConfig{
		Driver: r.driver,
		Params: p,
		OnChunk: func(chunkID int, chunk []byte) {
			r.sink.Chunk(id, chunkID, chunk)
		},
		OnError: func(err error) {
			r.sink.Error(id, err)
		},
		Logger: log,
	})

	log.Info().
		Int("source", int(p.Source)).
		Int("sample_rate", p.SampleRate).
		Int("channel_config", int(p.ChannelConfig)).
		Stringer("format", p.Format).
		Int("sampling_size", p.SamplingSize).
		Msg("Stream listening")
}

// Mute sets the delivery gate of a stream.
func (r *Registry) Mute(id StreamID, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.engines[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStream, id)
	}
	e.SetMuted(muted)
	r.log.Debug().Int64("stream", int64(id)).Bool("muted", muted).Msg("Stream mute changed")
	return nil
}

// Unlisten removes a stream and waits until its device session has been
// released. The identity is free as soon as the removal happens, even if
// ctx expires while waiting.
func (r *Registry) Unlisten(ctx context.Context, id StreamID) error {
	r.mu.Lock()
	e, ok := r.engines[id]
	if ok {
		delete(r.engines, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStream, id)
	}

	if err := e.StopContext(ctx); err != nil {
		r.log.Warn().Err(err).Int64("stream", int64(id)).Msg("Stream did not stop in time")
		return fmt.Errorf("stop stream %d: %w", id, err)
	}
	r.log.Info().Int64("stream", int64(id)).Msg("Stream stopped")
	return nil
}

// Active returns the identities of registered streams in ascending order.
// Streams that failed stay registered until unlistened.
func (r *Registry) Active() []StreamID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]StreamID, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close stops every remaining stream concurrently and rejects further
// Listen calls.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	engines := r.engines
	r.engines = make(map[StreamID]*Engine)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for id, e := range engines {
		g.Go(func() error {
			if err := e.StopContext(ctx); err != nil {
				return fmt.Errorf("stop stream %d: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(engines) > 0 {
		r.log.Info().Int("streams", len(engines)).Msg("Registry closed")
	}
	return nil
}
