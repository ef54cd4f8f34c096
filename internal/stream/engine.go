package stream

import (
	"context"
	"sync/atomic"

	"github.com/birdofpreyru/audiostream/internal/audio"
	"github.com/rs/zerolog"
)

// bufferChunks is how many chunks the device-side buffer holds at minimum.
const bufferChunks = 3

// EngineConfig configures a capture engine.
type EngineConfig struct {
	Driver audio.Driver
	Params audio.Params
	// OnChunk receives every chunk captured while unmuted. The slice is
	// reused for the next read and must not be retained after return.
	OnChunk func(chunkID int, chunk []byte)
	// OnError receives the terminal failure of the engine, at most once.
	OnError func(err error)
	Logger  zerolog.Logger
}

// Engine runs one capture session on its own goroutine.
type Engine struct {
	driver  audio.Driver
	params  audio.Params
	onChunk func(int, []byte)
	onError func(error)
	log     zerolog.Logger

	muted    atomic.Bool
	stopping atomic.Bool
	captured atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
	err    error // written by the capture goroutine before done is closed
}

// StartEngine launches a capture goroutine for cfg.Params and returns its
// handle. Every failure, including invalid parameters, arrives through
// OnError rather than as a return value.
func StartEngine(cfg EngineConfig) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		driver:  cfg.Driver,
		params:  cfg.Params,
		onChunk: cfg.OnChunk,
		onError: cfg.OnError,
		log:     cfg.Logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go e.run(ctx)
	return e
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	chunkSize, err := e.params.ChunkSize()
	if err != nil {
		e.fail(ctx, &Error{Kind: ConfigError, Err: err})
		return
	}

	bufferSize := max(bufferChunks*chunkSize, e.driver.MinBufferSize(e.params))
	session, err := e.driver.Open(e.params, bufferSize)
	if err != nil {
		e.fail(ctx, &Error{Kind: InitError, Err: err})
		return
	}
	defer func() {
		if err := session.Release(); err != nil {
			e.log.Warn().Err(err).Msg("Failed to release device session")
		}
		e.log.Debug().Int64("chunks", e.captured.Load()).Msg("Device session released")
	}()

	if err := session.Start(); err != nil {
		e.fail(ctx, &Error{Kind: InitError, Err: err})
		return
	}

	e.log.Debug().
		Int("chunk_bytes", chunkSize).
		Int("buffer_bytes", bufferSize).
		Msg("Capture started")

	chunk := make([]byte, chunkSize)
	for chunkID := 0; ctx.Err() == nil; chunkID++ {
		if err := session.Read(chunk); err != nil {
			e.fail(ctx, &Error{Kind: ReadError, Err: err})
			return
		}
		e.captured.Add(1)

		// A stop requested during the read drops the chunk.
		if ctx.Err() != nil {
			return
		}
		if !e.muted.Load() && e.onChunk != nil {
			e.onChunk(chunkID, chunk)
		}
	}
}

func (e *Engine) fail(ctx context.Context, err error) {
	e.err = err
	if ctx.Err() != nil {
		e.log.Debug().Err(err).Msg("Capture failed after stop was requested")
		return
	}
	e.log.Error().Err(err).Msg("Capture failed")
	if e.onError != nil {
		e.onError(err)
	}
}

// SetMuted gates chunk delivery from the next chunk boundary on. Capture
// and the chunk counter keep running while muted.
func (e *Engine) SetMuted(muted bool) {
	e.muted.Store(muted)
}

// Muted reports the current gating state.
func (e *Engine) Muted() bool {
	return e.muted.Load()
}

// Captured returns the number of chunks read from the device so far,
// delivered or not.
func (e *Engine) Captured() int64 {
	return e.captured.Load()
}

// Done is closed once the capture goroutine has exited and released the
// device session.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the terminal failure once Done is closed, or nil.
func (e *Engine) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// Stop requests the capture goroutine to exit and waits for the device
// session to be released. A read already in progress is not interrupted.
func (e *Engine) Stop() error {
	return e.StopContext(context.Background())
}

// StopContext is Stop with a bound on the wait. When ctx expires first the
// engine still shuts down in the background and ctx.Err() is returned.
// Every call after the first returns ErrStopped.
func (e *Engine) StopContext(ctx context.Context) error {
	if !e.stopping.CompareAndSwap(false, true) {
		return ErrStopped
	}
	e.cancel()
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
