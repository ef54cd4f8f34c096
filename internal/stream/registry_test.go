package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/birdofpreyru/audiostream/internal/audio"
	"github.com/birdofpreyru/audiostream/internal/audio/audiotest"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func newTestRegistry(driver audio.Driver) (*Registry, *recorder) {
	rec := newRecorder()
	return New(Config{Driver: driver, Sink: rec, Logger: zerolog.Nop()}), rec
}

func TestRegistryIssuesIncreasingIDs(t *testing.T) {
	r, _ := newTestRegistry(audiotest.New())
	defer r.Close(context.Background())

	var last StreamID
	for i := 0; i < 3; i++ {
		id, err := r.Listen(mono16(64))
		if err != nil {
			t.Fatalf("Listen failed: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d does not exceed previous id %d", id, last)
		}
		last = id
	}

	if err := r.Unlisten(context.Background(), last); err != nil {
		t.Fatalf("Unlisten failed: %v", err)
	}
	id, err := r.Listen(mono16(64))
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if id <= last {
		t.Fatalf("identity %d reused or decreased after %d", id, last)
	}
}

func TestRegistryConcurrentListenYieldsUniqueIDs(t *testing.T) {
	r, _ := newTestRegistry(audiotest.New())
	defer r.Close(context.Background())

	const n = 16
	var mu sync.Mutex
	seen := make(map[StreamID]bool)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			id, err := r.Listen(mono16(32))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[id] {
				return errors.New("duplicate stream id")
			}
			seen[id] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if r.Len() != n {
		t.Errorf("expected %d active streams, got %d", n, r.Len())
	}
}

func TestRegistryChunkSizes(t *testing.T) {
	tests := []struct {
		name   string
		params audio.Params
		bytes  int
	}{
		{"mono pcm16 1024", mono16(1024), 2048},
		{
			"stereo float 512",
			audio.Params{ChannelConfig: audio.ChannelInStereo, Format: audio.FormatPCMFloat, SamplingSize: 512},
			4096,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newTestRegistry(audiotest.New())
			defer r.Close(context.Background())

			id, err := r.Listen(tt.params)
			if err != nil {
				t.Fatalf("Listen failed: %v", err)
			}
			waitFor(t, "chunks", func() bool { return len(rec.chunksOf(id)) >= 3 })

			for _, c := range rec.chunksOf(id) {
				if len(c.data) != tt.bytes {
					t.Fatalf("expected %d bytes per chunk, got %d", tt.bytes, len(c.data))
				}
			}
		})
	}
}

func TestRegistryStreamsAreIndependent(t *testing.T) {
	r, rec := newTestRegistry(audiotest.New())

	a, _ := r.Listen(mono16(32))
	b, _ := r.Listen(mono16(64))
	waitFor(t, "chunks on both streams", func() bool {
		return len(rec.chunksOf(a)) >= 5 && len(rec.chunksOf(b)) >= 5
	})
	if err := r.Mute(a, true); err != nil {
		t.Fatalf("Mute failed: %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	chunksA, chunksB := rec.chunksOf(a), rec.chunksOf(b)
	assertSequential(t, chunksB)
	for i, c := range chunksA {
		if c.id != i {
			t.Fatalf("stream %d: chunk %d has id %d", a, i, c.id)
		}
		if len(c.data) != 64 {
			t.Fatalf("stream %d received a chunk of %d bytes", a, len(c.data))
		}
	}
	for _, c := range chunksB {
		if len(c.data) != 128 {
			t.Fatalf("stream %d received a chunk of %d bytes", b, len(c.data))
		}
	}
}

func TestRegistryConfigErrorConsumesID(t *testing.T) {
	r, rec := newTestRegistry(audiotest.New())
	defer r.Close(context.Background())

	bad := audio.Params{ChannelConfig: 1, Format: audio.FormatPCM16Bit, SamplingSize: 64}
	id, err := r.Listen(bad)
	if err != nil {
		t.Fatalf("Listen must not fail synchronously: %v", err)
	}
	waitFor(t, "error event", func() bool { return len(rec.errorsOf(id)) == 1 })

	time.Sleep(20 * time.Millisecond)
	if n := len(rec.errorsOf(id)); n != 1 {
		t.Errorf("expected exactly one error event, got %d", n)
	}
	if n := len(rec.chunksOf(id)); n != 0 {
		t.Errorf("expected no chunk events, got %d", n)
	}

	// The failed stream stays registered until the caller unlistens.
	if active := r.Active(); len(active) != 1 || active[0] != id {
		t.Errorf("expected failed stream to stay registered, got %v", active)
	}

	next, _ := r.Listen(mono16(64))
	if next != id+1 {
		t.Errorf("expected next id %d, got %d", id+1, next)
	}
	if err := r.Unlisten(context.Background(), id); err != nil {
		t.Errorf("Unlisten of failed stream: %v", err)
	}
}

func TestRegistryLookupErrors(t *testing.T) {
	driver := audiotest.New()
	r, _ := newTestRegistry(driver)
	defer r.Close(context.Background())

	if err := r.Mute(99, true); !errors.Is(err, ErrUnknownStream) {
		t.Errorf("Mute on unknown id: expected ErrUnknownStream, got %v", err)
	}

	id, _ := r.Listen(mono16(64))
	if err := r.Unlisten(context.Background(), id+1); !errors.Is(err, ErrUnknownStream) {
		t.Errorf("Unlisten on unknown id: expected ErrUnknownStream, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("failed Unlisten must not mutate the registry, have %d streams", r.Len())
	}

	if err := r.Unlisten(context.Background(), id); err != nil {
		t.Fatalf("Unlisten failed: %v", err)
	}
	if err := r.Mute(id, false); !errors.Is(err, ErrUnknownStream) {
		t.Errorf("Mute after Unlisten: expected ErrUnknownStream, got %v", err)
	}
	if err := r.Unlisten(context.Background(), id); !errors.Is(err, ErrUnknownStream) {
		t.Errorf("second Unlisten: expected ErrUnknownStream, got %v", err)
	}
	for _, s := range driver.Sessions() {
		if s.Releases() != 1 {
			t.Errorf("expected session released once, got %d", s.Releases())
		}
	}
}

func TestRegistryUnlistenBeforeFirstChunk(t *testing.T) {
	driver := audiotest.New()
	driver.Interval = 200 * time.Millisecond
	r, rec := newTestRegistry(driver)

	id, _ := r.Listen(mono16(64))
	if err := r.Unlisten(context.Background(), id); err != nil {
		t.Fatalf("Unlisten failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if n := len(rec.chunksOf(id)); n != 0 {
		t.Fatalf("expected no chunks after Unlisten, got %d", n)
	}
	for _, s := range driver.Sessions() {
		if s.Releases() != 1 {
			t.Errorf("expected session released once, got %d", s.Releases())
		}
	}
}

func TestRegistryUnlistenDuringError(t *testing.T) {
	driver := audiotest.New()
	driver.ReadErr = errors.New("device lost")
	driver.FailAfter = 2
	r, rec := newTestRegistry(driver)
	defer r.Close(context.Background())

	id, _ := r.Listen(mono16(64))
	waitFor(t, "error event", func() bool { return len(rec.errorsOf(id)) == 1 })

	var g errgroup.Group
	results := make([]error, 2)
	for i := range results {
		g.Go(func() error {
			results[i] = r.Unlisten(context.Background(), id)
			return nil
		})
	}
	g.Wait()

	var ok, unknown int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrUnknownStream):
			unknown++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || unknown != 1 {
		t.Errorf("expected exactly one successful Unlisten, got %d ok and %d unknown", ok, unknown)
	}
}

func TestRegistryListenWithID(t *testing.T) {
	r, _ := newTestRegistry(audiotest.New())
	defer r.Close(context.Background())

	if err := r.ListenWithID(10, mono16(64)); err != nil {
		t.Fatalf("ListenWithID failed: %v", err)
	}
	if err := r.ListenWithID(10, mono16(64)); !errors.Is(err, ErrStreamExists) {
		t.Errorf("expected ErrStreamExists, got %v", err)
	}
	if err := r.ListenWithID(5, mono16(64)); !errors.Is(err, ErrInvalidStreamID) {
		t.Errorf("expected ErrInvalidStreamID, got %v", err)
	}

	id, _ := r.Listen(mono16(64))
	if id != 11 {
		t.Errorf("expected issued id 11, got %d", id)
	}
	if active := r.Active(); len(active) != 2 || active[0] != 10 || active[1] != 11 {
		t.Errorf("unexpected active streams: %v", active)
	}
}

func TestRegistryClose(t *testing.T) {
	driver := audiotest.New()
	r, _ := newTestRegistry(driver)

	for i := 0; i < 4; i++ {
		if _, err := r.Listen(mono16(64)); err != nil {
			t.Fatalf("Listen failed: %v", err)
		}
	}
	waitFor(t, "sessions", func() bool { return len(driver.Sessions()) == 4 })

	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected no streams after Close, got %d", r.Len())
	}
	for _, s := range driver.Sessions() {
		if s.Releases() != 1 {
			t.Errorf("expected session released once, got %d", s.Releases())
		}
	}
	if _, err := r.Listen(mono16(64)); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("expected ErrRegistryClosed, got %v", err)
	}
}
