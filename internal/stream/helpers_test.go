package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/birdofpreyru/audiostream/internal/audio"
)

type chunkEvent struct {
	id   int
	data []byte
}

// recorder is a Sink that keeps copies of everything it receives.
type recorder struct {
	mu     sync.Mutex
	chunks map[StreamID][]chunkEvent
	errs   map[StreamID][]error
}

func newRecorder() *recorder {
	return &recorder{
		chunks: make(map[StreamID][]chunkEvent),
		errs:   make(map[StreamID][]error),
	}
}

func (r *recorder) Chunk(id StreamID, chunkID int, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks[id] = append(r.chunks[id], chunkEvent{id: chunkID, data: append([]byte(nil), data...)})
}

func (r *recorder) Error(id StreamID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[id] = append(r.errs[id], err)
}

func (r *recorder) chunksOf(id StreamID) []chunkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chunkEvent(nil), r.chunks[id]...)
}

func (r *recorder) errorsOf(id StreamID) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs[id]...)
}

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitClosed(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// assertSequential checks that chunk ids run 0, 1, 2, ... without gaps.
func assertSequential(t *testing.T, chunks []chunkEvent) {
	t.Helper()
	for i, c := range chunks {
		if c.id != i {
			t.Fatalf("chunk %d has id %d", i, c.id)
		}
	}
}

func mono16(samplingSize int) audio.Params {
	return audio.Params{
		Source:        audio.SourceMic,
		SampleRate:    44100,
		ChannelConfig: audio.ChannelInMono,
		Format:        audio.FormatPCM16Bit,
		SamplingSize:  samplingSize,
	}
}
