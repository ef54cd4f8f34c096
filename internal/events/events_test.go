package events

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/birdofpreyru/audiostream/internal/stream"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

func TestEmitterJSONChunk(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEmitter(&buf, FormatJSON, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}

	data := []byte{0x00, 0x01, 0xfe, 0xff}
	e.Chunk(3, 7, data)

	var got ChunkEvent
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if got.Type != TypeEvent || got.Event != AudioChunk {
		t.Errorf("unexpected record header: %+v", got)
	}
	if got.StreamID != 3 || got.ChunkID != 7 {
		t.Errorf("expected stream 3 chunk 7, got stream %d chunk %d", got.StreamID, got.ChunkID)
	}
	decoded, err := base64.StdEncoding.DecodeString(got.Data)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("expected payload %x, got %x", data, decoded)
	}
}

func TestEmitterJSONError(t *testing.T) {
	var buf bytes.Buffer
	e, _ := NewEmitter(&buf, FormatJSON, zerolog.Nop())

	e.Error(2, &stream.Error{Kind: stream.InitError, Err: errors.New("device busy")})

	var got ErrorEvent
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Event != InputStreamError || got.StreamID != 2 {
		t.Errorf("unexpected event: %+v", got)
	}
	if got.Error != "initialization error: device busy" {
		t.Errorf("unexpected error text %q", got.Error)
	}
}

func TestEmitterMsgpack(t *testing.T) {
	var buf bytes.Buffer
	e, err := NewEmitter(&buf, FormatMsgpack, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}

	e.Chunk(1, 0, []byte("abc"))
	if err := e.Reply(Reply{ID: 9, Error: &ReplyError{Code: "X", Message: "y"}}); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	dec := msgpack.NewDecoder(&buf)
	var chunk ChunkEvent
	if err := dec.Decode(&chunk); err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if chunk.Event != AudioChunk || chunk.Data != base64.StdEncoding.EncodeToString([]byte("abc")) {
		t.Errorf("unexpected chunk record: %+v", chunk)
	}

	var reply Reply
	if err := dec.Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Type != TypeReply || reply.ID != 9 || reply.Error == nil || reply.Error.Code != "X" {
		t.Errorf("unexpected reply record: %+v", reply)
	}
}

func TestEmitterUnknownFormat(t *testing.T) {
	if _, err := NewEmitter(&bytes.Buffer{}, "xml", zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestEmitterConcurrentWritesStayFramed(t *testing.T) {
	var buf bytes.Buffer
	e, _ := NewEmitter(&buf, FormatJSON, zerolog.Nop())

	var wg sync.WaitGroup
	for s := 1; s <= 4; s++ {
		wg.Add(1)
		go func(id stream.StreamID) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e.Chunk(id, i, bytes.Repeat([]byte{byte(i)}, 256))
			}
		}(stream.StreamID(s))
	}
	wg.Wait()

	next := make(map[int64]int)
	scanner := bufio.NewScanner(strings.NewReader(buf.String()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		var ev ChunkEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d is not a record: %v", lines, err)
		}
		if ev.ChunkID != next[ev.StreamID] {
			t.Fatalf("stream %d: expected chunk %d, got %d", ev.StreamID, next[ev.StreamID], ev.ChunkID)
		}
		next[ev.StreamID]++
		lines++
	}
	if lines != 200 {
		t.Errorf("expected 200 records, got %d", lines)
	}
}
