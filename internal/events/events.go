// Package events turns stream callbacks and bridge replies into records on
// a shared output writer.
package events

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/birdofpreyru/audiostream/internal/stream"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Event names seen by callers.
const (
	AudioChunk       = "RNA_AudioChunk"
	InputStreamError = "RNA_InputAudioStreamError"
)

// Record types.
const (
	TypeEvent = "event"
	TypeReply = "reply"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// ChunkEvent carries one chunk, base64 encoded without line wrapping.
type ChunkEvent struct {
	Type     string `json:"type" msgpack:"type"`
	Event    string `json:"event" msgpack:"event"`
	StreamID int64  `json:"streamId" msgpack:"streamId"`
	ChunkID  int    `json:"chunkId" msgpack:"chunkId"`
	Data     string `json:"data" msgpack:"data"`
}

type ErrorEvent struct {
	Type     string `json:"type" msgpack:"type"`
	Event    string `json:"event" msgpack:"event"`
	StreamID int64  `json:"streamId" msgpack:"streamId"`
	Error    string `json:"error" msgpack:"error"`
}

// Reply answers one bridge request.
type Reply struct {
	Type   string      `json:"type" msgpack:"type"`
	ID     int64       `json:"id" msgpack:"id"`
	Result any         `json:"result,omitempty" msgpack:"result,omitempty"`
	Error  *ReplyError `json:"error,omitempty" msgpack:"error,omitempty"`
}

type ReplyError struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

type encoder interface {
	Encode(v any) error
}

// Emitter writes records to one writer. It implements stream.Sink and is
// safe for concurrent use.
type Emitter struct {
	mu  sync.Mutex
	enc encoder
	log zerolog.Logger
}

var _ stream.Sink = (*Emitter)(nil)

// NewEmitter returns an Emitter writing format records to w.
func NewEmitter(w io.Writer, format string, log zerolog.Logger) (*Emitter, error) {
	var enc encoder
	switch format {
	case FormatJSON, "":
		enc = json.NewEncoder(w)
	case FormatMsgpack:
		enc = msgpack.NewEncoder(w)
	default:
		return nil, fmt.Errorf("unknown event format %q", format)
	}
	return &Emitter{enc: enc, log: log}, nil
}

func (e *Emitter) write(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(v)
}

func (e *Emitter) Chunk(id stream.StreamID, chunkID int, data []byte) {
	err := e.write(ChunkEvent{
		Type:     TypeEvent,
		Event:    AudioChunk,
		StreamID: int64(id),
		ChunkID:  chunkID,
		Data:     base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		e.log.Error().Err(err).Int64("stream", int64(id)).Int("chunk", chunkID).Msg("Failed to emit chunk")
	}
}

func (e *Emitter) Error(id stream.StreamID, streamErr error) {
	err := e.write(ErrorEvent{
		Type:     TypeEvent,
		Event:    InputStreamError,
		StreamID: int64(id),
		Error:    streamErr.Error(),
	})
	if err != nil {
		e.log.Error().Err(err).Int64("stream", int64(id)).Msg("Failed to emit stream error")
	}
}

// Reply writes r, filling in its record type.
func (e *Emitter) Reply(r Reply) error {
	r.Type = TypeReply
	return e.write(r)
}
