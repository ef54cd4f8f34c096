// Package bridge dispatches caller requests, one JSON object per line, to
// the stream registry and answers each with a reply record.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/birdofpreyru/audiostream/internal/audio"
	"github.com/birdofpreyru/audiostream/internal/events"
	"github.com/birdofpreyru/audiostream/internal/stream"
	"github.com/rs/zerolog"
)

const maxLineBytes = 1 << 20

// Request is one caller call. Params depend on Method.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type listenParams struct {
	StreamID      *float64 `json:"streamId"`
	AudioSource   int      `json:"audioSource"`
	SampleRate    int      `json:"sampleRate"`
	ChannelConfig int      `json:"channelConfig"`
	AudioFormat   int      `json:"audioFormat"`
	SamplingSize  int      `json:"samplingSize"`
}

type muteParams struct {
	StreamID float64 `json:"streamId"`
	Muted    bool    `json:"muted"`
}

type unlistenParams struct {
	StreamID float64 `json:"streamId"`
}

type Config struct {
	Registry *stream.Registry
	Driver   audio.Driver
	Emitter  *events.Emitter
	Logger   zerolog.Logger
}

type Bridge struct {
	registry *stream.Registry
	driver   audio.Driver
	emitter  *events.Emitter
	log      zerolog.Logger
}

func New(cfg Config) *Bridge {
	return &Bridge{
		registry: cfg.Registry,
		driver:   cfg.Driver,
		emitter:  cfg.Emitter,
		log:      cfg.Logger,
	}
}

// Serve handles requests from r until EOF or ctx is done. Requests are
// handled one at a time, in order.
func (b *Bridge) Serve(ctx context.Context, r io.Reader) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read requests: %w", err)
					}
				default:
				}
				return nil
			}
			if len(line) == 0 {
				continue
			}
			if err := b.handleLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (b *Bridge) handleLine(ctx context.Context, line []byte) error {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		b.log.Warn().Err(err).Msg("Malformed request")
		return b.emitter.Reply(events.Reply{Error: replyError(CodeInvalidArgument, err)})
	}
	return b.emitter.Reply(b.Handle(ctx, req))
}

// Handle runs one request and builds its reply.
func (b *Bridge) Handle(ctx context.Context, req Request) events.Reply {
	log := b.log.With().Int64("request", req.ID).Str("method", req.Method).Logger()
	log.Debug().Msg("Request")

	result, err := b.dispatch(ctx, req)
	if err != nil {
		code := codeOf(err)
		log.Warn().Err(err).Str("code", code.String()).Msg("Request failed")
		return events.Reply{ID: req.ID, Error: replyError(code, err)}
	}
	return events.Reply{ID: req.ID, Result: result}
}

func (b *Bridge) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case "configAudioSystem":
		return nil, nil

	case "getConstants":
		return audio.Constants(), nil

	case "getInputAvailable":
		available, err := b.driver.InputAvailable()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errOperationFailed, err)
		}
		return available, nil

	case "listen":
		var p listenParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		params := audio.Params{
			Source:        audio.Source(p.AudioSource),
			SampleRate:    p.SampleRate,
			ChannelConfig: audio.ChannelConfig(p.ChannelConfig),
			Format:        audio.Format(p.AudioFormat),
			SamplingSize:  p.SamplingSize,
		}
		if p.StreamID != nil {
			id, err := toStreamID(*p.StreamID)
			if err != nil {
				return nil, err
			}
			if err := b.registry.ListenWithID(id, params); err != nil {
				return nil, err
			}
			return int64(id), nil
		}
		id, err := b.registry.Listen(params)
		if err != nil {
			return nil, err
		}
		return int64(id), nil

	case "muteInputStream":
		var p muteParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		id, err := toStreamID(p.StreamID)
		if err != nil {
			return nil, err
		}
		return nil, b.registry.Mute(id, p.Muted)

	case "unlisten":
		var p unlistenParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		id, err := toStreamID(p.StreamID)
		if err != nil {
			return nil, err
		}
		return nil, b.registry.Unlisten(ctx, id)

	default:
		return nil, fmt.Errorf("%w: %s", errNotImplemented, req.Method)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", errInvalidArgument)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", errInvalidArgument, err)
	}
	return nil
}

// toStreamID accepts identities sent as double-precision numbers, which
// are exact only up to 2^53.
func toStreamID(f float64) (stream.StreamID, error) {
	if f != math.Trunc(f) || f < 1 || f > 1<<53 {
		return 0, fmt.Errorf("%w: stream id %v", errInvalidArgument, f)
	}
	return stream.StreamID(f), nil
}

var (
	errInvalidArgument = errors.New("invalid argument")
	errNotImplemented  = errors.New("not implemented")
	errOperationFailed = errors.New("operation failed")
)
