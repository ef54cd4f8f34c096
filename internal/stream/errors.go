package stream

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStream   = errors.New("unknown stream id")
	ErrStreamExists    = errors.New("stream id already in use")
	ErrInvalidStreamID = errors.New("stream id must exceed every previously issued id")
	ErrStopped         = errors.New("stream already stopped")
	ErrRegistryClosed  = errors.New("registry closed")
)

// Kind classifies a failure reported by an engine.
type Kind int

const (
	// ConfigError means the capture parameters could not be resolved.
	ConfigError Kind = iota
	// InitError means the device session never became ready.
	InitError
	// ReadError means a blocking read failed while capturing.
	ReadError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "configuration error"
	case InitError:
		return "initialization error"
	case ReadError:
		return "read error"
	default:
		return "unknown error"
	}
}

// Error is a terminal engine failure. It only ever reaches callers through
// the error event.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
