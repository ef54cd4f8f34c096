package bridge

import (
	"context"
	"errors"

	"github.com/birdofpreyru/audiostream/internal/events"
	"github.com/birdofpreyru/audiostream/internal/stream"
)

const logTag = "RN_AUDIO"

// Code is the stable failure class of a reply.
type Code string

const (
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotImplemented  Code = "NOT_IMPLEMENTED"
	CodeOperationFailed Code = "OPERATION_FAILED"
	CodeUnknownStream   Code = "UNKNOWN_STREAM_ID"
)

func (c Code) String() string {
	return logTag + ":" + string(c)
}

func codeOf(err error) Code {
	switch {
	case errors.Is(err, stream.ErrUnknownStream):
		return CodeUnknownStream
	case errors.Is(err, errInvalidArgument),
		errors.Is(err, stream.ErrInvalidStreamID),
		errors.Is(err, stream.ErrStreamExists):
		return CodeInvalidArgument
	case errors.Is(err, errNotImplemented):
		return CodeNotImplemented
	case errors.Is(err, errOperationFailed),
		errors.Is(err, stream.ErrRegistryClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return CodeOperationFailed
	default:
		return CodeInternal
	}
}

func replyError(code Code, err error) *events.ReplyError {
	return &events.ReplyError{Code: code.String(), Message: err.Error()}
}
