// Package transcription adapts an external speech-to-text service. Clients
// never retry; the caller decides what a failure means.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
)

type Client interface {
	// Transcribe streams r to the service and returns the recognised text.
	// filename is a hint for the service's format detection.
	Transcribe(ctx context.Context, r io.Reader, filename, model string) (string, error)
}

type Kind int

const (
	KindUnavailable Kind = iota + 1
	KindInvalidInput
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind carried by err, or 0 when err is not a
// transcription error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// classifyTransport turns an error from the HTTP round trip into a kind.
func classifyTransport(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, err)
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return newError(KindTimeout, err)
	}
	return newError(KindUnavailable, err)
}
