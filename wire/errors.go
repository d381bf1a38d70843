package wire

import (
	"errors"
	"fmt"
)

// Error kinds carried by RemoteError across the wire. A worker-side
// failure keeps its kind so the caller can tell an analysis problem
// from an infrastructure one.
const (
	KindError           = "error"
	KindPanic           = "panic"
	KindProtocol        = "protocol"
	KindUnknownFunction = "unknown-function"
	KindUnknownRoot     = "unknown-root"
	KindHandleNotFound  = "handle-not-found"
	KindNoSuchAttribute = "no-such-attribute"
	KindBadArgument     = "bad-argument"
)

// ErrHandleNotFound indicates a handle id that is not present in the
// registry expected to hold it. This is a programming error on the
// caller's part, never a fresh object.
var ErrHandleNotFound = errors.New("wire: handle not found")

// TransportError wraps a stream-level failure: the worker is gone or
// its pipe closed mid-exchange. Not recoverable by retrying on the
// same worker.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("wire: transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError indicates a malformed or unexpectedly shaped payload.
// It points at a codec or versioning bug, not at the analysis target.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RemoteError is a failure transported back from the worker. Kind and
// message survive the round trip so the caller sees the same failure
// it would have seen locally.
type RemoteError struct {
	Kind    string `cbor:"kind"`
	Message string `cbor:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

// Remote builds a RemoteError with the given kind.
func Remote(kind, format string, args ...any) *RemoteError {
	return &RemoteError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsRemote converts any error into a transportable RemoteError,
// preserving the concrete kind when the error already carries one.
func AsRemote(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, ErrHandleNotFound) {
		return &RemoteError{Kind: KindHandleNotFound, Message: err.Error()}
	}
	return &RemoteError{Kind: KindError, Message: err.Error()}
}

// IsTransport reports whether err is a stream-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
