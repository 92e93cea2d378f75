package h2mux

import "fmt"

// ErrorCode identifies the kind of a protocol violation. The set is closed:
// every failure this package signals maps to one of these values, and the
// connection-scoped RST notification carries the value on the wire.
type ErrorCode uint32

const (
	// ErrCodeNoError (0x0): graceful shutdown.
	ErrCodeNoError ErrorCode = 0x0
	// ErrCodeProtocolError (0x1): generic spec violation.
	ErrCodeProtocolError ErrorCode = 0x1
	// ErrCodeInternalError (0x2): implementation fault.
	ErrCodeInternalError ErrorCode = 0x2
	// ErrCodeFlowControlError (0x3): flow-control misuse.
	ErrCodeFlowControlError ErrorCode = 0x3
	// ErrCodeStreamClosed (0x5): frame for an already closed stream.
	ErrCodeStreamClosed ErrorCode = 0x5
	// ErrCodeFrameSizeError (0x6): frame length incorrect for its type.
	ErrCodeFrameSizeError ErrorCode = 0x6
	// ErrCodeRefusedStream (0x7): stream not processed.
	ErrCodeRefusedStream ErrorCode = 0x7
	// ErrCodeCancel (0x8): stream cancelled.
	ErrCodeCancel ErrorCode = 0x8
)

// String returns the string representation of the ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrCodeNoError:
		return "NO_ERROR"
	case ErrCodeProtocolError:
		return "PROTOCOL_ERROR"
	case ErrCodeInternalError:
		return "INTERNAL_ERROR"
	case ErrCodeFlowControlError:
		return "FLOW_CONTROL_ERROR"
	case ErrCodeStreamClosed:
		return "STREAM_CLOSED"
	case ErrCodeFrameSizeError:
		return "FRAME_SIZE_ERROR"
	case ErrCodeRefusedStream:
		return "REFUSED_STREAM"
	case ErrCodeCancel:
		return "CANCEL"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR_CODE_%d", uint32(e))
	}
}

// ConnectionError is a connection-fatal violation. Observing one means the
// Connection has moved to StateClosed and must be torn down by the host.
type ConnectionError struct {
	Code  ErrorCode
	Msg   string
	Cause error
}

// Error returns a string representation of the ConnectionError.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s (code %s, %d): %s", e.Msg, e.Code.String(), e.Code, e.Cause)
	}
	return fmt.Sprintf("connection error: %s (code %s, %d)", e.Msg, e.Code.String(), e.Code)
}

// Unwrap returns the underlying cause of the error, if any.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(code ErrorCode, msg string) *ConnectionError {
	return &ConnectionError{Code: code, Msg: msg}
}

// NewConnectionErrorWithCause creates a new ConnectionError with an underlying cause.
func NewConnectionErrorWithCause(code ErrorCode, msg string, cause error) *ConnectionError {
	return &ConnectionError{Code: code, Msg: msg, Cause: cause}
}

// StreamError is an error scoped to a single stream. Unlike a
// ConnectionError it does not affect the connection state machine.
type StreamError struct {
	StreamID uint32
	Code     ErrorCode
	Msg      string
}

// Error returns a string representation of the StreamError.
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error on stream %d: %s (code %s, %d)", e.StreamID, e.Msg, e.Code.String(), e.Code)
}

// NewStreamError creates a new StreamError.
func NewStreamError(streamID uint32, code ErrorCode, msg string) *StreamError {
	return &StreamError{StreamID: streamID, Code: code, Msg: msg}
}

// StreamLimitError is returned by stream allocation when the peer's
// concurrent-stream limit is reached. It is local and recoverable: the
// connection state is unaffected and the caller may retry once a stream
// closes.
type StreamLimitError struct {
	Limit uint32
}

// Error returns a string representation of the StreamLimitError.
func (e *StreamLimitError) Error() string {
	return fmt.Sprintf("concurrent stream limit %d reached", e.Limit)
}
