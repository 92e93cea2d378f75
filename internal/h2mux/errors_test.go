package h2mux

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeNoError, "NO_ERROR"},
		{ErrCodeProtocolError, "PROTOCOL_ERROR"},
		{ErrCodeInternalError, "INTERNAL_ERROR"},
		{ErrCodeFlowControlError, "FLOW_CONTROL_ERROR"},
		{ErrCodeStreamClosed, "STREAM_CLOSED"},
		{ErrCodeFrameSizeError, "FRAME_SIZE_ERROR"},
		{ErrCodeRefusedStream, "REFUSED_STREAM"},
		{ErrCodeCancel, "CANCEL"},
		{ErrorCode(0xFF), "UNKNOWN_ERROR_CODE_255"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.String())
	}
}

func TestConnectionError_Error(t *testing.T) {
	err := NewConnectionError(ErrCodeProtocolError, "bad frame")
	assert.Contains(t, err.Error(), "bad frame")
	assert.Contains(t, err.Error(), "PROTOCOL_ERROR")
	assert.Nil(t, errors.Unwrap(err))
}

func TestConnectionError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("io failure")
	err := NewConnectionErrorWithCause(ErrCodeInternalError, "write failed", cause)
	assert.Contains(t, err.Error(), "io failure")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestStreamError_Error(t *testing.T) {
	err := NewStreamError(7, ErrCodeStreamClosed, "send on closed stream")
	assert.Contains(t, err.Error(), "stream 7")
	assert.Contains(t, err.Error(), "STREAM_CLOSED")
}

func TestStreamLimitError_Error(t *testing.T) {
	err := &StreamLimitError{Limit: 4}
	require.EqualError(t, err, "concurrent stream limit 4 reached")
}
