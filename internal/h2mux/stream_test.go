package h2mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetachedStream(t *testing.T) (*Stream, *Connection, *frameRecorder) {
	t.Helper()
	c, rec := newTestConn(t, RoleClient)
	connect(t, c)
	s, err := c.NewStream()
	require.NoError(t, err)
	return s, c, rec
}

func TestStream_ReceiveFrame_ActivatesOnFirstFrame(t *testing.T) {
	s, _, _ := newDetachedStream(t)
	eff := s.receiveFrame(&HeadersFrame{FrameHeader: FrameHeader{Type: FrameHeaders, StreamID: s.ID()}})
	assert.True(t, eff.activated)
	assert.False(t, eff.closed)

	eff = s.receiveFrame(&DataFrame{FrameHeader: FrameHeader{Type: FrameData, StreamID: s.ID()}, Data: []byte("x")})
	assert.False(t, eff.activated, "activation is reported once")
	assert.False(t, eff.closed)
}

func TestStream_ReceiveFrame_RSTCloses(t *testing.T) {
	s, _, _ := newDetachedStream(t)
	eff := s.receiveFrame(&RSTStreamFrame{FrameHeader: FrameHeader{Type: FrameRSTStream, StreamID: s.ID()}, ErrorCode: ErrCodeCancel})
	assert.True(t, eff.activated)
	assert.True(t, eff.closed)
	assert.True(t, s.Closed())
}

func TestStream_ReceiveFrame_EndStreamBothWaysCloses(t *testing.T) {
	s, _, _ := newDetachedStream(t)
	require.NoError(t, s.SendData([]byte("ping"), true))
	assert.False(t, s.Closed(), "half-closed streams stay active")

	eff := s.receiveFrame(&DataFrame{
		FrameHeader: FrameHeader{Type: FrameData, Flags: FlagEndStream, StreamID: s.ID()},
		Data:        []byte("pong"),
	})
	assert.True(t, eff.closed)
	assert.True(t, s.Closed())
}

func TestStream_ReceiveFrame_WindowUpdate(t *testing.T) {
	s, _, _ := newDetachedStream(t)
	before := s.Window()
	s.receiveFrame(&WindowUpdateFrame{FrameHeader: FrameHeader{Type: FrameWindowUpdate, StreamID: s.ID()}, Increment: 500})
	assert.Equal(t, before+500, s.Window())
}

func TestStream_SendData_DecrementsOwnWindow(t *testing.T) {
	s, _, _ := newDetachedStream(t)
	before := s.Window()
	require.NoError(t, s.SendData(make([]byte, 1000), false))
	assert.Equal(t, before-1000, s.Window())
}

func TestStream_SendOnClosed(t *testing.T) {
	s, c, _ := newDetachedStream(t)
	require.NoError(t, s.SendData([]byte("bye"), true))
	require.NoError(t, feed(t, c, &DataFrame{
		FrameHeader: FrameHeader{Type: FrameData, Flags: FlagEndStream, StreamID: s.ID()},
		Data:        []byte("bye"),
	}))
	require.True(t, s.Closed())

	err := s.SendData([]byte("more"), false)
	require.Error(t, err)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, ErrCodeStreamClosed, streamErr.Code)
	assert.Equal(t, s.ID(), streamErr.StreamID)
}

func TestStream_SendRSTRetires(t *testing.T) {
	s, c, rec := newDetachedStream(t)
	require.NoError(t, s.SendData([]byte("partial"), false))
	require.Equal(t, uint32(1), c.ActiveStreams())

	require.NoError(t, s.SendFrame(&RSTStreamFrame{
		FrameHeader: FrameHeader{Type: FrameRSTStream, StreamID: s.ID()},
		ErrorCode:   ErrCodeCancel,
	}))
	assert.True(t, s.Closed())
	assert.Equal(t, uint32(0), c.ActiveStreams())
	require.Len(t, rec.rstFrames(), 1)
	assert.Equal(t, s.ID(), rec.rstFrames()[0].StreamID)
}

func TestStream_UpdateWindow_NegativeDelta(t *testing.T) {
	s, _, _ := newDetachedStream(t)
	s.updateWindow(-70000)
	assert.Equal(t, int64(65535-70000), s.Window())
	s.updateWindow(70000)
	assert.Equal(t, int64(65535), s.Window())
}

func TestStream_LateFrameAfterCloseIsInert(t *testing.T) {
	s, _, _ := newDetachedStream(t)
	s.receiveFrame(&RSTStreamFrame{FrameHeader: FrameHeader{Type: FrameRSTStream, StreamID: s.ID()}})
	eff := s.receiveFrame(&DataFrame{FrameHeader: FrameHeader{Type: FrameData, StreamID: s.ID()}, Data: []byte("late")})
	assert.False(t, eff.activated)
	assert.False(t, eff.closed)
}
