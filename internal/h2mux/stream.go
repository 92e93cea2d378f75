package h2mux

// Stream is one logical exchange multiplexed over a Connection. It owns its
// own send window. Full protocol state transitions live outside this core,
// so lifecycle here is reduced to what the connection must count: a stream
// becomes active on its first frame in either direction and closes once it
// has seen END_STREAM both ways or an RST_STREAM.
type Stream struct {
	conn   *Connection
	id     uint32
	weight uint32
	window int64

	active  bool
	closed  bool
	sentEnd bool
	recvEnd bool
}

func newStream(c *Connection, id, weight uint32, window int64) *Stream {
	return &Stream{
		conn:   c,
		id:     id,
		weight: weight,
		window: window,
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() uint32 { return s.id }

// Weight returns the stream's priority weight.
func (s *Stream) Weight() uint32 { return s.weight }

// Window returns the stream's send window. It may be negative after a
// SETTINGS-driven initial-window decrease.
func (s *Stream) Window() int64 { return s.window }

// Closed reports whether the stream has been retired.
func (s *Stream) Closed() bool { return s.closed }

// updateWindow applies a SETTINGS_INITIAL_WINDOW_SIZE delta. A negative
// delta may drive the window below zero; the stream then owes that much
// credit before it should send again.
func (s *Stream) updateWindow(delta int64) {
	s.window += delta
}

// streamEffects reports what one inbound frame did to the stream's
// lifecycle, for the connection to apply to its counters.
type streamEffects struct {
	activated bool
	closed    bool
}

// receiveFrame processes one inbound frame addressed to this stream.
func (s *Stream) receiveFrame(f Frame) streamEffects {
	var eff streamEffects
	if s.closed {
		return eff
	}
	if !s.active {
		s.active = true
		eff.activated = true
	}
	switch ff := f.(type) {
	case *WindowUpdateFrame:
		s.window += int64(ff.Increment)
	case *RSTStreamFrame:
		s.closed = true
	case *DataFrame:
		if ff.Flags&FlagEndStream != 0 {
			s.recvEnd = true
		}
	case *HeadersFrame:
		if ff.Flags&FlagEndStream != 0 {
			s.recvEnd = true
		}
	}
	if !s.closed && s.sentEnd && s.recvEnd {
		s.closed = true
	}
	eff.closed = s.closed
	return eff
}

// SendData queues payload for transmission on this stream, subject to
// connection-level flow control. endStream marks the final bytes of this
// stream's send side.
func (s *Stream) SendData(p []byte, endStream bool) error {
	var flags Flags
	if endStream {
		flags |= FlagEndStream
	}
	return s.SendFrame(&DataFrame{
		FrameHeader: FrameHeader{Type: FrameData, Flags: flags, StreamID: s.id, Length: uint32(len(p))},
		Data:        p,
	})
}

// SendFrame routes an outbound frame through the owning connection so DATA
// passes the flow-control queue; a stream never writes to the transport
// directly.
func (s *Stream) SendFrame(f Frame) error {
	if s.closed {
		return NewStreamError(s.id, ErrCodeStreamClosed, "send on closed stream")
	}
	if !s.active {
		s.active = true
		s.conn.streamActivated(s)
	}

	closing := false
	switch ff := f.(type) {
	case *DataFrame:
		s.window -= int64(len(ff.Data))
		if ff.Flags&FlagEndStream != 0 {
			s.sentEnd = true
		}
	case *HeadersFrame:
		if ff.Flags&FlagEndStream != 0 {
			s.sentEnd = true
		}
	case *RSTStreamFrame:
		closing = true
	}
	if s.sentEnd && s.recvEnd {
		closing = true
	}

	if err := s.conn.dispatch(f); err != nil {
		return err
	}
	if closing {
		s.closed = true
		s.conn.streamClosed(s)
	}
	return nil
}
