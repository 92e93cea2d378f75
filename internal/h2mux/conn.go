package h2mux

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Role says which side of the connection this endpoint is. It fixes the
// parity of locally allocated stream ids.
type Role int

const (
	// RoleClient allocates odd stream ids starting at 1.
	RoleClient Role = iota
	// RoleServer allocates even stream ids starting at 2.
	RoleServer
)

// String returns the string representation of the Role.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return fmt.Sprintf("UNKNOWN_ROLE_%d", int(r))
	}
}

// State is the connection lifecycle state.
type State int

const (
	// StateNew means no connection-scoped frame has been processed yet.
	StateNew State = iota
	// StateConnected means the peer's first SETTINGS frame was applied.
	StateConnected
	// StateClosed is terminal; no further productive frame processing
	// occurs.
	StateClosed
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("UNKNOWN_STATE_%d", int(s))
	}
}

// Config carries the collaborators and knobs a Connection needs.
type Config struct {
	// Role selects stream-id parity.
	Role Role
	// Framer parses inbound bytes. Defaults to NewWireFramer().
	Framer Framer
	// Writer receives every frame cleared for transmission. Required.
	Writer FrameWriter
	// Logger, when non-nil, receives per-frame debug traces and state
	// transition events.
	Logger *zerolog.Logger
}

// Connection owns the per-connection multiplexing state: stream-id
// allocation, the concurrent-stream limit, the connection-wide flow-control
// window, SETTINGS negotiation and routing of inbound frames to either
// connection-scoped handling or a specific stream.
//
// A Connection is single-threaded by contract. Receive, NewStream and the
// stream send paths run to completion and must never be invoked
// concurrently with each other; hosts that multiplex many connections
// serialize access per instance. Streams are exclusively owned by their
// Connection.
type Connection struct {
	log    zerolog.Logger
	role   Role
	framer Framer
	writer FrameWriter

	state State
	err   error // recorded fatal error once state == StateClosed

	nextStreamID  uint32
	streamLimit   Limit
	activeStreams uint32
	streams       map[uint32]*Stream

	// window is the connection-level send credit for DATA payloads. It may
	// go negative, but only as the result of a SETTINGS-driven
	// initial-window decrease. It is not consulted while windowLimit is
	// unlimited.
	window int64
	// windowLimit is the last applied SETTINGS_INITIAL_WINDOW_SIZE, or
	// Unlimited once flow control has been disabled. Disabling is
	// permanent.
	windowLimit Limit
	sendBuf     []*DataFrame // DATA frames awaiting credit, FIFO
}

// NewConnection creates a Connection in StateNew.
func NewConnection(cfg Config) (*Connection, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("h2mux: Config.Writer is required")
	}
	framer := cfg.Framer
	if framer == nil {
		framer = NewWireFramer()
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "h2mux").Str("role", cfg.Role.String()).Logger()
	}
	nextStreamID := uint32(1)
	if cfg.Role == RoleServer {
		nextStreamID = 2
	}
	return &Connection{
		log:          log,
		role:         cfg.Role,
		framer:       framer,
		writer:       cfg.Writer,
		state:        StateNew,
		nextStreamID: nextStreamID,
		streamLimit:  Unlimited(),
		streams:      make(map[uint32]*Stream),
		window:       int64(DefaultInitialWindowSize),
		windowLimit:  Limited(DefaultInitialWindowSize),
	}, nil
}

// Role returns the connection's role.
func (c *Connection) Role() Role { return c.role }

// State returns the current lifecycle state.
func (c *Connection) State() State { return c.state }

// Err returns the fatal error recorded when the connection closed, or nil.
func (c *Connection) Err() error { return c.err }

// Window returns the connection-level send credit. The value is not
// meaningful once flow control has been disabled.
func (c *Connection) Window() int64 { return c.window }

// StreamLimit returns the negotiated concurrent-stream limit.
func (c *Connection) StreamLimit() Limit { return c.streamLimit }

// ActiveStreams returns the number of streams currently counted as active.
func (c *Connection) ActiveStreams() uint32 { return c.activeStreams }

// FlowControlEnabled reports whether connection-level flow control is still
// in effect.
func (c *Connection) FlowControlEnabled() bool { return !c.windowLimit.IsUnlimited() }

// BufferedAmount returns the total payload bytes of all DATA frames queued
// awaiting flow-control credit.
func (c *Connection) BufferedAmount() int {
	var n int
	for _, df := range c.sendBuf {
		n += len(df.Data)
	}
	return n
}

// NewStream allocates the next locally initiated stream. It fails with a
// *StreamLimitError when the concurrent-stream limit is reached; the caller
// may retry once a stream closes. Allocation never touches the connection
// state machine.
func (c *Connection) NewStream() (*Stream, error) {
	if c.state == StateClosed {
		return nil, c.err
	}
	if c.streamLimit.Reached(c.activeStreams) {
		return nil, &StreamLimitError{Limit: c.streamLimit.Value()}
	}
	id := c.nextStreamID
	c.nextStreamID += 2
	s := newStream(c, id, DefaultPriorityWeight, c.window)
	c.streams[id] = s
	c.log.Debug().Uint32("stream", id).Int64("window", s.window).Msg("stream allocated")
	return s, nil
}

// Receive feeds raw transport bytes through the framer and processes every
// complete frame in arrival order, run to completion. The first fatal
// violation closes the connection and is returned; unparsed bytes stay
// buffered, and once closed every subsequent frame re-signals the recorded
// error.
func (c *Connection) Receive(p []byte) error {
	c.framer.Append(p)
	for {
		f, err := c.framer.Parse()
		if err != nil {
			return c.connectionError(ErrCodeProtocolError, fmt.Sprintf("malformed frame: %v", err))
		}
		if f == nil {
			return nil
		}
		if err := c.processFrame(f); err != nil {
			return err
		}
	}
}

func (c *Connection) processFrame(f Frame) error {
	fh := f.Header()
	c.log.Debug().Stringer("type", fh.Type).Uint32("stream", fh.StreamID).Uint32("length", fh.Length).Msg("frame received")

	if c.state == StateClosed {
		return c.err
	}
	if fh.StreamID == 0 || fh.Type == FrameSettings {
		return c.processConnectionFrame(f)
	}
	s, ok := c.streams[fh.StreamID]
	if !ok {
		return c.connectionError(ErrCodeProtocolError, fmt.Sprintf("frame for unknown stream %d", fh.StreamID))
	}
	eff := s.receiveFrame(f)
	c.applyEffects(s, eff)
	return nil
}

// processConnectionFrame handles frames addressed to the connection itself.
// In StateNew only a SETTINGS frame on stream 0 is acceptable; in
// StateConnected SETTINGS and WINDOW_UPDATE are handled and everything else
// is a protocol error.
func (c *Connection) processConnectionFrame(f Frame) error {
	switch c.state {
	case StateNew:
		sf, ok := f.(*SettingsFrame)
		if !ok {
			return c.connectionError(ErrCodeProtocolError, fmt.Sprintf("%s received before SETTINGS", f.Header().Type))
		}
		if err := c.applySettings(sf); err != nil {
			return err
		}
		c.state = StateConnected
		c.log.Info().Msg("connection established")
		return nil
	case StateConnected:
		switch ff := f.(type) {
		case *SettingsFrame:
			return c.applySettings(ff)
		case *WindowUpdateFrame:
			return c.handleWindowUpdate(ff)
		default:
			return c.connectionError(ErrCodeProtocolError, fmt.Sprintf("unexpected %s on stream 0", f.Header().Type))
		}
	default:
		return c.err
	}
}

// handleWindowUpdate credits the connection window and resumes draining.
func (c *Connection) handleWindowUpdate(f *WindowUpdateFrame) error {
	if !c.FlowControlEnabled() {
		return c.connectionError(ErrCodeFlowControlError, "WINDOW_UPDATE after flow control was disabled")
	}
	next := c.window + int64(f.Increment)
	if next > MaxWindowSize {
		return c.connectionError(ErrCodeFlowControlError, fmt.Sprintf("window %d + increment %d exceeds %d", c.window, f.Increment, MaxWindowSize))
	}
	c.window = next
	c.log.Debug().Uint32("increment", f.Increment).Int64("window", c.window).Msg("connection window updated")
	return c.drainSendBuffer()
}

// applySettings applies each settings pair independently, in the order
// received. Unrecognized identifiers are ignored.
func (c *Connection) applySettings(f *SettingsFrame) error {
	if f.StreamID != 0 {
		return c.connectionError(ErrCodeProtocolError, fmt.Sprintf("SETTINGS on stream %d", f.StreamID))
	}
	for _, s := range f.Settings {
		switch s.ID {
		case SettingMaxConcurrentStreams:
			c.streamLimit = Limited(s.Value)
			c.log.Debug().Uint32("limit", s.Value).Msg("stream limit updated")
		case SettingInitialWindowSize:
			if !c.FlowControlEnabled() {
				return c.connectionError(ErrCodeFlowControlError, "INITIAL_WINDOW_SIZE change after flow control was disabled")
			}
			// The delta shifts the connection window and every live
			// stream's window, preserving each relative surplus or
			// deficit. The result may be negative.
			delta := int64(s.Value) - int64(c.windowLimit.Value())
			c.window += delta
			for _, st := range c.streams {
				st.updateWindow(delta)
			}
			c.windowLimit = Limited(s.Value)
			c.log.Debug().Int64("delta", delta).Int64("window", c.window).Msg("initial window size updated")
		case SettingFlowControlOptions:
			if s.Value&0x1 == 0 {
				continue
			}
			if !c.FlowControlEnabled() {
				return c.connectionError(ErrCodeFlowControlError, "flow control already disabled")
			}
			c.windowLimit = Unlimited()
			c.log.Info().Msg("flow control disabled")
		default:
			c.log.Debug().Stringer("setting", s.ID).Uint32("value", s.Value).Msg("ignoring unrecognized setting")
		}
	}
	return c.drainSendBuffer()
}

// dispatch is the single outbound path. Anything that is not a DATA frame
// is forwarded to the transport immediately; DATA joins the flow-control
// queue.
func (c *Connection) dispatch(f Frame) error {
	df, ok := f.(*DataFrame)
	if !ok {
		c.log.Debug().Stringer("type", f.Header().Type).Uint32("stream", f.Header().StreamID).Msg("frame sent")
		return c.writer.WriteFrame(f)
	}
	c.sendBuf = append(c.sendBuf, df)
	return c.drainSendBuffer()
}

// drainSendBuffer sends queued DATA while connection credit remains,
// splitting the head frame when only part of it fits. The sent chunk keeps
// the original's stream id and flags minus END_STREAM; the remainder keeps
// the original metadata and returns to the head of the queue so no
// later-queued frame can overtake it.
func (c *Connection) drainSendBuffer() error {
	for len(c.sendBuf) > 0 {
		limited := c.FlowControlEnabled()
		if limited && c.window <= 0 {
			return nil
		}
		df := c.sendBuf[0]
		size := int64(len(df.Data))
		if limited && size > c.window {
			n := c.window
			chunk := &DataFrame{
				FrameHeader: FrameHeader{Type: FrameData, Flags: df.Flags &^ FlagEndStream, StreamID: df.StreamID, Length: uint32(n)},
				Data:        df.Data[:n],
			}
			rest := &DataFrame{
				FrameHeader: FrameHeader{Type: FrameData, Flags: df.Flags, StreamID: df.StreamID, Length: uint32(size - n)},
				Data:        df.Data[n:],
			}
			c.sendBuf[0] = rest
			c.window = 0
			c.log.Debug().Uint32("stream", df.StreamID).Int64("sent", n).Int64("remaining", size-n).Msg("DATA frame split")
			if err := c.writer.WriteFrame(chunk); err != nil {
				return err
			}
			continue
		}
		c.sendBuf = c.sendBuf[1:]
		if limited {
			c.window -= size
		}
		c.log.Debug().Uint32("stream", df.StreamID).Int64("sent", size).Int64("window", c.window).Msg("DATA frame sent")
		if err := c.writer.WriteFrame(df); err != nil {
			return err
		}
	}
	return nil
}

// connectionError signals a fatal violation. The first call notifies the
// peer with a connection-scoped RST carrying the error kind and moves the
// connection to StateClosed; calls while already closed signal the failure
// without a second notification.
func (c *Connection) connectionError(code ErrorCode, msg string) error {
	err := NewConnectionError(code, msg)
	if c.state == StateClosed {
		return err
	}
	c.log.Error().Stringer("code", code).Msg(msg)
	rst := &RSTStreamFrame{
		FrameHeader: FrameHeader{Type: FrameRSTStream, StreamID: 0, Length: 4},
		ErrorCode:   code,
	}
	if werr := c.dispatch(rst); werr != nil {
		c.log.Error().Err(werr).Msg("failed to send RST notification")
	}
	c.state = StateClosed
	c.err = err
	return err
}

func (c *Connection) applyEffects(s *Stream, eff streamEffects) {
	if eff.activated {
		c.streamActivated(s)
	}
	if eff.closed {
		c.streamClosed(s)
	}
}

func (c *Connection) streamActivated(s *Stream) {
	c.activeStreams++
	c.log.Debug().Uint32("stream", s.id).Uint32("active", c.activeStreams).Msg("stream active")
}

// streamClosed retires the stream: the active count drops and the map entry
// is removed so closed streams do not accumulate.
func (c *Connection) streamClosed(s *Stream) {
	if c.activeStreams > 0 {
		c.activeStreams--
	}
	delete(c.streams, s.id)
	c.log.Debug().Uint32("stream", s.id).Uint32("active", c.activeStreams).Msg("stream closed")
}
