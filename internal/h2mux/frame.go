package h2mux

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameType represents an HTTP/2 frame type.
type FrameType uint8

const (
	// FrameData is for DATA frames (0x0).
	FrameData FrameType = 0x0
	// FrameHeaders is for HEADERS frames (0x1).
	FrameHeaders FrameType = 0x1
	// FramePriority is for PRIORITY frames (0x2).
	FramePriority FrameType = 0x2
	// FrameRSTStream is for RST_STREAM frames (0x3).
	FrameRSTStream FrameType = 0x3
	// FrameSettings is for SETTINGS frames (0x4).
	FrameSettings FrameType = 0x4
	// FramePushPromise is for PUSH_PROMISE frames (0x5).
	FramePushPromise FrameType = 0x5
	// FramePing is for PING frames (0x6).
	FramePing FrameType = 0x6
	// FrameGoAway is for GOAWAY frames (0x7).
	FrameGoAway FrameType = 0x7
	// FrameWindowUpdate is for WINDOW_UPDATE frames (0x8).
	FrameWindowUpdate FrameType = 0x8
	// FrameContinuation is for CONTINUATION frames (0x9).
	FrameContinuation FrameType = 0x9
)

// String returns the string representation of the FrameType.
func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FramePriority:
		return "PRIORITY"
	case FrameRSTStream:
		return "RST_STREAM"
	case FrameSettings:
		return "SETTINGS"
	case FramePushPromise:
		return "PUSH_PROMISE"
	case FramePing:
		return "PING"
	case FrameGoAway:
		return "GOAWAY"
	case FrameWindowUpdate:
		return "WINDOW_UPDATE"
	case FrameContinuation:
		return "CONTINUATION"
	default:
		return fmt.Sprintf("UNKNOWN_FRAME_TYPE_%d", uint8(t))
	}
}

// Flags represents flags for an HTTP/2 frame.
type Flags uint8

const (
	// FlagEndStream marks the final DATA or HEADERS frame of a stream's
	// send side.
	FlagEndStream Flags = 0x1
)

// SettingID represents a SETTINGS parameter identifier.
type SettingID uint16

const (
	// SettingMaxConcurrentStreams (0x4): maximum number of concurrently
	// active streams the sender will permit.
	SettingMaxConcurrentStreams SettingID = 0x4
	// SettingInitialWindowSize (0x7): initial window size for flow control.
	SettingInitialWindowSize SettingID = 0x7
	// SettingFlowControlOptions (0xA): bit 0 set disables flow control for
	// the connection, permanently.
	SettingFlowControlOptions SettingID = 0xA
)

// String returns the string representation of the SettingID.
func (s SettingID) String() string {
	switch s {
	case SettingMaxConcurrentStreams:
		return "SETTINGS_MAX_CONCURRENT_STREAMS"
	case SettingInitialWindowSize:
		return "SETTINGS_INITIAL_WINDOW_SIZE"
	case SettingFlowControlOptions:
		return "SETTINGS_FLOW_CONTROL_OPTIONS"
	default:
		return fmt.Sprintf("UNKNOWN_SETTING_ID_%d", uint16(s))
	}
}

const (
	// FrameHeaderLen is the length of the frame header.
	FrameHeaderLen = 9

	// DefaultInitialWindowSize is the default flow-control window (2^16 - 1).
	DefaultInitialWindowSize uint32 = 65535

	// DefaultPriorityWeight is the priority weight assigned to newly
	// allocated streams. It is an arbitrary high default, not a negotiated
	// value.
	DefaultPriorityWeight uint32 = 1 << 30

	// MaxWindowSize is the maximum value a flow-control window can reach
	// (2^31 - 1).
	MaxWindowSize = (1 << 31) - 1
)

// FrameHeader represents the 9-octet header common to all frames.
type FrameHeader struct {
	Length   uint32    // 24 bits
	Type     FrameType // 8 bits
	Flags    Flags     // 8 bits
	StreamID uint32    // 31 bits (R bit masked out); 0 = connection-scoped
}

func decodeFrameHeader(p []byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]),
		Type:     FrameType(p[3]),
		Flags:    Flags(p[4]),
		StreamID: binary.BigEndian.Uint32(p[5:9]) & 0x7FFFFFFF,
	}
}

// WriteTo serializes the frame header to w.
func (fh *FrameHeader) WriteTo(w io.Writer) (int64, error) {
	var raw [FrameHeaderLen]byte
	raw[0] = byte(fh.Length >> 16 & 0xFF)
	raw[1] = byte(fh.Length >> 8 & 0xFF)
	raw[2] = byte(fh.Length & 0xFF)
	raw[3] = byte(fh.Type)
	raw[4] = byte(fh.Flags)
	binary.BigEndian.PutUint32(raw[5:9], fh.StreamID&0x7FFFFFFF)

	n, err := w.Write(raw[:])
	return int64(n), err
}

// Frame is the value record the framer produces and consumes. StreamID 0
// addresses the connection itself.
type Frame interface {
	Header() *FrameHeader
	ParsePayload(p []byte, header FrameHeader) error
	WritePayload(w io.Writer) (int64, error)
	PayloadLen() uint32
}

// DataFrame carries a stream's payload bytes and is the only frame type
// subject to connection-level flow control.
type DataFrame struct {
	FrameHeader
	Data []byte
}

func (f *DataFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *DataFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	if header.StreamID == 0 {
		return NewConnectionError(ErrCodeProtocolError, "received DATA on stream 0")
	}
	f.Data = append([]byte(nil), p...)
	return nil
}

func (f *DataFrame) WritePayload(w io.Writer) (int64, error) {
	n, err := w.Write(f.Data)
	return int64(n), err
}

func (f *DataFrame) PayloadLen() uint32 {
	return uint32(len(f.Data))
}

// HeadersFrame carries an opaque header block fragment. Header compression
// is outside this package; the fragment is not interpreted here.
type HeadersFrame struct {
	FrameHeader
	HeaderBlockFragment []byte
}

func (f *HeadersFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *HeadersFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	if header.StreamID == 0 {
		return NewConnectionError(ErrCodeProtocolError, "received HEADERS on stream 0")
	}
	f.HeaderBlockFragment = append([]byte(nil), p...)
	return nil
}

func (f *HeadersFrame) WritePayload(w io.Writer) (int64, error) {
	n, err := w.Write(f.HeaderBlockFragment)
	return int64(n), err
}

func (f *HeadersFrame) PayloadLen() uint32 {
	return uint32(len(f.HeaderBlockFragment))
}

// RSTStreamFrame terminates a stream, or on stream 0 notifies the peer of a
// connection-fatal violation.
type RSTStreamFrame struct {
	FrameHeader
	ErrorCode ErrorCode
}

func (f *RSTStreamFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *RSTStreamFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	if header.Length != 4 {
		return NewConnectionError(ErrCodeFrameSizeError, fmt.Sprintf("RST_STREAM frame payload must be 4 bytes, got %d", header.Length))
	}
	f.ErrorCode = ErrorCode(binary.BigEndian.Uint32(p))
	return nil
}

func (f *RSTStreamFrame) WritePayload(w io.Writer) (int64, error) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(f.ErrorCode))
	n, err := w.Write(buf[:])
	return int64(n), err
}

func (f *RSTStreamFrame) PayloadLen() uint32 {
	return 4
}

// Setting is a single key/value pair in a SETTINGS frame. Order is
// significant: pairs are applied in the order received.
type Setting struct {
	ID    SettingID
	Value uint32
}

const settingEntrySize = 6 // 2 bytes for ID, 4 bytes for Value

// SettingsFrame carries connection-scoped negotiation parameters.
type SettingsFrame struct {
	FrameHeader
	Settings []Setting
}

func (f *SettingsFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *SettingsFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	if header.Length%settingEntrySize != 0 {
		return NewConnectionError(ErrCodeFrameSizeError, fmt.Sprintf("SETTINGS frame payload length %d is not a multiple of %d", header.Length, settingEntrySize))
	}
	numSettings := int(header.Length) / settingEntrySize
	f.Settings = make([]Setting, 0, numSettings)
	for i := 0; i < numSettings; i++ {
		off := i * settingEntrySize
		f.Settings = append(f.Settings, Setting{
			ID:    SettingID(binary.BigEndian.Uint16(p[off : off+2])),
			Value: binary.BigEndian.Uint32(p[off+2 : off+6]),
		})
	}
	return nil
}

func (f *SettingsFrame) WritePayload(w io.Writer) (int64, error) {
	var totalN int64
	buf := make([]byte, settingEntrySize)
	for _, s := range f.Settings {
		binary.BigEndian.PutUint16(buf[0:2], uint16(s.ID))
		binary.BigEndian.PutUint32(buf[2:6], s.Value)
		n, err := w.Write(buf)
		totalN += int64(n)
		if err != nil {
			return totalN, err
		}
	}
	return totalN, nil
}

func (f *SettingsFrame) PayloadLen() uint32 {
	return uint32(len(f.Settings) * settingEntrySize)
}

// PingFrame carries 8 opaque bytes for liveness measurement.
type PingFrame struct {
	FrameHeader
	OpaqueData [8]byte
}

func (f *PingFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *PingFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	if header.Length != 8 {
		return NewConnectionError(ErrCodeFrameSizeError, fmt.Sprintf("PING frame payload must be 8 bytes, got %d", header.Length))
	}
	copy(f.OpaqueData[:], p)
	return nil
}

func (f *PingFrame) WritePayload(w io.Writer) (int64, error) {
	n, err := w.Write(f.OpaqueData[:])
	return int64(n), err
}

func (f *PingFrame) PayloadLen() uint32 {
	return 8
}

// GoAwayFrame announces that the sender will process no further streams.
type GoAwayFrame struct {
	FrameHeader
	LastStreamID uint32 // 31 bits (R bit masked out)
	ErrorCode    ErrorCode
}

func (f *GoAwayFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *GoAwayFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	if header.Length < 8 {
		return NewConnectionError(ErrCodeFrameSizeError, fmt.Sprintf("GOAWAY frame payload must be at least 8 bytes, got %d", header.Length))
	}
	f.LastStreamID = binary.BigEndian.Uint32(p[0:4]) & 0x7FFFFFFF
	f.ErrorCode = ErrorCode(binary.BigEndian.Uint32(p[4:8]))
	return nil
}

func (f *GoAwayFrame) WritePayload(w io.Writer) (int64, error) {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], f.LastStreamID&0x7FFFFFFF)
	binary.BigEndian.PutUint32(buf[4:8], uint32(f.ErrorCode))
	n, err := w.Write(buf[:])
	return int64(n), err
}

func (f *GoAwayFrame) PayloadLen() uint32 {
	return 8
}

// WindowUpdateFrame grants flow-control credit to the receiver.
type WindowUpdateFrame struct {
	FrameHeader
	Increment uint32 // 31 bits (R bit masked out)
}

func (f *WindowUpdateFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *WindowUpdateFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	if header.Length != 4 {
		return NewConnectionError(ErrCodeFrameSizeError, fmt.Sprintf("WINDOW_UPDATE frame payload must be 4 bytes, got %d", header.Length))
	}
	f.Increment = binary.BigEndian.Uint32(p) & 0x7FFFFFFF
	return nil
}

func (f *WindowUpdateFrame) WritePayload(w io.Writer) (int64, error) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], f.Increment&0x7FFFFFFF)
	n, err := w.Write(buf[:])
	return int64(n), err
}

func (f *WindowUpdateFrame) PayloadLen() uint32 {
	return 4
}

// UnknownFrame holds a frame whose type this package does not interpret.
// The payload is kept opaque.
type UnknownFrame struct {
	FrameHeader
	Payload []byte
}

func (f *UnknownFrame) Header() *FrameHeader { return &f.FrameHeader }

func (f *UnknownFrame) ParsePayload(p []byte, header FrameHeader) error {
	f.FrameHeader = header
	f.Payload = append([]byte(nil), p...)
	return nil
}

func (f *UnknownFrame) WritePayload(w io.Writer) (int64, error) {
	n, err := w.Write(f.Payload)
	return int64(n), err
}

func (f *UnknownFrame) PayloadLen() uint32 {
	return uint32(len(f.Payload))
}

func newFrame(t FrameType) Frame {
	switch t {
	case FrameData:
		return &DataFrame{}
	case FrameHeaders:
		return &HeadersFrame{}
	case FrameRSTStream:
		return &RSTStreamFrame{}
	case FrameSettings:
		return &SettingsFrame{}
	case FramePing:
		return &PingFrame{}
	case FrameGoAway:
		return &GoAwayFrame{}
	case FrameWindowUpdate:
		return &WindowUpdateFrame{}
	default:
		return &UnknownFrame{}
	}
}
