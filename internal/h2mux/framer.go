package h2mux

import (
	"bytes"
	"fmt"
	"io"
)

// Framer turns raw connection bytes into typed frame records. An
// implementation buffers partial frames across calls: Append adds bytes,
// Parse yields complete frames until none remain.
type Framer interface {
	// Append adds raw bytes received from the transport to the parse buffer.
	Append(p []byte)
	// Parse returns the next complete frame, or nil when the buffered bytes
	// do not yet hold one.
	Parse() (Frame, error)
}

// FrameWriter is the transport-side sink for frames the connection has
// cleared for transmission. Implementations own the actual socket write.
type FrameWriter interface {
	WriteFrame(f Frame) error
}

// WireFramer is the default Framer: the binary wire codec for the 9-octet
// frame header plus type-specific payloads.
type WireFramer struct {
	buf []byte
}

// NewWireFramer returns an empty WireFramer.
func NewWireFramer() *WireFramer {
	return &WireFramer{}
}

// Append adds raw bytes to the parse buffer.
func (fr *WireFramer) Append(p []byte) {
	fr.buf = append(fr.buf, p...)
}

// Parse decodes the next complete frame from the buffer. It returns
// (nil, nil) when the buffer holds less than one full frame. A frame that
// fails payload validation is consumed from the buffer before the error is
// returned.
func (fr *WireFramer) Parse() (Frame, error) {
	if len(fr.buf) < FrameHeaderLen {
		return nil, nil
	}
	fh := decodeFrameHeader(fr.buf)
	total := FrameHeaderLen + int(fh.Length)
	if len(fr.buf) < total {
		return nil, nil
	}
	payload := fr.buf[FrameHeaderLen:total]
	frame := newFrame(fh.Type)
	err := frame.ParsePayload(payload, fh)
	fr.buf = fr.buf[total:]
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Serialize is the inverse of Parse: it encodes a frame to wire bytes.
func (fr *WireFramer) Serialize(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFrame serializes a full frame to w: header first, then payload. The
// header length field is derived from the frame's own fields before
// writing.
func WriteFrame(w io.Writer, f Frame) error {
	header := f.Header()
	header.Length = f.PayloadLen()

	if _, err := header.WriteTo(w); err != nil {
		return fmt.Errorf("writing frame header for %s (length %d): %w", header.Type, header.Length, err)
	}

	n, err := f.WritePayload(w)
	if err != nil {
		return fmt.Errorf("writing %s payload (declared length %d): %w", header.Type, header.Length, err)
	}
	if uint32(n) != header.Length {
		return fmt.Errorf("internal: %s payload length mismatch: declared %d, wrote %d", header.Type, header.Length, n)
	}
	return nil
}

// IOFrameWriter adapts an io.Writer, typically a net.Conn, to FrameWriter.
type IOFrameWriter struct {
	W io.Writer
}

// WriteFrame serializes f onto the underlying writer.
func (w *IOFrameWriter) WriteFrame(f Frame) error {
	return WriteFrame(w.W, f)
}
