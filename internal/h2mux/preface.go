package h2mux

import (
	"fmt"
	"io"
)

// ClientPreface is the literal byte sequence exchanged before any frames.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// PrefaceLen is the length of the connection preface in bytes.
const PrefaceLen = len(ClientPreface)

// WritePreface writes the connection preface to w.
func WritePreface(w io.Writer) error {
	if _, err := io.WriteString(w, ClientPreface); err != nil {
		return fmt.Errorf("writing connection preface: %w", err)
	}
	return nil
}

// ExpectPreface reads PrefaceLen bytes from r and verifies them against the
// connection preface. A mismatch is a protocol error.
func ExpectPreface(r io.Reader) error {
	buf := make([]byte, PrefaceLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return NewConnectionErrorWithCause(ErrCodeProtocolError, "reading connection preface", err)
	}
	if string(buf) != ClientPreface {
		return NewConnectionError(ErrCodeProtocolError, fmt.Sprintf("invalid connection preface %q", buf))
	}
	return nil
}
