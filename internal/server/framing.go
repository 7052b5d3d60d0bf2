package server

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/mkadit/payswitch/iso8583"
)

// Framing selects how terminal messages are delimited on the stream.
type Framing string

const (
	// FramingRead treats each successful read as one message.
	FramingRead Framing = "read"
	// FramingNewline delimits messages with '\n'.
	FramingNewline Framing = "newline"
	// FramingLength prefixes messages with a 2-byte big-endian length.
	FramingLength Framing = "length"
	// FramingLength4 prefixes messages with a 4-byte big-endian length.
	FramingLength4 Framing = "length4"
	// FramingASCII4 prefixes messages with a 4-digit ASCII length.
	FramingASCII4 Framing = "ascii4"
	// FramingHex4 prefixes messages with a 4-character hex length.
	FramingHex4 Framing = "hex4"
)

// ReadBufferSize is the buffer used by FramingRead; a larger message is cut.
const ReadBufferSize = 2048

var readBuffers = sync.Pool{
	New: func() any {
		buf := make([]byte, ReadBufferSize)
		return &buf
	},
}

// ParseFraming validates a framing name.
func ParseFraming(s string) (Framing, error) {
	switch f := Framing(s); f {
	case FramingRead, FramingNewline, FramingLength, FramingLength4, FramingASCII4, FramingHex4:
		return f, nil
	case "":
		return FramingRead, nil
	}
	return "", fmt.Errorf("unknown framing %q", s)
}

func (f Framing) lengthIndicator() iso8583.LengthIndicatorConfig {
	switch f {
	case FramingLength:
		return iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorBinary, Length: 2}
	case FramingLength4:
		return iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorBinary, Length: 4}
	case FramingASCII4:
		return iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorASCII, Length: 4}
	case FramingHex4:
		return iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorHex, Length: 4}
	}
	return iso8583.LengthIndicatorConfig{Type: iso8583.LengthIndicatorNone}
}

// framer reads and writes whole messages on one connection.
type framer interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
}

func newFramer(f Framing, conn Connection) framer {
	switch f {
	case FramingNewline:
		return &newlineFramer{conn: conn, r: bufio.NewReaderSize(conn, ReadBufferSize)}
	case FramingLength, FramingLength4, FramingASCII4, FramingHex4:
		return &prefixFramer{conn: conn, r: bufio.NewReader(conn), cfg: f.lengthIndicator()}
	default:
		return &readFramer{conn: conn}
	}
}

type readFramer struct {
	conn Connection
}

// ReadMessage returns io.EOF when the peer closed the connection.
func (r *readFramer) ReadMessage() ([]byte, error) {
	bp := readBuffers.Get().(*[]byte)
	defer readBuffers.Put(bp)

	n, err := r.conn.Read(*bp)
	if n > 0 {
		msg := make([]byte, n)
		copy(msg, (*bp)[:n])
		return msg, nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (r *readFramer) WriteMessage(payload []byte) error {
	_, err := r.conn.Write(payload)
	return err
}

type newlineFramer struct {
	conn Connection
	r    *bufio.Reader
}

func (n *newlineFramer) ReadMessage() ([]byte, error) {
	for {
		line, err := n.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(bytes.TrimSpace(line)) > 0 {
				return line, nil
			}
			return nil, err
		}
		if len(bytes.TrimSpace(line)) > 0 {
			return line, nil
		}
	}
}

func (n *newlineFramer) WriteMessage(payload []byte) error {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	out = append(out, '\n')
	_, err := n.conn.Write(out)
	return err
}

type prefixFramer struct {
	conn Connection
	r    *bufio.Reader
	cfg  iso8583.LengthIndicatorConfig
}

func (p *prefixFramer) ReadMessage() ([]byte, error) {
	return iso8583.ReadFrame(p.r, p.cfg)
}

func (p *prefixFramer) WriteMessage(payload []byte) error {
	return iso8583.WriteFrame(p.conn, payload, p.cfg)
}
