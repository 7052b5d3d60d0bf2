package iso8583

import (
	"fmt"
	"io"
	"strconv"
)

// MaxFrameSize bounds a single framed message.
const MaxFrameSize = 0xFFFF

// WriteLengthIndicator writes the message length prefix into buf and returns
// the number of bytes written.
func WriteLengthIndicator(msgLen int, buf []byte, config LengthIndicatorConfig) (int, error) {
	if config.Type == LengthIndicatorNone {
		return 0, nil
	}
	if len(buf) < config.Length {
		return 0, ErrBufferTooSmall
	}

	switch config.Type {
	case LengthIndicatorBinary:
		return writeBinaryLengthIndicator(msgLen, buf, config)
	case LengthIndicatorASCII:
		if config.Length != 4 {
			return 0, fmt.Errorf("ASCII length indicator must be 4 characters, got %d", config.Length)
		}
		if msgLen > 9999 {
			return 0, fmt.Errorf("message length %d exceeds 4-digit ASCII maximum", msgLen)
		}
		writeIntToASCII(buf[:4], msgLen, 4)
		return 4, nil
	case LengthIndicatorHex:
		if config.Length != 4 {
			return 0, fmt.Errorf("hex length indicator must be 4 characters, got %d", config.Length)
		}
		if msgLen > 0xFFFF {
			return 0, fmt.Errorf("message length %d exceeds 4-char hex maximum", msgLen)
		}
		copy(buf[:4], fmt.Sprintf("%04X", msgLen))
		return 4, nil
	default:
		return 0, ErrUnsupportedLengthType
	}
}

// ReadLengthIndicator reads the message length prefix from buf.
// It returns the message length and the number of bytes consumed.
func ReadLengthIndicator(buf []byte, config LengthIndicatorConfig) (int, int, error) {
	if config.Type == LengthIndicatorNone {
		return len(buf), 0, nil
	}
	if len(buf) < config.Length {
		return 0, 0, ErrInvalidLength
	}

	switch config.Type {
	case LengthIndicatorBinary:
		return readBinaryLengthIndicator(buf, config)
	case LengthIndicatorASCII:
		if config.Length != 4 {
			return 0, 0, fmt.Errorf("ASCII length indicator must be 4 characters, got %d", config.Length)
		}
		msgLen, err := parseASCIIToInt(buf[:4])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid ASCII length indicator: %w", err)
		}
		return msgLen, 4, nil
	case LengthIndicatorHex:
		if config.Length != 4 {
			return 0, 0, fmt.Errorf("hex length indicator must be 4 characters, got %d", config.Length)
		}
		msgLen, err := strconv.ParseInt(string(buf[:4]), 16, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid hex length indicator: %w", err)
		}
		return int(msgLen), 4, nil
	default:
		return 0, 0, ErrUnsupportedLengthType
	}
}

// writeBinaryLengthIndicator writes binary length (2 or 4 bytes, big-endian).
func writeBinaryLengthIndicator(msgLen int, buf []byte, config LengthIndicatorConfig) (int, error) {
	switch config.Length {
	case 2:
		if msgLen > 0xFFFF {
			return 0, fmt.Errorf("message length %d exceeds 2-byte maximum", msgLen)
		}
		buf[0] = byte(msgLen >> 8)
		buf[1] = byte(msgLen)
		return 2, nil
	case 4:
		buf[0] = byte(msgLen >> 24)
		buf[1] = byte(msgLen >> 16)
		buf[2] = byte(msgLen >> 8)
		buf[3] = byte(msgLen)
		return 4, nil
	default:
		return 0, fmt.Errorf("invalid binary length indicator size: %d (must be 2 or 4)", config.Length)
	}
}

// readBinaryLengthIndicator reads binary length (2 or 4 bytes, big-endian).
func readBinaryLengthIndicator(buf []byte, config LengthIndicatorConfig) (int, int, error) {
	switch config.Length {
	case 2:
		return int(buf[0])<<8 | int(buf[1]), 2, nil
	case 4:
		return int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3]), 4, nil
	default:
		return 0, 0, fmt.Errorf("invalid binary length indicator size: %d (must be 2 or 4)", config.Length)
	}
}

// ReadFrame reads one length-prefixed message from r.
// A clean EOF before the prefix is returned as io.EOF.
func ReadFrame(r io.Reader, config LengthIndicatorConfig) ([]byte, error) {
	if config.Type == LengthIndicatorNone {
		return nil, ErrUnsupportedLengthType
	}

	prefix := make([]byte, config.Length)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}

	msgLen, _, err := ReadLengthIndicator(prefix, config)
	if err != nil {
		return nil, err
	}
	if msgLen > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrInvalidLength, msgLen, MaxFrameSize)
	}

	body := make([]byte, msgLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// WriteFrame writes payload to w preceded by its length prefix.
func WriteFrame(w io.Writer, payload []byte, config LengthIndicatorConfig) error {
	frame := make([]byte, config.Length+len(payload))
	n, err := WriteLengthIndicator(len(payload), frame, config)
	if err != nil {
		return err
	}
	copy(frame[n:], payload)
	_, err = w.Write(frame[:n+len(payload)])
	return err
}

// parseASCIIToInt parses ASCII digits without allocating.
func parseASCIIToInt(b []byte) (int, error) {
	n := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("invalid character '%c' in numeric string", ch)
		}
		n = n*10 + int(ch-'0')
	}
	return n, nil
}
