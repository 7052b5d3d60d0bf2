package emv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidHex            = errors.New("invalid TLV hex")
	ErrInvalidLengthEncoding = errors.New("invalid BER length encoding")
	ErrUnexpectedEnd         = errors.New("unexpected end of TLV data")
	ErrBufferTooSmall        = errors.New("buffer too small")
	ErrValueTooLong          = errors.New("TLV value too long")
	ErrInvalidTag            = errors.New("invalid TLV tag")
)

const maxLongFormLength = 0xFFFFFF

// TLVError ties a parse failure to the tag being decoded.
type TLVError struct {
	Tag []byte
	Err error
}

func (te *TLVError) Error() string {
	return fmt.Sprintf("TLV tag %X: %v", te.Tag, te.Err)
}

func (te *TLVError) Unwrap() error {
	return te.Err
}

// TLV is a single BER-TLV element. Length is the number of value bytes
// actually held, which is less than the declared length for a salvaged
// final element.
type TLV struct {
	Tag       []byte
	Length    int
	Value     []byte
	Truncated bool
}

// TagHex returns the tag as upper-case hex, e.g. "9F02".
func (t TLV) TagHex() string {
	return fmt.Sprintf("%X", t.Tag)
}

// ValueHex returns the value as upper-case hex.
func (t TLV) ValueHex() string {
	return fmt.Sprintf("%X", t.Value)
}

// ValueASCII returns the value as text when every byte is printable ASCII.
func (t TLV) ValueASCII() (string, bool) {
	for _, b := range t.Value {
		if b < 0x20 || b > 0x7E {
			return "", false
		}
	}
	return string(t.Value), true
}

func (t TLV) String() string {
	return fmt.Sprintf("Tag: %s, Length: %d, Value: %s", t.TagHex(), t.Length, t.ValueHex())
}

// ParseHex decodes a hex string (whitespace ignored) and parses it as BER-TLV.
func ParseHex(s string) ([]TLV, error) {
	raw, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes data into an ordered list of TLV elements.
//
// Tags follow the BER rule: a first byte with its low five bits set starts a
// multi-byte tag that continues while the high bit is set. Lengths use the
// short form (<= 0x7F) or 0x81/0x82/0x83 followed by one to three length
// bytes. When a declared length runs past the end of data the remaining bytes
// are kept as a final truncated element and parsing stops.
func Parse(data []byte) ([]TLV, error) {
	result := make([]TLV, 0, 16)
	offset := 0

	for offset < len(data) {
		tag, n, complete := parseTag(data[offset:])
		offset += n
		if !complete || offset >= len(data) {
			// Tag without a length: nothing left to salvage.
			break
		}

		length, n, err := parseLength(data[offset:])
		if err != nil {
			return nil, &TLVError{Tag: tag, Err: err}
		}
		offset += n

		if remaining := len(data) - offset; length > remaining {
			result = append(result, TLV{
				Tag:       tag,
				Length:    remaining,
				Value:     data[offset:],
				Truncated: true,
			})
			break
		}

		result = append(result, TLV{
			Tag:    tag,
			Length: length,
			Value:  data[offset : offset+length],
		})
		offset += length
	}

	return result, nil
}

// parseTag returns the tag bytes, the number consumed, and whether the tag
// terminated before the end of data.
func parseTag(data []byte) ([]byte, int, bool) {
	first := data[0]
	if first&0x1F != 0x1F {
		return data[:1], 1, true
	}

	// Subsequent bytes continue the tag while bit 8 is set.
	i := 1
	for i < len(data) {
		if data[i]&0x80 == 0 {
			return data[:i+1], i + 1, true
		}
		i++
	}
	return data[:i], i, false
}

func parseLength(data []byte) (int, int, error) {
	first := data[0]
	if first <= 0x7F {
		return int(first), 1, nil
	}

	var numBytes int
	switch first {
	case 0x81:
		numBytes = 1
	case 0x82:
		numBytes = 2
	case 0x83:
		numBytes = 3
	default:
		return 0, 0, fmt.Errorf("%w: 0x%02X", ErrInvalidLengthEncoding, first)
	}

	if len(data) < 1+numBytes {
		return 0, 0, ErrUnexpectedEnd
	}
	length := 0
	for i := 1; i <= numBytes; i++ {
		length = length<<8 | int(data[i])
	}
	return length, 1 + numBytes, nil
}

// Pack encodes elements back into BER-TLV bytes using the shortest length form.
func Pack(tlvs []TLV) ([]byte, error) {
	size := 0
	for _, t := range tlvs {
		size += len(t.Tag) + 4 + len(t.Value)
	}
	buf := make([]byte, size)
	n, err := PackInto(tlvs, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// PackInto encodes elements into buf and returns the number of bytes written.
func PackInto(tlvs []TLV, buf []byte) (int, error) {
	offset := 0

	for _, t := range tlvs {
		if len(t.Tag) == 0 {
			return 0, ErrInvalidTag
		}
		if offset+len(t.Tag) > len(buf) {
			return 0, ErrBufferTooSmall
		}
		copy(buf[offset:], t.Tag)
		offset += len(t.Tag)

		lengthBytes, err := encodeLength(len(t.Value))
		if err != nil {
			return 0, &TLVError{Tag: t.Tag, Err: err}
		}
		if offset+len(lengthBytes)+len(t.Value) > len(buf) {
			return 0, ErrBufferTooSmall
		}
		copy(buf[offset:], lengthBytes)
		offset += len(lengthBytes)

		copy(buf[offset:], t.Value)
		offset += len(t.Value)
	}

	return offset, nil
}

func encodeLength(n int) ([]byte, error) {
	switch {
	case n < 0x80:
		return []byte{byte(n)}, nil
	case n <= 0xFF:
		return []byte{0x81, byte(n)}, nil
	case n <= 0xFFFF:
		return []byte{0x82, byte(n >> 8), byte(n)}, nil
	case n <= maxLongFormLength:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}, nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrValueTooLong, n)
	}
}

// Find returns the first element whose tag equals tag.
func Find(tlvs []TLV, tag []byte) (*TLV, bool) {
	for i := range tlvs {
		if string(tlvs[i].Tag) == string(tag) {
			return &tlvs[i], true
		}
	}
	return nil, false
}

func decodeHex(s string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(s), "")
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrInvalidHex, len(cleaned))
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return raw, nil
}
