package iso8583

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeField encodes value into its wire bytes according to format.
//
// FixedNumeric values are decimal digit strings, left zero-padded and BCD packed.
// FixedAlpha values are right-padded with spaces. Llvar values are text.
// Lllvar and Binary values are hex strings of the raw bytes.
func EncodeField(format FieldFormat, value string) ([]byte, error) {
	switch format.Kind {
	case FixedNumeric:
		return encodeFixedNumeric(format.Length, value)
	case FixedAlpha:
		return encodeFixedAlpha(format.Length, value)
	case Llvar:
		return encodeVar(2, format.Length, []byte(value))
	case Lllvar:
		raw, err := decodeHexValue(value)
		if err != nil {
			return nil, err
		}
		return encodeVar(3, format.Length, raw)
	case Binary:
		raw, err := decodeHexValue(value)
		if err != nil {
			return nil, err
		}
		if len(raw) != format.Length {
			return nil, fmt.Errorf("%w: binary field needs %d bytes, got %d", ErrInvalidLength, format.Length, len(raw))
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFieldFormat, format)
	}
}

// DecodeField decodes one field from the start of data and returns the value
// together with the number of bytes consumed.
func DecodeField(format FieldFormat, data []byte) (string, int, error) {
	switch format.Kind {
	case FixedNumeric:
		size := bcdSize(format.Length)
		if len(data) < size {
			return "", 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedField, size, len(data))
		}
		digits := make([]byte, size*2)
		encodeHexUpper(digits, data[:size])
		// Odd lengths carry one leading pad nibble.
		return string(digits[len(digits)-format.Length:]), size, nil

	case FixedAlpha:
		if len(data) < format.Length {
			return "", 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedField, format.Length, len(data))
		}
		return strings.ToValidUTF8(string(data[:format.Length]), "\uFFFD"), format.Length, nil

	case Llvar:
		body, n, err := decodeVar(2, format.Length, data)
		if err != nil {
			return "", 0, err
		}
		return strings.ToValidUTF8(string(body), "\uFFFD"), n, nil

	case Lllvar:
		body, n, err := decodeVar(3, format.Length, data)
		if err != nil {
			return "", 0, err
		}
		return hexUpper(body), n, nil

	case Binary:
		if len(data) < format.Length {
			return "", 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedField, format.Length, len(data))
		}
		return hexUpper(data[:format.Length]), format.Length, nil

	default:
		return "", 0, fmt.Errorf("%w: %s", ErrUnknownFieldFormat, format)
	}
}

// bcdSize returns the packed size of an n digit BCD value.
func bcdSize(n int) int {
	return (n + 1) / 2
}

func encodeFixedNumeric(n int, value string) ([]byte, error) {
	if len(value) > n {
		return nil, fmt.Errorf("%w: %d digits, max %d", ErrFieldTooLong, len(value), n)
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return nil, fmt.Errorf("%w: non-numeric character at position %d", ErrInvalidValue, i)
		}
	}

	width := bcdSize(n) * 2
	padded := strings.Repeat("0", width-len(value)) + value

	out := make([]byte, width/2)
	for i := range out {
		out[i] = (padded[2*i]-'0')<<4 | (padded[2*i+1] - '0')
	}
	return out, nil
}

func encodeFixedAlpha(n int, value string) ([]byte, error) {
	if len(value) > n {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrFieldTooLong, len(value), n)
	}
	out := make([]byte, n)
	copy(out, value)
	for i := len(value); i < n; i++ {
		out[i] = ' '
	}
	return out, nil
}

// encodeVar writes an ASCII decimal length prefix of prefixLen digits followed by body.
func encodeVar(prefixLen, maxLen int, body []byte) ([]byte, error) {
	limit := maxLen
	if capacity := pow10(prefixLen) - 1; limit <= 0 || limit > capacity {
		limit = capacity
	}
	if len(body) > limit {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrFieldTooLong, len(body), limit)
	}

	out := make([]byte, prefixLen+len(body))
	writeIntToASCII(out[:prefixLen], len(body), prefixLen)
	copy(out[prefixLen:], body)
	return out, nil
}

func decodeVar(prefixLen, maxLen int, data []byte) ([]byte, int, error) {
	if len(data) < prefixLen {
		return nil, 0, fmt.Errorf("%w: missing length prefix", ErrTruncatedField)
	}

	n, err := parseASCIIToInt(data[:prefixLen])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidLength, err)
	}
	if n > maxLen {
		return nil, 0, fmt.Errorf("%w: length %d exceeds maximum %d", ErrInvalidLength, n, maxLen)
	}
	if len(data) < prefixLen+n {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedField, n, len(data)-prefixLen)
	}
	return data[prefixLen : prefixLen+n], prefixLen + n, nil
}

func decodeHexValue(value string) ([]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return raw, nil
}

// writeIntToASCII writes val as zero-padded decimal into buf[:digits].
func writeIntToASCII(buf []byte, val, digits int) {
	for i := digits - 1; i >= 0; i-- {
		buf[i] = byte('0' + val%10)
		val /= 10
	}
}

func pow10(n int) int {
	res := 1
	for i := 0; i < n; i++ {
		res *= 10
	}
	return res
}
