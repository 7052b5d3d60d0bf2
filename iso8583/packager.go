package iso8583

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Packager owns a data element format table and packs/unpacks messages with it.
// A Packager is immutable after construction and safe for concurrent use.
type Packager struct {
	formats map[int]FieldFormat
}

var defaultPackager = sync.OnceValue(func() *Packager {
	return NewPackager()
})

// DefaultPackager returns the shared packager built from DefaultFieldFormats.
func DefaultPackager() *Packager {
	return defaultPackager()
}

// NewPackager builds a packager from DefaultFieldFormats with opts applied on top.
func NewPackager(opts ...PackagerOption) *Packager {
	p := &Packager{formats: make(map[int]FieldFormat, len(DefaultFieldFormats))}
	for de, f := range DefaultFieldFormats {
		p.formats[de] = f
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadPackagerFromJSON builds a packager whose field table is the default
// table overridden by the "fields" object in data.
func LoadPackagerFromJSON(data []byte) (*Packager, error) {
	var config PackagerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse packager config: %w", err)
	}

	for de, f := range config.Fields {
		if de < 2 || de > MaxFieldNumber {
			return nil, &FieldError{Field: de, Err: ErrInvalidField}
		}
		if f.Length <= 0 {
			return nil, &FieldError{Field: de, Err: ErrInvalidLength}
		}
	}
	return NewPackager(WithFieldFormats(config.Fields)), nil
}

// LoadPackagerFromFile reads a JSON field table from path; see
// LoadPackagerFromJSON.
func LoadPackagerFromFile(path string) (*Packager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read packager config: %w", err)
	}
	return LoadPackagerFromJSON(data)
}

// Format returns the configured format of a data element.
func (p *Packager) Format(de int) (FieldFormat, bool) {
	f, ok := p.formats[de]
	return f, ok
}

// EncodeField encodes a single data element value.
func (p *Packager) EncodeField(de int, value string) ([]byte, error) {
	f, ok := p.formats[de]
	if !ok {
		return nil, &FieldError{Field: de, Err: ErrUnknownFieldFormat}
	}
	b, err := EncodeField(f, value)
	if err != nil {
		return nil, &FieldError{Field: de, Err: err}
	}
	return b, nil
}

// DecodeField decodes a single data element from the start of data.
func (p *Packager) DecodeField(de int, data []byte) (string, int, error) {
	f, ok := p.formats[de]
	if !ok {
		return "", 0, &FieldError{Field: de, Err: ErrUnknownFieldFormat}
	}
	v, n, err := DecodeField(f, data)
	if err != nil {
		return "", 0, &FieldError{Field: de, Err: err}
	}
	return v, n, nil
}

// Pack serializes m as MTI bytes, bitmap bytes and each present field in
// ascending order. The message is sealed on success.
func (p *Packager) Pack(m *Message) ([]byte, error) {
	if err := validateMTI(m.mti); err != nil {
		return nil, err
	}

	bm := m.Bitmap()
	buf := make([]byte, 0, MTILength+bm.Size()+len(m.fields)*8)
	buf = append(buf, m.mti...)
	buf = append(buf, bm.Bytes()...)

	for _, de := range bm.Fields() {
		b, err := p.EncodeField(de, m.fields[de])
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}

	m.seal(bm)
	return buf, nil
}

// Build packs m and hex-encodes the result.
func (p *Packager) Build(m *Message) (string, error) {
	raw, err := p.Pack(m)
	if err != nil {
		return "", err
	}
	return hexUpper(raw), nil
}

// Unpack decodes a binary message. Any field present in the bitmap that has
// no configured format, or whose data is truncated, fails the whole message.
func (p *Packager) Unpack(data []byte) (*Message, error) {
	if len(data) < MTILength+BitmapSize {
		return nil, fmt.Errorf("%w: message of %d bytes is shorter than MTI and bitmap", ErrTruncatedField, len(data))
	}

	mti := string(data[:MTILength])
	if err := validateMTI(mti); err != nil {
		return nil, err
	}

	bm, n, err := ReadBitmap(data[MTILength:])
	if err != nil {
		return nil, err
	}
	offset := MTILength + n

	m := NewMessage(mti)
	for _, de := range bm.Fields() {
		v, consumed, err := p.DecodeField(de, data[offset:])
		if err != nil {
			return nil, err
		}
		m.fields[de] = v
		offset += consumed
	}

	m.seal(bm)
	return m, nil
}

// Parse decodes a hex-encoded message. Whitespace in the input is ignored.
func (p *Packager) Parse(hexData string) (*Message, error) {
	cleaned := strings.Join(strings.Fields(hexData), "")
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return p.Unpack(raw)
}
