package iso8583

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
)

// ErrMessageSealed is returned when a field is changed after the message was packed.
var ErrMessageSealed = errors.New("message already serialized")

// Message is a single ISO8583 message: MTI plus a sparse map of data
// elements stored as their string renderings. The bitmap is derived from the
// present fields and materialized when the message is packed or parsed.
// A Message is not safe for concurrent mutation.
type Message struct {
	mti    string
	fields map[int]string
	bitmap string
	sealed bool
}

// NewMessage creates an empty message with the given MTI. The MTI is
// validated when the message is packed.
func NewMessage(mti string) *Message {
	return &Message{
		mti:    mti,
		fields: make(map[int]string),
	}
}

// MTI returns the 4-digit Message Type Indicator.
func (m *Message) MTI() string {
	return m.mti
}

// SetMTI sets the Message Type Indicator.
func (m *Message) SetMTI(mti string) error {
	if err := validateMTI(mti); err != nil {
		return err
	}
	if m.sealed {
		return ErrMessageSealed
	}
	m.mti = mti
	return nil
}

// SetField attaches a data element. DE 1 is reserved for the bitmap.
func (m *Message) SetField(de int, value string) error {
	if de < 2 || de > MaxFieldNumber {
		return &FieldError{Field: de, Err: ErrInvalidField}
	}
	if m.sealed {
		return &FieldError{Field: de, Err: ErrMessageSealed}
	}
	m.fields[de] = value
	return nil
}

// RemoveField detaches a data element if present.
func (m *Message) RemoveField(de int) error {
	if m.sealed {
		return &FieldError{Field: de, Err: ErrMessageSealed}
	}
	delete(m.fields, de)
	return nil
}

// Field returns the value of a data element and whether it is present.
func (m *Message) Field(de int) (string, bool) {
	v, ok := m.fields[de]
	return v, ok
}

// GetField returns the value of a data element or ErrFieldNotFound.
func (m *Message) GetField(de int) (string, error) {
	v, ok := m.fields[de]
	if !ok {
		return "", &FieldError{Field: de, Err: ErrFieldNotFound}
	}
	return v, nil
}

// FieldOr returns the value of a data element or fallback when absent.
func (m *Message) FieldOr(de int, fallback string) string {
	if v, ok := m.fields[de]; ok {
		return v
	}
	return fallback
}

// HasField reports whether a data element is present.
func (m *Message) HasField(de int) bool {
	_, ok := m.fields[de]
	return ok
}

// FieldNumbers returns the present data elements in ascending order.
func (m *Message) FieldNumbers() []int {
	nums := make([]int, 0, len(m.fields))
	for de := range m.fields {
		nums = append(nums, de)
	}
	sort.Ints(nums)
	return nums
}

// Fields returns a copy of the field map.
func (m *Message) Fields() map[int]string {
	out := make(map[int]string, len(m.fields))
	for de, v := range m.fields {
		out[de] = v
	}
	return out
}

// Bitmap computes the bitmap for the currently present fields.
func (m *Message) Bitmap() *Bitmap {
	bm := NewBitmap()
	for de := range m.fields {
		// SetField guarantees 2..128
		_ = bm.Set(de)
	}
	return bm
}

// BitmapHex returns the bitmap materialized by the last pack or parse, or
// the bitmap of the current fields when the message has not been serialized.
func (m *Message) BitmapHex() string {
	if m.bitmap != "" {
		return m.bitmap
	}
	return m.Bitmap().String()
}

// IsSealed reports whether the message has been serialized.
func (m *Message) IsSealed() bool {
	return m.sealed
}

// seal materializes the bitmap and freezes the message.
func (m *Message) seal(bm *Bitmap) {
	m.bitmap = bm.String()
	m.sealed = true
}

// Clone returns an unsealed deep copy of the message.
func (m *Message) Clone() *Message {
	clone := NewMessage(m.mti)
	for de, v := range m.fields {
		clone.fields[de] = v
	}
	return clone
}

// ResponseMTI returns the response MTI for a request MTI: the third digit is
// incremented, so 0100 becomes 0110 and 0400 becomes 0410.
func ResponseMTI(mti string) (string, error) {
	if err := validateMTI(mti); err != nil {
		return "", err
	}
	if mti[2] == '9' {
		return "", fmt.Errorf("%w: no response class for %s", ErrInvalidMTI, mti)
	}
	b := []byte(mti)
	b[2]++
	return string(b), nil
}

// IsRequest reports whether the MTI's function digit marks a request.
func IsRequest(mti string) bool {
	return len(mti) == MTILength && (mti[2]-'0')%2 == 0
}

// CreateResponse returns a new message with the response MTI and DE39 set.
// No request fields are copied.
func (m *Message) CreateResponse(responseCode string) (*Message, error) {
	mti, err := ResponseMTI(m.mti)
	if err != nil {
		return nil, err
	}
	res := NewMessage(mti)
	if err := res.SetField(FieldResponseCode, responseCode); err != nil {
		return nil, err
	}
	return res, nil
}

// CopyFields copies the listed data elements from src when present.
func (m *Message) CopyFields(src *Message, des ...int) error {
	for _, de := range des {
		if v, ok := src.Field(de); ok {
			if err := m.SetField(de, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMTI(mti string) error {
	if len(mti) != MTILength {
		return fmt.Errorf("%w: %q", ErrInvalidMTI, mti)
	}
	for i := 0; i < MTILength; i++ {
		if mti[i] < '0' || mti[i] > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidMTI, mti)
		}
	}
	return nil
}

// LogValue implements the slog.LogValuer interface for structured logging.
// Cardholder data is masked and binary security fields are reported by length.
func (m *Message) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 3)
	attrs = append(attrs, slog.String("MTI", m.mti))
	attrs = append(attrs, slog.String("bitmap", m.BitmapHex()))

	fieldArgs := make([]any, 0, len(m.fields))
	for _, de := range m.FieldNumbers() {
		fieldArgs = append(fieldArgs, slog.String(strconv.Itoa(de), logSafeValue(de, m.fields[de])))
	}

	attrs = append(attrs, slog.Group("fields", fieldArgs...))
	return slog.GroupValue(attrs...)
}

func logSafeValue(de int, v string) string {
	switch de {
	case FieldPAN, FieldTrack2:
		return MaskPAN(v)
	case FieldPINBlock, FieldMAC, FieldSecondaryMAC, FieldICCData:
		return fmt.Sprintf("<%d hex chars>", len(v))
	default:
		return v
	}
}
