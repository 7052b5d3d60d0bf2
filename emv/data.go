package emv

import (
	"fmt"
	"log/slog"
	"strings"
)

// ParsedEmvData is the result of parsing a DE55 blob. Elements keeps wire
// order for audit output; lookups go through the tag map, where a repeated
// tag resolves to its last occurrence.
type ParsedEmvData struct {
	Elements []TLV
	byTag    map[string]TLV
}

// NewParsedEmvData indexes an element list.
func NewParsedEmvData(elements []TLV) *ParsedEmvData {
	d := &ParsedEmvData{
		Elements: elements,
		byTag:    make(map[string]TLV, len(elements)),
	}
	for _, e := range elements {
		d.byTag[e.TagHex()] = e
	}
	return d
}

// ParseEmvHex parses a hex DE55 payload.
func ParseEmvHex(s string) (*ParsedEmvData, error) {
	elements, err := ParseHex(s)
	if err != nil {
		return nil, err
	}
	return NewParsedEmvData(elements), nil
}

// ParseEmv parses a raw DE55 payload.
func ParseEmv(data []byte) (*ParsedEmvData, error) {
	elements, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewParsedEmvData(elements), nil
}

// Get returns the element for tag (hex, any case).
func (d *ParsedEmvData) Get(tag string) (TLV, bool) {
	e, ok := d.byTag[strings.ToUpper(tag)]
	return e, ok
}

// Len reports the number of distinct tags.
func (d *ParsedEmvData) Len() int {
	return len(d.byTag)
}

// TagHex returns the value of tag as upper-case hex.
func (d *ParsedEmvData) TagHex(tag string) (string, bool) {
	e, ok := d.Get(tag)
	if !ok {
		return "", false
	}
	return e.ValueHex(), true
}

// TagASCII returns the value of tag as text when it is printable.
func (d *ParsedEmvData) TagASCII(tag string) (string, bool) {
	e, ok := d.Get(tag)
	if !ok {
		return "", false
	}
	return e.ValueASCII()
}

// PAN returns tag 5A with the BCD filler nibble removed.
func (d *ParsedEmvData) PAN() (string, bool) {
	v, ok := d.TagHex(TagPAN)
	if !ok {
		return "", false
	}
	return strings.TrimRight(v, "F"), true
}

func (d *ParsedEmvData) CardholderName() (string, bool) { return d.TagASCII(TagCardholderName) }

// Expiry returns 5F24 as YYMMDD.
func (d *ParsedEmvData) Expiry() (string, bool) { return d.TagHex(TagExpiry) }

// ExpiryYYMM returns the first four digits of 5F24, the DE14 layout.
func (d *ParsedEmvData) ExpiryYYMM() (string, bool) {
	v, ok := d.Expiry()
	if !ok || len(v) < 4 {
		return "", false
	}
	return v[:4], true
}

func (d *ParsedEmvData) AID() (string, bool)                   { return d.TagHex(TagAID) }
func (d *ParsedEmvData) AmountAuthorized() (string, bool)      { return d.TagHex(TagAmountAuthorized) }
func (d *ParsedEmvData) AmountOther() (string, bool)           { return d.TagHex(TagAmountOther) }
func (d *ParsedEmvData) TransactionDate() (string, bool)       { return d.TagHex(TagTransactionDate) }
func (d *ParsedEmvData) TransactionTime() (string, bool)       { return d.TagHex(TagTransactionTime) }
func (d *ParsedEmvData) CurrencyCode() (string, bool)          { return d.TagHex(TagCurrencyCode) }
func (d *ParsedEmvData) ATC() (string, bool)                   { return d.TagHex(TagATC) }
func (d *ParsedEmvData) IssuerApplicationData() (string, bool) { return d.TagHex(TagIAD) }
func (d *ParsedEmvData) TerminalID() (string, bool)            { return d.TagASCII(TagIFDSerial) }
func (d *ParsedEmvData) ApplicationCryptogram() (string, bool) { return d.TagHex(TagCryptogram) }
func (d *ParsedEmvData) CryptogramInfo() (string, bool)        { return d.TagHex(TagCID) }
func (d *ParsedEmvData) TVR() (string, bool)                   { return d.TagHex(TagTVR) }
func (d *ParsedEmvData) UnpredictableNumber() (string, bool)   { return d.TagHex(TagUnpredictableNumber) }
func (d *ParsedEmvData) TerminalCountry() (string, bool)       { return d.TagHex(TagTerminalCountry) }

// Track2 returns tag 57 with the trailing filler removed.
func (d *ParsedEmvData) Track2() (string, bool) {
	v, ok := d.TagHex(TagTrack2)
	if !ok {
		return "", false
	}
	return strings.TrimRight(v, "F"), true
}

// PANSequence returns 5F34 as three digits, the DE23 layout.
func (d *ParsedEmvData) PANSequence() (string, bool) {
	v, ok := d.TagHex(TagPANSequence)
	if !ok {
		return "", false
	}
	if len(v) < 3 {
		v = strings.Repeat("0", 3-len(v)) + v
	}
	return v[len(v)-3:], true
}

// TransactionType returns the first byte of 9C.
func (d *ParsedEmvData) TransactionType() (byte, bool) {
	e, ok := d.Get(TagTransactionType)
	if !ok || len(e.Value) == 0 {
		return 0, false
	}
	return e.Value[0], true
}

// Summary renders every element in wire order with its description.
func (d *ParsedEmvData) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "EMV data: %d elements\n", len(d.Elements))
	for _, e := range d.Elements {
		tag := e.TagHex()
		fmt.Fprintf(&sb, "  %-6s %-50s %s (len=%d)", tag, Describe(tag), e.ValueHex(), e.Length)
		if e.Truncated {
			sb.WriteString(" truncated")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// LogValue lists tags and lengths only; values may carry card data.
func (d *ParsedEmvData) LogValue() slog.Value {
	tags := make([]string, 0, len(d.Elements))
	for _, e := range d.Elements {
		tags = append(tags, fmt.Sprintf("%s/%d", e.TagHex(), e.Length))
	}
	return slog.GroupValue(
		slog.Int("count", len(d.Elements)),
		slog.String("tags", strings.Join(tags, ",")),
	)
}
