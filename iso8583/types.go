package iso8583

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatKind is the wire encoding family of a data element.
type FormatKind int

const (
	FixedNumeric FormatKind = iota // BCD, ceil(n/2) bytes
	FixedAlpha                     // n ASCII bytes, space padded
	Llvar                          // 2 ASCII length digits + text
	Lllvar                         // 3 ASCII length digits + raw bytes
	Binary                         // n raw bytes
)

func (k FormatKind) String() string {
	switch k {
	case FixedNumeric:
		return "FixedNumeric"
	case FixedAlpha:
		return "FixedAlpha"
	case Llvar:
		return "Llvar"
	case Lllvar:
		return "Lllvar"
	case Binary:
		return "Binary"
	default:
		return fmt.Sprintf("FormatKind(%d)", int(k))
	}
}

func (k *FormatKind) UnmarshalJSON(data []byte) error {
	var aux interface{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch v := aux.(type) {
	case float64:
		*k = FormatKind(v)
	case string:
		kind, ok := parseFormatKind(v)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFieldFormat, v)
		}
		*k = kind
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFieldFormat, data)
	}
	return nil
}

func parseFormatKind(s string) (FormatKind, bool) {
	switch strings.ToUpper(strings.ReplaceAll(s, "_", "")) {
	case "FIXEDNUMERIC", "N", "BCD":
		return FixedNumeric, true
	case "FIXEDALPHA", "AN", "ANS":
		return FixedAlpha, true
	case "LLVAR":
		return Llvar, true
	case "LLLVAR":
		return Lllvar, true
	case "BINARY", "B":
		return Binary, true
	default:
		return 0, false
	}
}

// FieldFormat describes how one data element is laid out on the wire.
// Length is the fixed size for fixed formats and the maximum for variable ones.
type FieldFormat struct {
	Kind   FormatKind `json:"kind"`
	Length int        `json:"length"`
}

func (f FieldFormat) String() string {
	return fmt.Sprintf("%s(%d)", f.Kind, f.Length)
}

type LengthIndicatorType int

const (
	LengthIndicatorNone LengthIndicatorType = iota
	LengthIndicatorBinary
	LengthIndicatorASCII
	LengthIndicatorHex
)

// LengthIndicatorConfig describes the message length prefix used by a transport.
type LengthIndicatorConfig struct {
	Type   LengthIndicatorType `json:"type"`
	Length int                 `json:"length"`
}

// PackagerConfig is the JSON shape accepted by LoadPackagerFromJSON.
type PackagerConfig struct {
	Fields map[int]FieldFormat `json:"fields"`
}

const (
	MaxFieldNumber      = 128
	BitmapSize          = 8
	SecondaryBitmapSize = 8
	MTILength           = 4
)
