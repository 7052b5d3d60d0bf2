package security

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPIN = errors.New("PIN must be 4-12 digits")
	ErrInvalidPAN = errors.New("PAN must have at least 13 digits")
)

// PINBlock builds clear ISO 9564 format 0 PIN blocks. Encrypting the block
// under a PIN key belongs to an HSM and is not done here.
type PINBlock struct{}

func NewMockPINBlock() *PINBlock {
	return &PINBlock{}
}

// Encode returns the 16 upper-hex digit format 0 block for pin and pan.
// Non-digit characters in pan are ignored.
func (p *PINBlock) Encode(pin, pan string) (string, error) {
	if len(pin) < 4 || len(pin) > 12 || !allDigits(pin) {
		return "", ErrInvalidPIN
	}

	var digits strings.Builder
	for i := 0; i < len(pan); i++ {
		if pan[i] >= '0' && pan[i] <= '9' {
			digits.WriteByte(pan[i])
		}
	}
	panDigits := digits.String()
	if len(panDigits) < 13 {
		return "", ErrInvalidPAN
	}

	pinField := fmt.Sprintf("0%X%s", len(pin), pin)
	pinField += strings.Repeat("F", 16-len(pinField))
	panField := "0000" + panDigits[len(panDigits)-13:len(panDigits)-1]

	pinBytes, err := hex.DecodeString(pinField)
	if err != nil {
		return "", fmt.Errorf("encode PIN field: %w", err)
	}
	panBytes, err := hex.DecodeString(panField)
	if err != nil {
		return "", fmt.Errorf("encode PAN field: %w", err)
	}

	block := make([]byte, 8)
	for i := range block {
		block[i] = pinBytes[i] ^ panBytes[i]
	}
	return strings.ToUpper(hex.EncodeToString(block)), nil
}

// Verify reports whether block is the format 0 block of pin and pan.
func (p *PINBlock) Verify(block, pin, pan string) (bool, error) {
	want, err := p.Encode(pin, pan)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(block))) == 1, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
