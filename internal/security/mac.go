// Package security holds the mock MAC and PIN block primitives. Keys are
// static test keys; a deployment with an HSM replaces both types.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mkadit/payswitch/iso8583"
)

// MockKeyHex is the static key used by NewMockMAC.
const MockKeyHex = "0123456789ABCDEFFEDCBA9876543210"

// macSize is the number of HMAC bytes kept, the width of DE64.
const macSize = 8

var ErrInvalidMAC = errors.New("message authentication failed")

// MACCalculator computes truncated HMAC-SHA256 codes.
type MACCalculator struct {
	key []byte
}

func NewMockMAC() *MACCalculator {
	key, _ := hex.DecodeString(MockKeyHex)
	return &MACCalculator{key: key}
}

func NewMAC(key []byte) *MACCalculator {
	return &MACCalculator{key: append([]byte(nil), key...)}
}

// Calculate returns the first 8 bytes of HMAC-SHA256(data) as upper hex.
func (c *MACCalculator) Calculate(data []byte) string {
	h := hmac.New(sha256.New, c.key)
	h.Write(data)
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)[:macSize]))
}

// Verify compares mac against the code for data in constant time. Case is
// ignored.
func (c *MACCalculator) Verify(data []byte, mac string) bool {
	want := c.Calculate(data)
	got := strings.ToUpper(mac)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// CalculateHex computes the code over a hex-encoded message.
func (c *MACCalculator) CalculateHex(messageHex string) (string, error) {
	raw, err := hex.DecodeString(strings.Join(strings.Fields(messageHex), ""))
	if err != nil {
		return "", fmt.Errorf("invalid hex message: %w", err)
	}
	return c.Calculate(raw), nil
}

// MessageSigner stamps DE64 on outgoing messages.
type MessageSigner struct {
	mac      *MACCalculator
	packager *iso8583.Packager
}

func NewMessageSigner(mac *MACCalculator, packager *iso8583.Packager) *MessageSigner {
	if packager == nil {
		packager = iso8583.DefaultPackager()
	}
	return &MessageSigner{mac: mac, packager: packager}
}

// Sign sets DE64 to the code of msg packed without DE64. msg must not be
// sealed yet.
func (s *MessageSigner) Sign(msg *iso8583.Message) error {
	data, err := s.macInput(msg)
	if err != nil {
		return err
	}
	return msg.SetField(iso8583.FieldMAC, s.mac.Calculate(data))
}

// Verify checks DE64 of msg.
func (s *MessageSigner) Verify(msg *iso8583.Message) error {
	mac, ok := msg.Field(iso8583.FieldMAC)
	if !ok {
		return fmt.Errorf("%w: DE64 missing", ErrInvalidMAC)
	}
	data, err := s.macInput(msg)
	if err != nil {
		return err
	}
	if !s.mac.Verify(data, mac) {
		return ErrInvalidMAC
	}
	return nil
}

func (s *MessageSigner) macInput(msg *iso8583.Message) ([]byte, error) {
	unsigned := msg.Clone()
	if err := unsigned.RemoveField(iso8583.FieldMAC); err != nil {
		return nil, err
	}
	data, err := s.packager.Pack(unsigned)
	if err != nil {
		return nil, fmt.Errorf("pack for MAC: %w", err)
	}
	return data, nil
}
