package iso8583

import (
	"encoding/hex"
	"fmt"
)

// Bitmap is the presence vector for data elements 1-128.
// Bit 1 (MSB of the first byte) flags the secondary bitmap and is
// maintained automatically.
type Bitmap struct {
	primary   [BitmapSize]byte
	secondary [SecondaryBitmapSize]byte
}

// NewBitmap returns an empty primary-only bitmap.
func NewBitmap() *Bitmap {
	return &Bitmap{}
}

// position returns the byte slice holding the bit for de and the bit mask.
func (bm *Bitmap) position(de int) (*byte, byte) {
	if de <= 64 {
		idx := de - 1
		return &bm.primary[idx/8], 1 << (7 - idx%8)
	}
	idx := de - 65
	return &bm.secondary[idx/8], 1 << (7 - idx%8)
}

// Set sets the bit for the given data element (1-128).
// Setting any element above 64 also sets bit 1.
func (bm *Bitmap) Set(de int) error {
	if de < 1 || de > MaxFieldNumber {
		return fmt.Errorf("%w: data element %d out of range", ErrInvalidField, de)
	}

	b, mask := bm.position(de)
	*b |= mask
	if de > 64 {
		bm.primary[0] |= 0x80
	}
	return nil
}

// Clear clears the bit for the given data element.
// Clearing the last secondary element also clears bit 1.
func (bm *Bitmap) Clear(de int) error {
	if de < 1 || de > MaxFieldNumber {
		return fmt.Errorf("%w: data element %d out of range", ErrInvalidField, de)
	}

	b, mask := bm.position(de)
	*b &^= mask

	if de > 64 && bm.secondaryEmpty() {
		bm.primary[0] &^= 0x80
	}
	return nil
}

// IsSet reports whether the bit for de is set.
func (bm *Bitmap) IsSet(de int) bool {
	if de < 1 || de > MaxFieldNumber {
		return false
	}
	if de > 64 && !bm.HasSecondary() {
		return false
	}
	b, mask := bm.position(de)
	return *b&mask != 0
}

// HasSecondary returns true if bit 1 is set.
func (bm *Bitmap) HasSecondary() bool {
	return bm.primary[0]&0x80 != 0
}

func (bm *Bitmap) secondaryEmpty() bool {
	for _, b := range bm.secondary {
		if b != 0 {
			return false
		}
	}
	return true
}

// Fields returns the set data elements in ascending order, excluding bit 1.
func (bm *Bitmap) Fields() []int {
	fields := make([]int, 0, 16)
	limit := 64
	if bm.HasSecondary() {
		limit = MaxFieldNumber
	}
	for de := 2; de <= limit; de++ {
		if bm.IsSet(de) {
			fields = append(fields, de)
		}
	}
	return fields
}

// Size returns the wire size of the bitmap in bytes (8 or 16).
func (bm *Bitmap) Size() int {
	if bm.HasSecondary() {
		return BitmapSize + SecondaryBitmapSize
	}
	return BitmapSize
}

// Bytes returns the 8 or 16 wire bytes.
func (bm *Bitmap) Bytes() []byte {
	out := make([]byte, 0, bm.Size())
	out = append(out, bm.primary[:]...)
	if bm.HasSecondary() {
		out = append(out, bm.secondary[:]...)
	}
	return out
}

// String returns the bitmap as upper-case hex (16 or 32 characters).
func (bm *Bitmap) String() string {
	raw := bm.Bytes()
	buf := make([]byte, len(raw)*2)
	encodeHexUpper(buf, raw)
	return string(buf)
}

// Reset clears all bits.
func (bm *Bitmap) Reset() {
	bm.primary = [BitmapSize]byte{}
	bm.secondary = [SecondaryBitmapSize]byte{}
}

// ParseBitmap decodes a 16 or 32 character hex bitmap.
func ParseBitmap(s string) (*Bitmap, error) {
	if len(s) != BitmapSize*2 && len(s) != (BitmapSize+SecondaryBitmapSize)*2 {
		return nil, fmt.Errorf("%w: hex length %d, want 16 or 32", ErrInvalidBitmap, len(s))
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}

	bm := &Bitmap{}
	copy(bm.primary[:], raw[:BitmapSize])
	if len(raw) > BitmapSize {
		copy(bm.secondary[:], raw[BitmapSize:])
	}
	return bm, nil
}

// ReadBitmap reads a binary bitmap from the start of data and returns it with
// the number of bytes consumed. The secondary half is read only when bit 1 is set.
func ReadBitmap(data []byte) (*Bitmap, int, error) {
	if len(data) < BitmapSize {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrInvalidBitmap, BitmapSize, len(data))
	}

	bm := &Bitmap{}
	copy(bm.primary[:], data[:BitmapSize])
	if !bm.HasSecondary() {
		return bm, BitmapSize, nil
	}

	if len(data) < BitmapSize+SecondaryBitmapSize {
		return nil, 0, fmt.Errorf("%w: secondary bitmap truncated", ErrInvalidBitmap)
	}
	copy(bm.secondary[:], data[BitmapSize:BitmapSize+SecondaryBitmapSize])
	return bm, BitmapSize + SecondaryBitmapSize, nil
}
