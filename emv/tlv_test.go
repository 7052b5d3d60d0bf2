package emv

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDE55 = "5A0841111111111111115F24032812319F02060000000100009F360200019F2608A1B2C3D4E5F601029F1A0207049A032610189C0100"

func TestParse_SingleByteTag(t *testing.T) {
	elements, err := Parse([]byte{0x5A, 0x05, 0x41, 0x11, 0x11, 0x11, 0x11})
	require.NoError(t, err)
	require.Len(t, elements, 1)

	assert.Equal(t, "5A", elements[0].TagHex())
	assert.Equal(t, 5, elements[0].Length)
	assert.Equal(t, "4111111111", elements[0].ValueHex())
	assert.False(t, elements[0].Truncated)
}

func TestParse_ReconstructsOriginalBytes(t *testing.T) {
	raw, err := hex.DecodeString(sampleDE55)
	require.NoError(t, err)

	elements, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, elements, 8)

	var rebuilt []byte
	for _, e := range elements {
		rebuilt = append(rebuilt, e.Tag...)
		lengthBytes, err := encodeLength(e.Length)
		require.NoError(t, err)
		rebuilt = append(rebuilt, lengthBytes...)
		rebuilt = append(rebuilt, e.Value...)
	}
	assert.Equal(t, raw, rebuilt)

	packed, err := Pack(elements)
	require.NoError(t, err)
	assert.Equal(t, raw, packed)
}

func TestParse_LongFormLengths(t *testing.T) {
	value := make([]byte, 300)
	for i := range value {
		value[i] = byte(i)
	}

	packed, err := Pack([]TLV{{Tag: []byte{0x9F, 0x10}, Value: value}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x9F, 0x10, 0x82, 0x01, 0x2C}, packed[:5])

	elements, err := Parse(packed)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, 300, elements[0].Length)
	assert.Equal(t, value, elements[0].Value)

	elements, err = Parse([]byte{0x50, 0x81, 0x03, 'V', 'I', 'S'})
	require.NoError(t, err)
	require.Len(t, elements, 1)
	name, ok := elements[0].ValueASCII()
	assert.True(t, ok)
	assert.Equal(t, "VIS", name)

	elements, err = Parse([]byte{0x50, 0x83, 0x00, 0x00, 0x01, 'A'})
	require.NoError(t, err)
	assert.Equal(t, 1, elements[0].Length)
}

func TestParse_TruncatedTailIsSalvaged(t *testing.T) {
	elements, err := ParseHex("9F3602000A 9F26 08 A1B2C3")
	require.NoError(t, err)
	require.Len(t, elements, 2)

	assert.Equal(t, "9F36", elements[0].TagHex())
	assert.False(t, elements[0].Truncated)

	last := elements[1]
	assert.Equal(t, "9F26", last.TagHex())
	assert.Equal(t, 3, last.Length)
	assert.Equal(t, "A1B2C3", last.ValueHex())
	assert.True(t, last.Truncated)
}

func TestParse_DanglingTagStops(t *testing.T) {
	elements, err := ParseHex("9F360200019F")
	require.NoError(t, err)
	assert.Len(t, elements, 1)

	elements, err = ParseHex("9F3602000182")
	require.NoError(t, err)
	assert.Len(t, elements, 1)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte{0x5A, 0x84, 0x00})
	assert.ErrorIs(t, err, ErrInvalidLengthEncoding)
	var te *TLVError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []byte{0x5A}, te.Tag)

	_, err = Parse([]byte{0x5A, 0x82, 0x01})
	assert.ErrorIs(t, err, ErrUnexpectedEnd)

	_, err = ParseHex("5A0")
	assert.ErrorIs(t, err, ErrInvalidHex)

	_, err = ParseHex("5G00")
	assert.ErrorIs(t, err, ErrInvalidHex)
}

func TestPack_Errors(t *testing.T) {
	_, err := Pack([]TLV{{Value: []byte{0x01}}})
	assert.ErrorIs(t, err, ErrInvalidTag)

	_, err = PackInto([]TLV{{Tag: []byte{0x5A}, Value: []byte{1, 2, 3}}}, make([]byte, 3))
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestTLV_ValueASCII(t *testing.T) {
	_, ok := TLV{Value: []byte{0x41, 0x00}}.ValueASCII()
	assert.False(t, ok)

	v, ok := TLV{Value: []byte("JOHN DOE")}.ValueASCII()
	assert.True(t, ok)
	assert.Equal(t, "JOHN DOE", v)
}

func TestFind(t *testing.T) {
	elements, err := ParseHex(sampleDE55)
	require.NoError(t, err)

	e, ok := Find(elements, []byte{0x9F, 0x36})
	require.True(t, ok)
	assert.Equal(t, "0001", e.ValueHex())

	_, ok = Find(elements, []byte{0x9F, 0x37})
	assert.False(t, ok)
}
