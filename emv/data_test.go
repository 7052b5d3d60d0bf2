package emv

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsedEmvData_Accessors(t *testing.T) {
	data, err := ParseEmvHex(sampleDE55 + "5F200A4A4F484E20534D495448" + "5F3401015713" + "4111111111111111D28122011234567890123F")
	require.NoError(t, err)

	pan, ok := data.PAN()
	require.True(t, ok)
	assert.Equal(t, "4111111111111111", pan)

	expiry, ok := data.Expiry()
	require.True(t, ok)
	assert.Equal(t, "281231", expiry)
	yymm, _ := data.ExpiryYYMM()
	assert.Equal(t, "2812", yymm)

	amount, _ := data.AmountAuthorized()
	assert.Equal(t, "000000010000", amount)
	atc, _ := data.ATC()
	assert.Equal(t, "0001", atc)
	arqc, _ := data.ApplicationCryptogram()
	assert.Equal(t, "A1B2C3D4E5F60102", arqc)
	country, _ := data.TerminalCountry()
	assert.Equal(t, "0704", country)
	date, _ := data.TransactionDate()
	assert.Equal(t, "261018", date)

	txType, ok := data.TransactionType()
	require.True(t, ok)
	assert.Equal(t, byte(0x00), txType)

	name, ok := data.CardholderName()
	require.True(t, ok)
	assert.Equal(t, "JOHN SMITH", name)

	seq, _ := data.PANSequence()
	assert.Equal(t, "001", seq)

	track2, ok := data.Track2()
	require.True(t, ok)
	assert.Equal(t, "4111111111111111D28122011234567890123", track2)

	_, ok = data.AID()
	assert.False(t, ok, "absent tags are not an error")
}

func TestParsedEmvData_LastDuplicateWins(t *testing.T) {
	data, err := ParseEmvHex("9F3602000A9F3602000B")
	require.NoError(t, err)

	assert.Len(t, data.Elements, 2)
	assert.Equal(t, 1, data.Len())
	atc, _ := data.ATC()
	assert.Equal(t, "000B", atc)

	v, ok := data.TagHex("9f36")
	assert.True(t, ok)
	assert.Equal(t, "000B", v)
}

func TestParsedEmvData_Summary(t *testing.T) {
	data, err := ParseEmvHex("9F36020001DF810102AB")
	require.NoError(t, err)

	summary := data.Summary()
	assert.Contains(t, summary, "EMV data: 2 elements")
	assert.Contains(t, summary, "Application Transaction Counter (ATC)")
	assert.Contains(t, summary, "Online Response Data")
	assert.Contains(t, summary, "0001 (len=2)")
}

func TestParsedEmvData_LogValueHidesValues(t *testing.T) {
	data, err := ParseEmvHex(sampleDE55)
	require.NoError(t, err)

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("chip", "emv", data)

	assert.NotContains(t, buf.String(), "4111111111111111")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	logged := entry["emv"].(map[string]any)
	assert.EqualValues(t, 8, logged["count"])
	assert.Contains(t, logged["tags"], "5A/8")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Application Primary Account Number (PAN)", Describe("5a"))
	assert.Equal(t, "Issuer Application Data (IAD)", Describe("9F10"))
	assert.Equal(t, "Unknown Tag", Describe("DF01"))
}

func TestISOFieldFor(t *testing.T) {
	tests := map[string]int{
		"5A":   2,
		"5F24": 14,
		"9F39": 22,
		"5F34": 23,
		"57":   35,
		"9F1E": 41,
		"5F2A": 49,
		"9F26": DE55,
		"95":   DE55,
	}
	for tag, want := range tests {
		got, ok := ISOFieldFor(tag)
		require.True(t, ok, tag)
		assert.Equal(t, want, got, tag)
	}

	_, ok := ISOFieldFor("DF8101")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"5A"}, TagsForField(2))
	assert.Len(t, TagsForField(DE55), len(chipSubtags))
}
