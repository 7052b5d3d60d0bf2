package iso8583

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Mandatory(t *testing.T) {
	v := NewValidator(FieldProcessingCode, FieldAmount, FieldSTAN)
	assert.Equal(t, []int{3, 4, 11}, v.Mandatory())

	msg := NewMessage(MTIFinancialRequest)
	require.NoError(t, msg.SetField(FieldProcessingCode, "000000"))

	err := v.Validate(msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, FieldAmount, ve.Field)
	assert.Equal(t, "mandatory", ve.Rule)
}

func TestValidator_FieldRules(t *testing.T) {
	v := NewValidator().
		AddRule(FieldPAN, &NumericRule{}).
		AddRule(FieldPAN, &LuhnRule{}).
		AddRule(FieldTerminalID, &LengthRule{ExactLength: 8}).
		AddRule(FieldICCData, &HexRule{}).
		AddRule(FieldCurrency, &RegexRule{Pattern: regexp.MustCompile(`^\d{3}$`)})

	good := NewBuilder(MTIFinancialRequest).
		PAN("4111111111111111").
		TerminalID("T0000001").
		Field(FieldICCData, "9F0100").
		Field(FieldCurrency, "704").
		MustBuild()
	assert.NoError(t, v.Validate(good))

	bad := NewBuilder(MTIFinancialRequest).
		PAN("4111111111111112").
		TerminalID("T1").
		Field(FieldICCData, "9F0").
		Field(FieldCurrency, "VND").
		MustBuild()
	err := v.Validate(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "luhn")
	assert.Contains(t, err.Error(), "length")
	assert.Contains(t, err.Error(), "hex")
	assert.Contains(t, err.Error(), "regex")
}

func TestValidator_AbsentFieldSkipsRules(t *testing.T) {
	v := NewValidator().AddRule(FieldPAN, &LuhnRule{})
	assert.NoError(t, v.Validate(NewMessage(MTIFinancialRequest)))
}
