package transaction

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkadit/payswitch/iso8583"
)

func mockRequest(t *testing.T) *iso8583.Message {
	t.Helper()
	msg, err := iso8583.NewBuilder(iso8583.MTIFinancialRequest).
		PAN("4111111111111111").
		ProcessingCode("000000").
		Amount("000000010000").
		STAN("000777").
		Field(iso8583.FieldLocalTime, "103000").
		Field(iso8583.FieldLocalDate, "1018").
		TerminalID("TERM0001").
		Field(iso8583.FieldCurrency, "704").
		Build()
	require.NoError(t, err)
	return msg
}

func TestMockResponder_Approves(t *testing.T) {
	m := mockIssuer(1)
	req := mockRequest(t)

	res, err := m.Respond(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, iso8583.MTIFinancialResponse, res.MTI())
	assert.Equal(t, "00", res.FieldOr(iso8583.FieldResponseCode, ""))
	for _, de := range []int{iso8583.FieldPAN, iso8583.FieldAmount, iso8583.FieldSTAN, iso8583.FieldTerminalID} {
		assert.Equal(t, req.FieldOr(de, ""), res.FieldOr(de, "missing"), "DE%d", de)
	}

	auth := res.FieldOr(iso8583.FieldAuthCode, "")
	require.Len(t, auth, 6)
	assert.GreaterOrEqual(t, auth, "100000")

	rrn := res.FieldOr(iso8583.FieldRRN, "")
	require.Len(t, rrn, 12)
	assert.Equal(t, "529110", rrn[:6], "year digit, day of year, hour")
	assert.Equal(t, "1018103000", res.FieldOr(iso8583.FieldTransmissionDateTime, ""))

	_, err = iso8583.DefaultPackager().Pack(res)
	assert.NoError(t, err)
}

func TestMockResponder_Declines(t *testing.T) {
	m := mockIssuer(0)
	for i := 0; i < 20; i++ {
		res, err := m.Respond(context.Background(), mockRequest(t))
		require.NoError(t, err)
		rc := ResponseCode(res.FieldOr(iso8583.FieldResponseCode, ""))
		assert.Contains(t, mockDeclines, rc)
		assert.False(t, res.HasField(iso8583.FieldAuthCode))
	}
}

func TestMockResponder_Reproducible(t *testing.T) {
	draw := func() []string {
		m := NewMockResponder(
			WithDelay(0, 0),
			WithRand(rand.New(rand.NewPCG(42, 42))),
			WithMockClock(fixedClock),
			WithMockLogger(discardLogger()),
		)
		var codes []string
		for i := 0; i < 10; i++ {
			res, err := m.Respond(context.Background(), mockRequest(t))
			require.NoError(t, err)
			codes = append(codes, res.FieldOr(iso8583.FieldResponseCode, "")+res.FieldOr(iso8583.FieldRRN, ""))
		}
		return codes
	}
	assert.Equal(t, draw(), draw())
}

func TestMockResponder_HonoursContext(t *testing.T) {
	m := NewMockResponder(WithDelay(time.Second, time.Second), WithMockLogger(discardLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Respond(ctx, mockRequest(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockResponder_RejectsResponseMTI(t *testing.T) {
	m := mockIssuer(1)
	req := iso8583.NewBuilder(iso8583.MTIFinancialResponse).MustBuild()
	_, err := m.Respond(context.Background(), req)
	assert.Error(t, err)
}

func TestWithSuccessRate_Clamps(t *testing.T) {
	assert.Equal(t, 1.0, NewMockResponder(WithSuccessRate(3)).successRate)
	assert.Equal(t, 0.0, NewMockResponder(WithSuccessRate(-1)).successRate)
	assert.Equal(t, DefaultSuccessRate, NewMockResponder().successRate)
}
