package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	st, err := ParseState("approved")
	require.NoError(t, err)
	assert.Equal(t, StateApproved, st)

	_, err = ParseState("PENDING")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestState_Reversible(t *testing.T) {
	assert.ErrorIs(t, StateApproved.Reversible(), ErrTransactionAlreadyCompleted)
	assert.ErrorIs(t, StateReversed.Reversible(), ErrAlreadyReversed)
	for _, s := range []State{StateCreated, StateSent, StateDeclined, StateTimeout, StateFailed} {
		assert.NoError(t, s.Reversible(), s.String())
	}
	assert.False(t, StateSent.IsFinal())
	assert.True(t, StateTimeout.IsFinal())
}

func TestStateForResponse(t *testing.T) {
	tests := []struct {
		raw     string
		present bool
		state   State
		known   bool
	}{
		{"00", true, StateApproved, true},
		{"05", true, StateDeclined, true},
		{"51", true, StateDeclined, true},
		{"96", true, StateDeclined, true},
		{"ZZ", true, StateFailed, false},
		{"", false, StateFailed, false},
	}
	for _, tt := range tests {
		state, rc, ok := StateForResponse(tt.raw, tt.present)
		assert.Equal(t, tt.state, state, tt.raw)
		assert.Equal(t, tt.known, ok, tt.raw)
		if ok {
			assert.Equal(t, tt.raw, rc.String())
		}
	}
	assert.Equal(t, "Insufficient funds", DescribeResponse("51"))
	assert.Equal(t, "Unknown response", DescribeResponse("99"))
}
