package transaction

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a switched transaction, stored as its
// upper-case name.
type State string

const (
	StateCreated  State = "CREATED"
	StateSent     State = "SENT"
	StateApproved State = "APPROVED"
	StateDeclined State = "DECLINED"
	StateTimeout  State = "TIMEOUT"
	StateReversed State = "REVERSED"
	StateVoided   State = "VOIDED"
	StateFailed   State = "FAILED"
)

var validStates = map[State]bool{
	StateCreated:  true,
	StateSent:     true,
	StateApproved: true,
	StateDeclined: true,
	StateTimeout:  true,
	StateReversed: true,
	StateVoided:   true,
	StateFailed:   true,
}

// ParseState accepts a state name in any case.
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(s))
	if !validStates[st] {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return st, nil
}

func (s State) String() string {
	return string(s)
}

// IsFinal reports whether no further issuer reply is expected.
func (s State) IsFinal() bool {
	switch s {
	case StateCreated, StateSent:
		return false
	}
	return true
}

// Reversible reports whether an automatic or manual reversal may be sent.
func (s State) Reversible() error {
	switch s {
	case StateApproved:
		return ErrTransactionAlreadyCompleted
	case StateReversed:
		return ErrAlreadyReversed
	}
	return nil
}
