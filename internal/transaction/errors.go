package transaction

import "errors"

var (
	ErrPersistence   = errors.New("persistence error")
	ErrResponder     = errors.New("responder error")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidCard   = errors.New("invalid card data")
	ErrBuildMessage  = errors.New("build request message")
	ErrTimeout       = errors.New("issuer response timeout")
)

// Reversal errors. None of them is returned after a side effect.
var (
	ErrTransactionNotFound         = errors.New("transaction not found")
	ErrTransactionAlreadyCompleted = errors.New("transaction already completed")
	ErrAlreadyReversed             = errors.New("transaction already reversed")
	ErrInvalidState                = errors.New("invalid transaction state")
	ErrDatabase                    = errors.New("database error")
)
