package repository

import "errors"

// ErrDuplicateKey is returned when a record with the same date, time and
// unique number already exists.
var ErrDuplicateKey = errors.New("duplicate transaction key")
