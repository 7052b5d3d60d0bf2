package iso8583

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMTI         = errors.New("invalid MTI")
	ErrInvalidHex         = errors.New("invalid hex")
	ErrInvalidField       = errors.New("invalid field")
	ErrFieldNotFound      = errors.New("field not found")
	ErrInvalidLength      = errors.New("invalid field length")
	ErrInvalidBitmap      = errors.New("invalid bitmap")
	ErrUnknownFieldFormat = errors.New("unknown field format")
	ErrTruncatedField     = errors.New("truncated field data")
	ErrFieldTooLong       = errors.New("field value too long")
	ErrInvalidValue       = errors.New("invalid field value")
	ErrValidationFailed   = errors.New("validation failed")
	ErrBufferTooSmall     = errors.New("buffer too small")

	ErrUnsupportedLengthType = errors.New("unsupported length indicator type")
)

// FieldError ties a codec failure to the data element that caused it.
type FieldError struct {
	Field int
	Err   error
}

func (fe *FieldError) Error() string {
	return fmt.Sprintf("field %d: %v", fe.Field, fe.Err)
}

func (fe *FieldError) Unwrap() error {
	return fe.Err
}

type ValidationError struct {
	Field   int
	Rule    string
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %d (%s): %s", ve.Field, ve.Rule, ve.Message)
}

func (ve *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// IsDecodeError reports whether err came from decoding a malformed message.
// Decode errors are fatal to the message, never to the connection carrying it.
func IsDecodeError(err error) bool {
	for _, target := range []error{
		ErrInvalidMTI,
		ErrInvalidHex,
		ErrInvalidBitmap,
		ErrUnknownFieldFormat,
		ErrTruncatedField,
		ErrInvalidLength,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
