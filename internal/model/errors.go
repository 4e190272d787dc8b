package model

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Data-quality conditions. These are absorbed by the component that meets
// them and never returned from Fuse or Score.
var (
	ErrSourceUnavailable    = eris.New("source unavailable")
	ErrInvalidBaseline      = eris.New("invalid baseline")
	ErrMalformedLegalRecord = eris.New("malformed legal record")
)

// StructuralInputError reports a caller that violated an input contract,
// such as negative counts or an out-of-range relevance. It is the only error
// the scoring core returns.
type StructuralInputError struct {
	Field  string
	Reason string
}

func (e *StructuralInputError) Error() string {
	return fmt.Sprintf("structural input error: %s: %s", e.Field, e.Reason)
}

// NewStructuralError builds a StructuralInputError for field.
func NewStructuralError(field, format string, args ...any) error {
	return &StructuralInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsStructural reports whether err is or wraps a StructuralInputError.
func IsStructural(err error) bool {
	var se *StructuralInputError
	return errors.As(err, &se)
}
