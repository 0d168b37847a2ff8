package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingDateColumn means the input has no ValueDate column.
	ErrMissingDateColumn = errors.New("missing ValueDate column")
	// ErrInvalidDate means a ValueDate cell could not be parsed.
	ErrInvalidDate = errors.New("invalid ValueDate")
)

// InputError reports a problem with user-supplied data. Analysis aborts
// before any metric is processed.
type InputError struct {
	Err   error
	Row   int // 1-based source row including the header; 0 when not row specific
	Value string
}

func (e *InputError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%v at row %d: %q", e.Err, e.Row, e.Value)
	}
	return e.Err.Error()
}

func (e *InputError) Unwrap() error { return e.Err }

// IsInputError reports whether err was caused by invalid input data.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
