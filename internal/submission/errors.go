package submission

import "fmt"

// ErrMalformedInput indicates the submitted text is not a JSON object at all.
type ErrMalformedInput struct {
	Err error
}

func (e *ErrMalformedInput) Error() string {
	return fmt.Sprintf("malformed submission: %v", e.Err)
}

func (e *ErrMalformedInput) Unwrap() error { return e.Err }

// ErrValidation indicates a required identity field is missing.
type ErrValidation struct {
	Field string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}
