package helper

import "fmt"

// Error wraps an underlying error with the operation that failed
type Error struct {
	Context string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Context, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the name of the failing operation
func NewError(context string, err error) error {
	return &Error{Context: context, Err: err}
}
