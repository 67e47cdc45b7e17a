package errors

import (
	"go.uber.org/multierr"
)

// ErrorCollection accumulates errors so that callers can report all of them at once.
// Nil errors are ignored.
type ErrorCollection struct {
	err error
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{}
}

func (c *ErrorCollection) Add(err error) {
	if err == nil {
		return
	}
	c.err = multierr.Append(c.err, err)
}

func (c *ErrorCollection) HasErrors() bool {
	return c.err != nil
}

// Errors returns the flattened list of collected errors
func (c *ErrorCollection) Errors() []error {
	return multierr.Errors(c.err)
}

func (c *ErrorCollection) Len() int {
	return len(c.Errors())
}

func (c *ErrorCollection) Error() string {
	if c.err == nil {
		return ""
	}
	return c.err.Error()
}

// ToError returns nil when nothing was collected, otherwise a combined error
// that unwraps to every member.
func (c *ErrorCollection) ToError() error {
	return c.err
}
