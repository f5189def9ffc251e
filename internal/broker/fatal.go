package broker

import (
	"errors"
	"fmt"
)

// FatalError marks a task failure that must not re-enter the retry path,
// such as a missing prerequisite artifact.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

func Fatal(format string, args ...any) error {
	return &FatalError{err: fmt.Errorf(format, args...)}
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
