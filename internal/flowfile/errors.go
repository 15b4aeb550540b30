package flowfile

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSerialization marks a malformed file or share payload
var ErrSerialization = errors.New("serialization failure")

// SerializationError reports which step of an import or export failed
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrSerialization, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSerialization, e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Is matches ErrSerialization as well as the wrapped cause
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

func failure(op string, err error) error {
	return &SerializationError{Op: op, Err: err}
}
