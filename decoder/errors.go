package decoder

import (
	"errors"
	"fmt"
)

// ErrSchemaNotFound is returned when no schema is registered for a message
var ErrSchemaNotFound = errors.New("schema not found")

// DecodeError wraps a failure to decode a single message
type DecodeError struct {
	Topic     string
	Partition int32
	Offset    int64
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s-%d@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func AsDecodeError(err error) (*DecodeError, bool) {
	var de *DecodeError
	ok := errors.As(err, &de)
	return de, ok
}

// IsSchemaNotFound reports whether err was caused by a missing schema
func IsSchemaNotFound(err error) bool {
	return errors.Is(err, ErrSchemaNotFound)
}
