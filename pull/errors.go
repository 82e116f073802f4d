package pull

import (
	"errors"
)

// ErrDone is returned by Engine.Next once no more records will be produced
var ErrDone = errors.New("pull: done")

// ErrNilRecord is returned when a decoder reports success without a record
var ErrNilRecord = errors.New("pull: decoder returned nil record")
