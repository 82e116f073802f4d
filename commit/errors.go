package commit

import (
	"errors"
	"fmt"
)

// ErrWorkingFileName is returned when a working file name does not follow the grammar
var ErrWorkingFileName = errors.New("cannot extract metadata from working file name")

// ErrMissingCounts is returned when a working file has no recorded counts
var ErrMissingCounts = errors.New("no counts recorded for working file")

// PromotionError is a failure to move a working file into its destination
type PromotionError struct {
	Source string
	Dest   string
	Err    error
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("failed to move %s to %s: %v", e.Source, e.Dest, e.Err)
}

func (e *PromotionError) Unwrap() error {
	return e.Err
}

func AsPromotionError(err error) (*PromotionError, bool) {
	var pe *PromotionError
	ok := errors.As(err, &pe)
	return pe, ok
}

// RollbackError is a failure to delete a committed file or its replica during abort
type RollbackError struct {
	Path    string
	Replica bool
	Err     error
}

func (e *RollbackError) Error() string {
	if e.Replica {
		return fmt.Sprintf("failed to delete replica %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to roll back file %s: %v", e.Path, e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

func AsRollbackError(err error) (*RollbackError, bool) {
	var re *RollbackError
	ok := errors.As(err, &re)
	return re, ok
}
