package errorhandler

import (
	"github.com/hugolhafner/go-camus/kafka"
)

// ErrorContext provides context about a failure on a single broker message.
type ErrorContext struct {
	// Message is the raw message that failed. Zero for fetch failures that
	// happened before any payload arrived.
	Message kafka.Message

	// Error is the error that occurred.
	Error error

	// Phase indicates where in the pull loop the error occurred
	Phase ErrorPhase

	// Failures is the number of failures seen on the current partition, including this one
	Failures int
}

func NewErrorContext(msg kafka.Message, err error) ErrorContext {
	return ErrorContext{
		Message:  msg,
		Error:    err,
		Failures: 1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithPhase(phase ErrorPhase) ErrorContext {
	ec.Phase = phase
	return ec
}

func (ec ErrorContext) WithFailures(n int) ErrorContext {
	ec.Failures = n
	return ec
}
