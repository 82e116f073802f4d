package errorhandler

import (
	"context"
)

// ErrorPhase indicates where in the pull loop an error occurred
type ErrorPhase int

const (
	PhaseUnknown ErrorPhase = iota // zero value - uninitialized phase
	PhaseFetch                     // error while fetching from the broker
	PhaseDecode                    // error while decoding a fetched message
)

func (p ErrorPhase) String() string {
	switch p {
	case PhaseFetch:
		return "fetch"
	case PhaseDecode:
		return "decode"
	default:
		return "unknown"
	}
}

var _ Handler = (*PhaseRouter)(nil)

type PhaseRouter struct {
	handler       Handler
	fetchHandler  Handler
	decodeHandler Handler
}

// NewPhaseRouter creates a PhaseRouter with a handler per phase.
// A nil phase handler falls back to handler; a nil handler defaults to Diagnose.
func NewPhaseRouter(handler Handler, fetchHandler Handler, decodeHandler Handler) *PhaseRouter {
	if handler == nil {
		handler = Diagnose()
	}

	return &PhaseRouter{
		handler:       handler,
		fetchHandler:  fetchHandler,
		decodeHandler: decodeHandler,
	}
}

func (r *PhaseRouter) Handle(ctx context.Context, ec ErrorContext) Action {
	switch ec.Phase {
	case PhaseFetch:
		if r.fetchHandler != nil {
			return r.fetchHandler.Handle(ctx, ec)
		}
	case PhaseDecode:
		if r.decodeHandler != nil {
			return r.decodeHandler.Handle(ctx, ec)
		}
	case PhaseUnknown:
	default:
	}

	return r.handler.Handle(ctx, ec)
}
