package errorhandler

import (
	"context"

	"github.com/hugolhafner/go-camus/logger"
)

// Diagnose reports the error as a diagnostic without logging
func Diagnose() Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			return ActionDiagnose{}
		},
	)
}

// LogAndSkip logs at debug level and drops the record without a diagnostic
func LogAndSkip(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Debug(
				"skipping undecodable record",
				"error", ec.Error,
				"topic", ec.Message.Topic,
				"partition", ec.Message.Partition,
				"offset", ec.Message.Offset,
				"phase", ec.Phase.String(),
			)
			return ActionSkip{}
		},
	)
}

// LogAndDiagnose logs the error and asks for a diagnostic entry
func LogAndDiagnose(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Info(
				"error pulling record, reporting",
				"error", ec.Error,
				"topic", ec.Message.Topic,
				"partition", ec.Message.Partition,
				"offset", ec.Message.Offset,
				"phase", ec.Phase.String(),
				"failures", ec.Failures,
			)
			return ActionDiagnose{}
		},
	)
}

// LogAndFail logs the error and aborts the task
func LogAndFail(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Error(
				"error pulling record, failing",
				"error", ec.Error,
				"topic", ec.Message.Topic,
				"partition", ec.Message.Partition,
				"offset", ec.Message.Offset,
				"phase", ec.Phase.String(),
			)
			return ActionFail{}
		},
	)
}

// ActionLogger logs the action decided by the next handler
func ActionLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			action := next.Handle(ctx, ec)

			l.Log(
				level,
				"Error handler decision",
				"action", action.Type().String(),
				"error", ec.Error,
				"topic", ec.Message.Topic,
				"partition", ec.Message.Partition,
				"offset", ec.Message.Offset,
				"phase", ec.Phase.String(),
			)
			return action
		},
	)
}

// ForDecodePolicy builds the default router: fetch failures are always diagnosed,
// decode failures are skipped when skipDecodeErrors is set and diagnosed otherwise.
func ForDecodePolicy(l logger.Logger, skipDecodeErrors bool) Handler {
	decode := LogAndDiagnose(l)
	if skipDecodeErrors {
		decode = LogAndSkip(l)
	}

	return NewPhaseRouter(LogAndDiagnose(l), nil, decode)
}
