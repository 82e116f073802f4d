package kafka

import (
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hugolhafner/go-camus/logger"
)

var _ kgo.Logger = (*partitionLogger)(nil)

// partitionLogger bridges the logs of a per-partition kgo client. Every reader
// owns a short-lived client, so client lifecycle chatter at info is demoted to debug.
type partitionLogger struct {
	l logger.Logger
}

func newPartitionLogger(l logger.Logger, a Assignment) *partitionLogger {
	return &partitionLogger{l: l.With("component", "franz-go", "topic", a.Topic, "partition", a.Partition)}
}

func (pl *partitionLogger) Level() kgo.LogLevel {
	switch pl.l.Level() {
	case logger.DebugLevel:
		return kgo.LogLevelDebug
	case logger.ErrorLevel:
		return kgo.LogLevelError
	default:
		return kgo.LogLevelWarn
	}
}

func (pl *partitionLogger) Log(level kgo.LogLevel, msg string, args ...any) {
	pl.l.Log(fromKgoLevel(level), msg, args...)
}

func fromKgoLevel(level kgo.LogLevel) logger.LogLevel {
	switch level {
	case kgo.LogLevelError:
		return logger.ErrorLevel
	case kgo.LogLevelWarn:
		return logger.WarnLevel
	default:
		return logger.DebugLevel
	}
}
