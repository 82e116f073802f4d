package pull

import (
	"time"

	"github.com/hugolhafner/go-camus/errorhandler"
	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/otel"
)

const (
	// graceRecords is how many records a partition must have read before the task time budget can stop it
	graceRecords = 5

	defaultMaxDecoderDiagnostics = 10

	defaultServer  = "server"
	defaultService = "service"
	ignoreAll      = "all"
)

type Config struct {
	Logger       logger.Logger
	Telemetry    *otel.Telemetry
	ErrorHandler errorhandler.Handler
	Diagnostics  DiagnosticSink
	Now          func() time.Time

	// MaxHistory bounds how far past a partition's first event time the engine reads. Zero disables it.
	MaxHistory time.Duration
	// MaxTaskTime bounds the wall-clock time of the whole task. Zero disables it.
	MaxTaskTime time.Duration
	// MaxDecoderDiagnostics caps decode diagnostics per partition
	MaxDecoderDiagnostics int
	// IgnoreServerServiceTopics have their server and service reset to the defaults; "all" matches every topic
	IgnoreServerServiceTopics []string
}

func defaultConfig() Config {
	return Config{
		Logger:                logger.NewNoopLogger(),
		Telemetry:             otel.Noop(),
		Diagnostics:           DiscardDiagnostics(),
		Now:                   time.Now,
		MaxDecoderDiagnostics: defaultMaxDecoderDiagnostics,
	}
}

type Option func(*Config)

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// WithErrorHandler decides what happens to fetch and decode failures
func WithErrorHandler(h errorhandler.Handler) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

func WithDiagnosticSink(s DiagnosticSink) Option {
	return func(c *Config) {
		if s != nil {
			c.Diagnostics = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

func WithMaxHistory(d time.Duration) Option {
	return func(c *Config) {
		c.MaxHistory = d
	}
}

func WithMaxTaskTime(d time.Duration) Option {
	return func(c *Config) {
		c.MaxTaskTime = d
	}
}

func WithMaxDecoderDiagnostics(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxDecoderDiagnostics = n
		}
	}
}

func WithIgnoreServerServiceTopics(topics ...string) Option {
	return func(c *Config) {
		c.IgnoreServerServiceTopics = topics
	}
}
