package runner

import (
	"time"

	"github.com/hugolhafner/go-camus/commit"
	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/otel"
	"github.com/hugolhafner/go-camus/pull"
)

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry
	Now       func() time.Time

	// AttemptID names the working directory; a random one is generated when empty
	AttemptID string
	Progress  []ProgressOption

	EngineOptions []pull.Option
	CommitOptions []commit.Option
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

func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

func WithAttemptID(id string) Option {
	return func(c *Config) {
		c.AttemptID = id
	}
}

// WithProgress configures how often the task logs its progress
func WithProgress(opts ...ProgressOption) Option {
	return func(c *Config) {
		c.Progress = append(c.Progress, opts...)
	}
}

// WithEngineOptions passes options through to the pull engine
func WithEngineOptions(opts ...pull.Option) Option {
	return func(c *Config) {
		c.EngineOptions = append(c.EngineOptions, opts...)
	}
}

// WithCommitOptions passes options through to the committer
func WithCommitOptions(opts ...commit.Option) Option {
	return func(c *Config) {
		c.CommitOptions = append(c.CommitOptions, opts...)
	}
}

func defaultConfig() Config {
	return Config{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
		Now:       time.Now,
	}
}
