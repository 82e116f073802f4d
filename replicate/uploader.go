package replicate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"go.opentelemetry.io/otel/metric"

	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/otel"
	"github.com/hugolhafner/go-camus/storage"
)

const defaultMaxRetries = 3

// Dialer opens a connection to the secondary store. It is called once per attempt.
type Dialer func(ctx context.Context) (storage.Store, error)

// Static always hands out s
func Static(s storage.Store) Dialer {
	return func(context.Context) (storage.Store, error) { return s, nil }
}

type Config struct {
	Logger     logger.Logger
	Telemetry  *otel.Telemetry
	MaxRetries int
	Backoff    backoff.Backoff
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

// WithMaxRetries sets how many times a failed upload is retried after the first attempt
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxRetries = n
		}
	}
}

func WithBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		if b != nil {
			c.Backoff = b
		}
	}
}

// Uploader copies promoted files to a secondary store on a best-effort basis
type Uploader struct {
	dial   Dialer
	config Config
	logger logger.Logger

	succeeded atomic.Int64
	failed    atomic.Int64
}

func NewUploader(dial Dialer, opts ...Option) *Uploader {
	config := Config{
		Logger:     logger.NewNoopLogger(),
		Telemetry:  otel.Noop(),
		MaxRetries: defaultMaxRetries,
		Backoff:    backoff.NewFixed(0),
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &Uploader{
		dial:   dial,
		config: config,
		logger: config.Logger.With("component", "replication-uploader"),
	}
}

// Upload copies srcPath on src to dest on the secondary store. Failures are retried,
// logged and counted; the returned error is informational and never fatal to a commit.
func (u *Uploader) Upload(ctx context.Context, src storage.Store, srcPath, dest string) error {
	var lastErr error
	for attempt := 0; attempt <= u.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return u.fail(ctx, src, srcPath, errors.Join(lastErr, ctx.Err()))
			}
			select {
			case <-ctx.Done():
				return u.fail(ctx, src, srcPath, errors.Join(lastErr, ctx.Err()))
			case <-time.After(u.config.Backoff.Next(uint(attempt))):
			}
		}

		dst, err := u.attempt(ctx, src, srcPath, dest)
		if err == nil {
			u.succeeded.Add(1)
			u.config.Telemetry.Uploads.Add(ctx, 1, uploadStatus(otel.UploadSuccess))
			u.logger.Info("Uploaded file", "source", src.URL(srcPath), "dest", dst)
			return nil
		}
		lastErr = err

		if attempt < u.config.MaxRetries {
			u.config.Telemetry.Uploads.Add(ctx, 1, uploadStatus(otel.UploadRetry))
			u.logger.Error("Failed uploading file, will retry", "source", src.URL(srcPath), "retries", attempt, "error", err)
		}
	}

	return u.fail(ctx, src, srcPath, lastErr)
}

func (u *Uploader) fail(ctx context.Context, src storage.Store, srcPath string, err error) error {
	u.failed.Add(1)
	u.config.Telemetry.Uploads.Add(ctx, 1, uploadStatus(otel.UploadFailure))
	u.logger.Error("Failed to upload file", "source", src.URL(srcPath), "error", err)
	return fmt.Errorf("upload %s: %w", srcPath, err)
}

func uploadStatus(status string) metric.MeasurementOption {
	return metric.WithAttributes(otel.AttrUploadStatus.String(status))
}

func (u *Uploader) attempt(ctx context.Context, src storage.Store, srcPath, dest string) (url string, err error) {
	dst, err := u.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer closeStore(dst, &err)

	return dst.URL(dest), storage.Copy(ctx, src, srcPath, dst, dest)
}

// Delete removes a replica. Unlike Upload, a failure is returned to the caller.
func (u *Uploader) Delete(ctx context.Context, dest string) (err error) {
	dst, err := u.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer closeStore(dst, &err)

	u.logger.Info("Deleting replica", "dest", dst.URL(dest))
	if err := dst.Remove(ctx, dest); err != nil {
		return fmt.Errorf("delete replica %s: %w", dst.URL(dest), err)
	}
	return nil
}

// Succeeded is the number of files uploaded
func (u *Uploader) Succeeded() int64 {
	return u.succeeded.Load()
}

// Failed is the number of files that exhausted their retries
func (u *Uploader) Failed() int64 {
	return u.failed.Load()
}

func closeStore(s storage.Store, err *error) {
	if c, ok := s.(io.Closer); ok {
		*err = errors.Join(*err, c.Close())
	}
}
