package camus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hugolhafner/dskit/backoff"

	"github.com/hugolhafner/go-camus/commit"
	"github.com/hugolhafner/go-camus/config"
	"github.com/hugolhafner/go-camus/decoder"
	"github.com/hugolhafner/go-camus/errorhandler"
	"github.com/hugolhafner/go-camus/kafka"
	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/otel"
	"github.com/hugolhafner/go-camus/partitioner"
	"github.com/hugolhafner/go-camus/pull"
	"github.com/hugolhafner/go-camus/replicate"
	"github.com/hugolhafner/go-camus/runner"
	"github.com/hugolhafner/go-camus/storage"
	"github.com/hugolhafner/go-camus/writer"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
)

type Options struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry
	Decoders  *decoder.Registry
	// Readers replaces the franz-go reader factory built from the kafka settings
	Readers kafka.ReaderFactory
	// TaskOptions are appended to the options every task is built with
	TaskOptions []runner.Option
}

type Option func(*Options)

func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(o *Options) {
		o.Telemetry = t
	}
}

// WithDecoders replaces the decoder registry, e.g. to register protobuf decoders
func WithDecoders(r *decoder.Registry) Option {
	return func(o *Options) {
		o.Decoders = r
	}
}

func WithReaders(r kafka.ReaderFactory) Option {
	return func(o *Options) {
		o.Readers = r
	}
}

func WithTaskOptions(opts ...runner.Option) Option {
	return func(o *Options) {
		o.TaskOptions = append(o.TaskOptions, opts...)
	}
}

func defaultOptions() Options {
	return Options{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
	}
}

// Application runs work units against one configured broker and store
type Application struct {
	logger   logger.Logger
	deps     runner.Deps
	paths    runner.Paths
	taskOpts []runner.Option
	uploader *replicate.Uploader

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

// NewApplication wires the configured readers, decoders, partitioners, writers and stores
func NewApplication(ctx context.Context, cfg config.Config, opts ...Option) (*Application, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Decoders == nil {
		o.Decoders = decoder.NewRegistry()
		o.Decoders.Register(
			"json", func(string) (decoder.Decoder, error) {
				return decoder.JSON(
					decoder.WithTimestampField(cfg.Decoder.TimestampField),
					decoder.WithTimestampFormat(cfg.Decoder.TimestampFormat),
				), nil
			},
		)
	}

	partitioners, err := partitioner.NewRegistry().ForTopics(cfg.Partitioner.Default, cfg.Partitioner.Topics, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("partitioners: %w", err)
	}

	writers, err := writer.NewRegistry().Build(cfg.Writer.Format, cfg.Writer.Codec)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}

	store, err := storage.Dial(ctx, cfg.Store.URL)
	if err != nil {
		return nil, fmt.Errorf("primary store: %w", err)
	}

	readers := o.Readers
	if readers == nil {
		readers = kafka.NewKgoReaderFactory(
			kafka.WithBootstrapServers(cfg.Kafka.Brokers),
			kafka.WithClientID(cfg.Kafka.ClientID),
			kafka.WithPollTimeout(cfg.Kafka.PollTimeout),
			kafka.WithFetchMaxWait(cfg.Kafka.FetchMaxWait),
			kafka.WithMaxPollRecords(cfg.Kafka.MaxPollRecords),
			kafka.WithLogger(o.Logger),
		)
	}

	a := &Application{
		logger: o.Logger,
		deps: runner.Deps{
			Readers:      readers,
			Decoders:     o.Decoders.ForTopics(cfg.Decoder.Default, cfg.Decoder.Topics),
			Partitioners: partitioners,
			Writers:      writers,
			Store:        store,
		},
		paths:    runner.Paths{ExecutionDir: cfg.Store.ExecutionDir, DestRoot: cfg.Store.DestRoot},
		closedCh: make(chan struct{}),
	}

	commitOpts := []commit.Option{
		commit.WithMoveData(cfg.Commit.MoveData),
		commit.WithAuditCounts(cfg.Commit.AuditCounts),
		commit.WithCountsGranularity(cfg.Commit.CountsGranularity),
	}
	if cfg.Replication.Enabled {
		replicaURL := cfg.Replication.URL
		a.uploader = replicate.NewUploader(
			func(ctx context.Context) (storage.Store, error) {
				return storage.Dial(ctx, replicaURL)
			},
			replicate.WithLogger(o.Logger),
			replicate.WithTelemetry(o.Telemetry),
			replicate.WithMaxRetries(cfg.Replication.MaxRetries),
			replicate.WithBackoff(backoff.NewFixed(cfg.Replication.Backoff)),
		)
		commitOpts = append(commitOpts, commit.WithReplication(a.uploader, cfg.Replication.Root))
	}

	a.taskOpts = append(
		[]runner.Option{
			runner.WithLogger(o.Logger),
			runner.WithTelemetry(o.Telemetry),
			runner.WithEngineOptions(
				pull.WithErrorHandler(errorhandler.ForDecodePolicy(o.Logger, cfg.Pull.SkipDecodeErrors)),
				pull.WithMaxHistory(cfg.Pull.MaxHistory),
				pull.WithMaxTaskTime(cfg.Pull.MaxTaskTime),
				pull.WithMaxDecoderDiagnostics(cfg.Pull.MaxDecoderDiagnostics),
				pull.WithIgnoreServerServiceTopics(cfg.Pull.IgnoreServerServiceTopics...),
			),
			runner.WithCommitOptions(commitOpts...),
		},
		o.TaskOptions...,
	)

	return a, nil
}

// Run executes one work unit. Only one work unit runs at a time.
func (a *Application) Run(ctx context.Context, work pull.WorkUnit) (runner.Result, error) {
	if err := a.startRunning(); err != nil {
		return runner.Result{}, err
	}
	defer a.stopRunning()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	a.logger.Info("Running work unit", "task_id", work.TaskID, "requests", len(work.Requests))
	return runner.NewTask(work, a.deps, a.paths, a.taskOpts...).Run(runCtx)
}

// Uploader is nil unless replication is enabled
func (a *Application) Uploader() *replicate.Uploader {
	return a.uploader
}

// Close cancels a running work unit and releases the primary store
func (a *Application) Close() error {
	var err error
	a.closeOnce.Do(
		func() {
			close(a.closedCh)
			if c, ok := a.deps.Store.(io.Closer); ok {
				err = c.Close()
			}
		},
	)
	return err
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}

func (a *Application) stopRunning() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
}
