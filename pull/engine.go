package pull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hugolhafner/go-camus/decoder"
	"github.com/hugolhafner/go-camus/errorhandler"
	"github.com/hugolhafner/go-camus/kafka"
	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/otel"
)

// Record is one decoded record and the key it was read at
type Record struct {
	Key   Key
	Value any
}

// Stats are task-wide counters. Read them after Next has returned ErrDone.
type Stats struct {
	RecordsRead           int64
	BytesRead             int64
	DecodeSuccessful      int64
	SkippedSchemaNotFound int64
	SkippedOther          int64
	Diagnosed             int64
	DiagnosticsSuppressed int64
	TimestampFallbacks    int64
	FetchFailures         int64
	PartialPartitions     int
	MaxTimeReached        bool
}

// partition is the state of the active partition, reset on every request
type partition struct {
	req     Request
	reader  kafka.Reader
	decoder decoder.Decoder
	span    trace.Span
	attrs   metric.MeasurementOption

	started  time.Time
	records  int64
	bytes    int64
	failures int
	tsFails  int64
	printed  int
	horizon  time.Time
}

// Engine pulls the requests of one work unit sequentially and yields decoded records.
// It is not safe for concurrent use, except for Progress.
type Engine struct {
	readers  kafka.ReaderFactory
	decoders decoder.Factory
	config   Config
	logger   logger.Logger
	handler  errorhandler.Handler
	ignore   map[string]struct{}

	queue    []Request
	key      Key
	active   *partition
	deadline time.Time
	done     bool

	totalBytes int64
	readBytes  atomic.Int64
	stats      Stats
}

func NewEngine(readers kafka.ReaderFactory, decoders decoder.Factory, requests []Request, opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	handler := config.ErrorHandler
	if handler == nil {
		handler = errorhandler.ForDecodePolicy(config.Logger, false)
	}

	ignore := make(map[string]struct{}, len(config.IgnoreServerServiceTopics))
	for _, t := range config.IgnoreServerServiceTopics {
		ignore[t] = struct{}{}
	}

	e := &Engine{
		readers:  readers,
		decoders: decoders,
		config:   config,
		logger:   config.Logger.With("component", "pull-engine"),
		handler:  handler,
		ignore:   ignore,
		queue:    append([]Request(nil), requests...),
	}

	for _, r := range requests {
		e.totalBytes += r.EstimatedBytes()
	}
	if config.MaxTaskTime > 0 {
		e.deadline = config.Now().Add(config.MaxTaskTime)
	}

	return e
}

// Next returns the next decoded record, or ErrDone once the work unit is finished.
// Any other error is fatal for the task.
func (e *Engine) Next(ctx context.Context) (Record, error) {
	for {
		if e.done {
			return Record{}, ErrDone
		}
		if err := ctx.Err(); err != nil {
			e.close(ctx, otel.StopExhausted)
			return Record{}, err
		}

		if e.active != nil && e.pastDeadline() && e.active.records >= graceRecords {
			e.stopForTime(ctx)
			return Record{}, ErrDone
		}

		if e.active == nil {
			opened, err := e.openNext(ctx)
			if err != nil {
				return Record{}, err
			}
			if !opened {
				e.done = true
				e.logger.Info("No more pull requests", "records", e.stats.RecordsRead, "bytes", e.stats.BytesRead)
				return Record{}, ErrDone
			}
			continue
		}

		msg, err := e.active.reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			e.close(ctx, otel.StopExhausted)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				e.close(ctx, otel.StopExhausted)
				return Record{}, ctx.Err()
			}
			if err := e.fetchFailed(ctx, err); err != nil {
				return Record{}, err
			}
			continue
		}

		rec, ok, err := e.handle(ctx, msg)
		if err != nil {
			e.close(ctx, otel.StopExhausted)
			return Record{}, err
		}
		if ok {
			return rec, nil
		}
	}
}

// Progress is the share of the work unit's estimated bytes read so far, in [0,1].
// Safe to call from another goroutine.
func (e *Engine) Progress() float64 {
	read := e.readBytes.Load()
	if read <= 0 {
		return 0
	}
	if read >= e.totalBytes {
		return 1
	}
	return float64(read) / float64(e.totalBytes)
}

func (e *Engine) Stats() Stats {
	return e.stats
}

// Close releases the active reader, if any
func (e *Engine) Close(ctx context.Context) {
	e.close(ctx, otel.StopExhausted)
	e.done = true
}

func (e *Engine) pastDeadline() bool {
	return !e.deadline.IsZero() && e.config.Now().After(e.deadline)
}

func (e *Engine) openNext(ctx context.Context) (bool, error) {
	for len(e.queue) > 0 {
		req := e.queue[0]
		e.queue = e.queue[1:]

		e.key = Key{
			Topic:      req.Topic,
			LeaderID:   req.LeaderID,
			Partition:  req.Partition,
			Offset:     req.StartOffset,
			NextOffset: req.StartOffset,
		}

		p := &partition{
			req:     req,
			started: e.config.Now(),
			attrs:   otel.PartitionAttributes(req.Topic, req.Partition, defaultServer, defaultService),
		}

		e.logger.Info(
			"Starting partition",
			"topic", req.Topic,
			"leader_id", req.LeaderID,
			"partition", req.Partition,
			"begin_offset", req.StartOffset,
			"estimated_last_offset", req.EstimatedEndOffset,
		)
		e.config.Telemetry.PartitionToRead.Record(ctx, req.EstimatedRecords(), p.attrs)

		dec, err := e.decoders(req.Topic)
		if err != nil {
			e.report(ctx, Diagnostic{Key: e.key.Clone(), Kind: KindDecoderError, Message: "cannot create decoder", Err: err})
			e.logger.Error("Failed to create decoder, skipping request", "topic", req.Topic, "error", err)
			continue
		}
		p.decoder = dec

		r, err := e.readers.Open(ctx, req.Assignment())
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			e.stats.FetchFailures++
			e.config.Telemetry.FetchErrors.Add(ctx, 1, p.attrs)
			e.report(ctx, Diagnostic{Key: e.key.Clone(), Kind: KindOpenError, Message: "cannot open partition", Err: err})
			e.logger.Error(
				"Failed to open partition, skipping request",
				"topic", req.Topic,
				"partition", req.Partition,
				"error", err,
			)
			continue
		}
		p.reader = r

		_, p.span = e.config.Telemetry.Tracer.Start(
			ctx, "pull "+req.Topic,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				semconv.MessagingSystemKafka,
				semconv.MessagingDestinationName(req.Topic),
				otel.AttrLeaderID.String(req.LeaderID),
				attribute.Int64("camus.start_offset", req.StartOffset),
			),
		)

		e.active = p
		return true, nil
	}

	return false, nil
}

func (e *Engine) handle(ctx context.Context, msg kafka.Message) (Record, bool, error) {
	p := e.active
	size := msg.Size()

	p.records++
	p.bytes += size
	e.readBytes.Add(size)
	e.stats.RecordsRead++
	e.stats.BytesRead += size
	e.config.Telemetry.RecordsRead.Add(ctx, 1, p.attrs)
	e.config.Telemetry.BytesRead.Add(ctx, size, p.attrs)

	e.key.Offset = msg.Offset
	e.key.NextOffset = msg.Offset + 1
	e.key.MessageSize = size

	start := time.Now()
	out, err := p.decoder.Decode(msg)
	e.config.Telemetry.DecodeDuration.Record(ctx, time.Since(start).Seconds(), otel.TopicAttributes(msg.Topic))

	if err != nil {
		return Record{}, false, e.decodeFailed(ctx, msg, err)
	}
	if out.Record == nil {
		return Record{}, false, fmt.Errorf("%s-%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, ErrNilRecord)
	}

	e.stats.DecodeSuccessful++
	e.config.Telemetry.DecodeOutcomes.Add(
		ctx, 1, otel.TopicAttributes(msg.Topic, otel.AttrDecodeStatus.String(otel.DecodeSuccess)),
	)
	if out.TimestampFallback {
		p.tsFails++
		e.stats.TimestampFallbacks++
	}

	e.key.Time = out.Timestamp
	e.applyPartitionMap(out.PartitionMap)
	rec := Record{Key: e.key.Clone(), Value: out.Record}

	if e.config.MaxHistory > 0 {
		if p.horizon.IsZero() {
			p.horizon = out.Timestamp.Add(e.config.MaxHistory)
			e.logger.Info("Begin read", "topic", msg.Topic, "partition", msg.Partition, "event_time", out.Timestamp)
		} else if out.Timestamp.After(p.horizon) {
			e.stopForHorizon(ctx, out.Timestamp)
		}
	}

	return rec, true, nil
}

func (e *Engine) applyPartitionMap(pm map[string]string) {
	if len(pm) > 0 {
		if e.key.PartitionMap == nil {
			e.key.PartitionMap = make(map[string]string, len(pm))
		}
		maps.Copy(e.key.PartitionMap, pm)
	}

	if s, ok := e.key.PartitionMap["server"]; ok {
		e.key.Server = s
	}
	if s, ok := e.key.PartitionMap["service"]; ok {
		e.key.Service = s
	}

	_, all := e.ignore[ignoreAll]
	_, topic := e.ignore[e.key.Topic]
	if all || topic {
		e.key.Server = defaultServer
		e.key.Service = defaultService
	}
}

func (e *Engine) decodeFailed(ctx context.Context, msg kafka.Message, err error) error {
	p := e.active
	p.failures++

	status := otel.DecodeSkippedOther
	if decoder.IsSchemaNotFound(err) {
		status = otel.DecodeSkippedSchemaNotFound
	}

	ec := errorhandler.NewErrorContext(msg, err).
		WithPhase(errorhandler.PhaseDecode).
		WithFailures(p.failures)

	action := e.handler.Handle(ctx, ec)
	switch action.Type() {
	case errorhandler.ActionTypeFail:
		return fmt.Errorf("decode %s-%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	case errorhandler.ActionTypeDiagnose:
		status = otel.DecodeDiagnosed
		e.diagnoseDecode(ctx, err)
	case errorhandler.ActionTypeSkip:
	default:
		e.logger.Warn("Unknown error handler action, diagnosing", "action", action.Type().String())
		status = otel.DecodeDiagnosed
		e.diagnoseDecode(ctx, err)
	}

	if decoder.IsSchemaNotFound(err) {
		e.stats.SkippedSchemaNotFound++
	} else {
		e.stats.SkippedOther++
	}
	e.config.Telemetry.DecodeOutcomes.Add(ctx, 1, otel.TopicAttributes(msg.Topic, otel.AttrDecodeStatus.String(status)))

	if e.pastDeadline() {
		e.logger.Info(
			"Decode failure after task time budget, abandoning partition",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		e.close(ctx, otel.StopDecodeAfterDeadline)
	}

	return nil
}

func (e *Engine) diagnoseDecode(ctx context.Context, err error) {
	p := e.active
	limit := e.config.MaxDecoderDiagnostics

	switch {
	case p.printed < limit:
		p.printed++
		e.stats.Diagnosed++
		e.report(ctx, Diagnostic{Key: e.key.Clone(), Kind: KindDecodeError, Message: err.Error(), Err: err})
	case p.printed == limit:
		p.printed++
		e.stats.DiagnosticsSuppressed++
		e.logger.Info(
			"Decode failures exceeded diagnostic limit, suppressing further diagnostics",
			"topic", e.key.Topic,
			"partition", e.key.Partition,
			"limit", limit,
		)
	default:
		e.stats.DiagnosticsSuppressed++
	}
}

func (e *Engine) fetchFailed(ctx context.Context, err error) error {
	p := e.active

	ec := errorhandler.NewErrorContext(kafka.Message{Topic: e.key.Topic, Partition: e.key.Partition, Offset: e.key.NextOffset}, err).
		WithPhase(errorhandler.PhaseFetch).
		WithFailures(p.failures + 1)

	action := e.handler.Handle(ctx, ec)
	if action.Type() == errorhandler.ActionTypeFail {
		e.close(ctx, otel.StopFetchError)
		return fmt.Errorf("fetch %s-%d after offset %d: %w", e.key.Topic, e.key.Partition, e.key.Offset, err)
	}

	e.stats.FetchFailures++
	e.config.Telemetry.FetchErrors.Add(ctx, 1, p.attrs)
	if action.Type() != errorhandler.ActionTypeSkip {
		e.report(ctx, Diagnostic{Key: e.key.Clone(), Kind: KindFetchError, Message: "fetch failed, partition treated as exhausted", Err: err})
	}
	e.logger.Warn(
		"Fetch failed, treating partition as exhausted",
		"topic", e.key.Topic,
		"partition", e.key.Partition,
		"last_offset", e.key.Offset,
		"error", err,
	)
	if p.span != nil {
		p.span.RecordError(err)
	}

	e.close(ctx, otel.StopFetchError)
	return nil
}

func (e *Engine) stopForHorizon(ctx context.Context, ts time.Time) {
	p := e.active
	msg := fmt.Sprintf(
		"topic: %s partition: %d not fully pulled, max history (%s) reached when pulling record with ts %s, pulled %d records",
		e.key.Topic, e.key.Partition, e.config.MaxHistory, ts.UTC().Format(time.RFC3339), p.records,
	)
	e.logger.Info(msg)
	e.report(ctx, Diagnostic{Key: e.key.Clone(), Kind: KindPartialPull, Message: msg})
	e.config.Telemetry.PullMaxHoursReached.Record(ctx, 1, p.attrs)
	e.stats.PartialPartitions++

	e.close(ctx, otel.StopMaxHours)
}

func (e *Engine) stopForTime(ctx context.Context) {
	p := e.active
	now := e.config.Now()

	msg := fmt.Sprintf(
		"topic: %s partition: %d not fully pulled, max task time reached at %s, pulled %d records",
		e.key.Topic, e.key.Partition, e.key.Time.UTC().Format(time.RFC3339), p.records,
	)
	e.logger.Warn(msg, "remaining_requests", len(e.queue))
	e.report(ctx, Diagnostic{Key: e.key.Clone(), Kind: KindMaxTaskTime, Message: msg})

	spent := fmt.Sprintf("topic: %s partition: %d time spent = %s", e.key.Topic, e.key.Partition, now.Sub(p.started).Round(time.Second))
	e.logger.Info(spent)
	e.report(ctx, Diagnostic{Key: e.key.Clone(), Kind: KindTimeSpent, Message: spent})

	e.stats.MaxTimeReached = true
	e.close(ctx, otel.StopMaxTime)
	e.done = true
}

func (e *Engine) report(ctx context.Context, d Diagnostic) {
	e.config.Diagnostics.Report(d)
	e.config.Telemetry.Diagnostics.Add(ctx, 1, otel.TopicAttributes(d.Key.Topic, otel.AttrDiagnosticKind.String(string(d.Kind))))
}

func (e *Engine) close(ctx context.Context, reason string) {
	p := e.active
	if p == nil {
		return
	}
	e.active = nil

	fetchTime := p.reader.FetchTime()
	if err := p.reader.Close(); err != nil {
		e.logger.Warn("Failed to close partition reader", "topic", p.req.Topic, "partition", p.req.Partition, "error", err)
	}

	maxTime := int64(0)
	if reason == otel.StopMaxTime {
		maxTime = 1
	}

	tel := e.config.Telemetry
	attrs := otel.PartitionAttributes(p.req.Topic, p.req.Partition, orDefault(e.key.Server, defaultServer), orDefault(e.key.Service, defaultService))
	tel.PartitionEventsRead.Record(ctx, p.records, attrs)
	tel.PartitionTimestampFails.Record(ctx, p.tsFails, attrs)
	tel.PullMaxTimeReached.Record(ctx, maxTime, attrs)
	tel.PartitionFetchTime.Record(ctx, fetchTime.Seconds(), otel.TopicAttributes(p.req.Topic))

	if p.records > 0 {
		e.logger.Info(
			"Partition closed",
			"topic", p.req.Topic,
			"partition", p.req.Partition,
			"reason", reason,
			"records", p.records,
			"bytes", p.bytes,
			"avg_size", p.bytes/p.records,
			"elapsed", e.config.Now().Sub(p.started),
			"fetch_time", fetchTime,
		)
	}

	if p.span != nil {
		p.span.SetAttributes(
			otel.AttrStopReason.String(reason),
			semconv.MessagingBatchMessageCount(int(p.records)),
		)
		if reason == otel.StopFetchError {
			p.span.SetStatus(codes.Error, "fetch failed")
		}
		p.span.End()
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
