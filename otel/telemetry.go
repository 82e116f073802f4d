package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-camus"

// Telemetry holds all OpenTelemetry instruments for a pull task.
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer trace.Tracer

	// Pull metrics
	RecordsRead    metric.Int64Counter
	BytesRead      metric.Int64Counter
	DecodeOutcomes metric.Int64Counter
	DecodeDuration metric.Float64Histogram
	FetchErrors    metric.Int64Counter
	Diagnostics    metric.Int64Counter

	// Per-partition gauges, reported when a partition is opened or closed
	PartitionToRead         metric.Int64Gauge
	PartitionEventsRead     metric.Int64Gauge
	PartitionTimestampFails metric.Int64Gauge
	PullMaxTimeReached      metric.Int64Gauge
	PullMaxHoursReached     metric.Int64Gauge
	PartitionFetchTime      metric.Float64Histogram

	// Commit metrics
	FilesMoved      metric.Int64Counter
	Uploads         metric.Int64Counter
	RollbackDeletes metric.Int64Counter
	CommitDuration  metric.Float64Histogram
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	meter := mp.Meter(scopeName)
	t := &Telemetry{Tracer: tp.Tracer(scopeName)}

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.RecordsRead, "camus.pull.records", "Records fetched from the broker"},
		{&t.BytesRead, "camus.pull.bytes", "Payload bytes fetched from the broker"},
		{&t.DecodeOutcomes, "camus.decode.outcomes", "Decode results by status"},
		{&t.FetchErrors, "camus.pull.fetch_errors", "Broker fetch failures that ended a partition"},
		{&t.Diagnostics, "camus.pull.diagnostics", "Diagnostic entries emitted"},
		{&t.FilesMoved, "camus.commit.files_moved", "Working files promoted to their destination"},
		{&t.Uploads, "camus.commit.uploads", "Replication upload attempts by status"},
		{&t.RollbackDeletes, "camus.commit.rollback_deletes", "Files deleted while aborting a task"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	gauges := []struct {
		dst  *metric.Int64Gauge
		name string
		desc string
	}{
		{&t.PartitionToRead, "camus.partition.to_read", "Records requested for the partition"},
		{&t.PartitionEventsRead, "camus.partition.events_read", "Records read from the partition"},
		{&t.PartitionTimestampFails, "camus.partition.timestamp_failures", "Records whose event time fell back to broker time"},
		{&t.PullMaxTimeReached, "camus.partition.max_time_reached", "1 when the task time budget stopped the partition"},
		{&t.PullMaxHoursReached, "camus.partition.max_hours_reached", "1 when the history horizon stopped the partition"},
	}
	for _, g := range gauges {
		if *g.dst, err = meter.Int64Gauge(g.name, metric.WithDescription(g.desc)); err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&t.DecodeDuration, "camus.decode.duration", "Time per Decode() call"},
		{&t.PartitionFetchTime, "camus.partition.fetch_time", "Time spent waiting on the broker per partition"},
		{&t.CommitDuration, "camus.commit.duration", "Time per commit phase"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s")); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil)
	return t
}
