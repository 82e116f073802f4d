package otel

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	AttrServer         = attribute.Key("camus.server")
	AttrService        = attribute.Key("camus.service")
	AttrLeaderID       = attribute.Key("camus.leader_id")
	AttrDecodeStatus   = attribute.Key("camus.decode.status")
	AttrUploadStatus   = attribute.Key("camus.upload.status")
	AttrCommitPhase    = attribute.Key("camus.commit.phase")
	AttrStopReason     = attribute.Key("camus.partition.stop_reason")
	AttrDiagnosticKind = attribute.Key("camus.diagnostic.kind")
)

// Decode status values
const (
	DecodeSuccess               = "success"
	DecodeSkippedSchemaNotFound = "skipped_schema_not_found"
	DecodeSkippedOther          = "skipped_other"
	DecodeDiagnosed             = "diagnosed"
)

// Upload status values
const (
	UploadSuccess = "success"
	UploadRetry   = "retry"
	UploadFailure = "failure"
)

// Partition stop reasons
const (
	StopExhausted           = "exhausted"
	StopFetchError          = "fetch_error"
	StopMaxHours            = "max_hours"
	StopMaxTime             = "max_time"
	StopDecodeAfterDeadline = "decode_after_deadline"
)

// PartitionAttributes tags a measurement with the partition and its server/service
func PartitionAttributes(topic string, partition int32, server, service string) metric.MeasurementOption {
	return metric.WithAttributes(
		semconv.MessagingSystemKafka,
		semconv.MessagingDestinationName(topic),
		semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(partition), 10)),
		AttrServer.String(server),
		AttrService.String(service),
	)
}

// TopicAttributes tags a measurement with the topic only
func TopicAttributes(topic string, kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(append([]attribute.KeyValue{semconv.MessagingDestinationName(topic)}, kv...)...)
}
