package decoder

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/hugolhafner/go-camus/kafka"
)

// TimestampFunc extracts the event time from a decoded message
type TimestampFunc[T proto.Message] func(T) (time.Time, bool)

// Protobuf decodes payloads into T. Without a TimestampFunc the broker time is used.
func Protobuf[T proto.Message](ts TimestampFunc[T]) Decoder {
	return Func(func(msg kafka.Message) (Decoded, error) {
		var zero T
		result := zero.ProtoReflect().New().Interface().(T)
		if err := proto.Unmarshal(msg.Value, result); err != nil {
			return Decoded{}, &DecodeError{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Err: err}
		}

		out := Decoded{Record: result, Timestamp: brokerTime(msg)}
		if ts == nil {
			return out, nil
		}
		if t, ok := ts(result); ok {
			out.Timestamp = t
		} else {
			out.TimestampFallback = true
		}
		return out, nil
	})
}

// TimestampField reads the event time from a google.protobuf.Timestamp field
func TimestampField[T proto.Message](get func(T) *timestamppb.Timestamp) TimestampFunc[T] {
	return func(m T) (time.Time, bool) {
		ts := get(m)
		if ts == nil || !ts.IsValid() {
			return time.Time{}, false
		}
		return ts.AsTime(), true
	}
}
