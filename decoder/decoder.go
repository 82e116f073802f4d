package decoder

import (
	"time"

	"github.com/hugolhafner/go-camus/kafka"
)

// Decoded is the result of decoding one broker message
type Decoded struct {
	Record    any
	Timestamp time.Time

	// PartitionMap carries decoder-extracted tags such as server and service
	PartitionMap map[string]string

	// TimestampFallback is set when the event time could not be parsed and
	// the broker timestamp was used instead
	TimestampFallback bool
}

type Decoder interface {
	Decode(msg kafka.Message) (Decoded, error)
}

type Func func(msg kafka.Message) (Decoded, error)

func (f Func) Decode(msg kafka.Message) (Decoded, error) {
	return f(msg)
}

// Factory builds the Decoder for a topic. It is called once per partition.
type Factory func(topic string) (Decoder, error)

func brokerTime(msg kafka.Message) time.Time {
	if msg.Timestamp.IsZero() {
		return time.Now()
	}
	return msg.Timestamp
}
