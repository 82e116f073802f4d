package mockkafka

import (
	"strconv"
	"time"

	"github.com/hugolhafner/go-camus/kafka"
)

// MessageBuilder provides a fluent interface for building Messages.
type MessageBuilder struct {
	msg kafka.Message
}

// Message creates a new MessageBuilder with the given key and value.
func Message(key, value string) *MessageBuilder {
	return &MessageBuilder{
		msg: kafka.Message{
			Key:       []byte(key),
			Value:     []byte(value),
			Timestamp: time.Now(),
		},
	}
}

// WithOffset sets the message's offset.
func (b *MessageBuilder) WithOffset(offset int64) *MessageBuilder {
	b.msg.Offset = offset
	return b
}

// WithTimestamp sets the message's broker timestamp.
func (b *MessageBuilder) WithTimestamp(ts time.Time) *MessageBuilder {
	b.msg.Timestamp = ts
	return b
}

// WithHeader adds a header to the message.
func (b *MessageBuilder) WithHeader(key string, value []byte) *MessageBuilder {
	b.msg.Headers = append(b.msg.Headers, kafka.Header{Key: key, Value: value})
	return b
}

// Build returns the constructed Message.
func (b *MessageBuilder) Build() kafka.Message {
	return b.msg
}

// Sequence builds n messages at consecutive offsets starting at start. The value of
// each message is produced by value; a nil value func yields the decimal offset.
func Sequence(start int64, n int, value func(offset int64) []byte) []kafka.Message {
	msgs := make([]kafka.Message, 0, n)
	for i := 0; i < n; i++ {
		offset := start + int64(i)
		v := []byte(strconv.FormatInt(offset, 10))
		if value != nil {
			v = value(offset)
		}
		msgs = append(
			msgs, kafka.Message{
				Offset:    offset,
				Value:     v,
				Timestamp: time.UnixMilli(offset),
			},
		)
	}
	return msgs
}
