package kafka

import (
	"context"
	"time"
)

// Assignment binds a reader to one partition and a half-open offset range [StartOffset, EndOffset)
type Assignment struct {
	Topic       string
	LeaderID    string
	Partition   int32
	StartOffset int64
	EndOffset   int64
}

func (a Assignment) TopicPartition() TopicPartition {
	return TopicPartition{Topic: a.Topic, Partition: a.Partition}
}

// Reader yields the messages of a single assignment in offset order.
// Next returns io.EOF once the range (or the partition's high watermark) is exhausted.
type Reader interface {
	Next(ctx context.Context) (Message, error)
	// FetchTime is the cumulative time spent waiting on the broker
	FetchTime() time.Duration
	Close() error
}

// ReaderFactory opens a Reader per assignment; each call may dial a fresh connection
type ReaderFactory interface {
	Open(ctx context.Context, a Assignment) (Reader, error)
}

type ReaderFactoryFunc func(ctx context.Context, a Assignment) (Reader, error)

func (f ReaderFactoryFunc) Open(ctx context.Context, a Assignment) (Reader, error) {
	return f(ctx, a)
}
