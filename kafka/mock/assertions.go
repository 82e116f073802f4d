package mockkafka

import (
	"testing"

	"github.com/hugolhafner/go-camus/kafka"
	"github.com/stretchr/testify/require"
)

// AssertOpenCount verifies that Open was called exactly n times.
func (f *ReaderFactory) AssertOpenCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(f.Opened())
	require.Equal(tb, expected, actual, "expected %d readers opened, got %d", expected, actual)
}

// AssertOpened verifies that a reader was opened for the topic-partition at the given start offset.
func (f *ReaderFactory) AssertOpened(tb testing.TB, topic string, partition int32, startOffset int64) {
	tb.Helper()

	for _, a := range f.Opened() {
		if a.Topic == topic && a.Partition == partition && a.StartOffset == startOffset {
			return
		}
	}

	tb.Errorf("expected reader for %s at offset %d to be opened", kafka.TopicPartition{Topic: topic, Partition: partition}, startOffset)
}

// AssertAllClosed verifies that every opened reader has been closed.
func (f *ReaderFactory) AssertAllClosed(tb testing.TB) {
	tb.Helper()

	require.Zero(tb, f.OpenReaders(), "expected all readers to be closed")
}
