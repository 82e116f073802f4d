package partitioner

import (
	"time"
)

// Partitioner decides where a promoted working file lands
type Partitioner interface {
	// EncodePartition returns the partition key a record with the given event time belongs to
	EncodePartition(topic string, eventTime time.Time) string
	// GeneratePath returns the directory, relative to the destination root, for an encoded key
	GeneratePath(topic, encoded string) (string, error)
	// GenerateFileName names the promoted file inside that directory
	GenerateFileName(topic, leaderID string, partition int32, count, lastOffset int64, encoded string) string
}

// Resolver returns the Partitioner configured for a topic
type Resolver func(topic string) (Partitioner, error)

// Static resolves every topic to p
func Static(p Partitioner) Resolver {
	return func(string) (Partitioner, error) { return p, nil }
}
