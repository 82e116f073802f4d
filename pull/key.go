package pull

import (
	"fmt"
	"maps"
	"time"
)

// Key is the position of one consumed record and doubles as the checkpoint
// cursor for its partition. Keys are values; a copy is a snapshot.
type Key struct {
	Topic     string
	LeaderID  string
	Partition int32

	// Offset is the offset of the record itself, NextOffset the offset to resume from
	Offset     int64
	NextOffset int64

	MessageSize int64
	// CumulativeMessageSize is filled in by the cursor store
	CumulativeMessageSize int64

	Time    time.Time
	Server  string
	Service string

	PartitionMap map[string]string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d@%d", k.Topic, k.LeaderID, k.Partition, k.Offset)
}

// Clone returns a snapshot that shares no mutable state with k
func (k Key) Clone() Key {
	k.PartitionMap = maps.Clone(k.PartitionMap)
	return k
}
