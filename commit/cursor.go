package commit

import (
	"fmt"
	"sort"

	"github.com/hugolhafner/go-camus/pull"
)

// PartitionID keys a cursor
type PartitionID struct {
	Topic     string
	LeaderID  string
	Partition int32
}

func IDOf(k pull.Key) PartitionID {
	return PartitionID{Topic: k.Topic, LeaderID: k.LeaderID, Partition: k.Partition}
}

func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%s-%d", p.Topic, p.LeaderID, p.Partition)
}

// Cursor is the running aggregate of one partition within a task
type Cursor struct {
	LastKey               pull.Key
	EventCount            int64
	CumulativeMessageSize int64
}

// AverageMessageSize is the integer mean of every record size seen
func (c Cursor) AverageMessageSize() int64 {
	if c.EventCount == 0 {
		return 0
	}
	return c.CumulativeMessageSize / c.EventCount
}

// CursorStore holds one Cursor per partition, created on the partition's first record
type CursorStore struct {
	cursors map[PartitionID]*Cursor
}

func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[PartitionID]*Cursor)}
}

// Add folds k into its partition's cursor and snapshots it as the last key
func (s *CursorStore) Add(k pull.Key) {
	id := IDOf(k)
	c, ok := s.cursors[id]
	if !ok {
		c = &Cursor{}
		s.cursors[id] = c
	}

	c.EventCount++
	c.CumulativeMessageSize += k.MessageSize
	c.LastKey = k.Clone()
	c.LastKey.CumulativeMessageSize = c.CumulativeMessageSize
}

func (s *CursorStore) Get(id PartitionID) (Cursor, bool) {
	c, ok := s.cursors[id]
	if !ok {
		return Cursor{}, false
	}
	return *c, true
}

func (s *CursorStore) Len() int {
	return len(s.cursors)
}

// Cursors returns every cursor ordered by topic, leader and partition
func (s *CursorStore) Cursors() []Cursor {
	ids := make([]PartitionID, 0, len(s.cursors))
	for id := range s.cursors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Topic != ids[j].Topic {
			return ids[i].Topic < ids[j].Topic
		}
		if ids[i].LeaderID != ids[j].LeaderID {
			return ids[i].LeaderID < ids[j].LeaderID
		}
		return ids[i].Partition < ids[j].Partition
	})

	out := make([]Cursor, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.cursors[id])
	}
	return out
}
