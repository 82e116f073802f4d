package commit

import (
	"sort"
	"time"

	"github.com/hugolhafner/go-camus/pull"
)

// FileCounts tracks what was routed into one working file
type FileCounts struct {
	Topic      string
	EventCount int64
	FirstKey   pull.Key
	LastKey    pull.Key
	StartTime  time.Time
	EndTime    time.Time

	granularity time.Duration
	buckets     map[int64]int64
}

func newFileCounts(topic string, granularity time.Duration, now time.Time) *FileCounts {
	return &FileCounts{
		Topic:       topic,
		StartTime:   now,
		granularity: granularity,
		buckets:     make(map[int64]int64),
	}
}

func (c *FileCounts) Add(k pull.Key) {
	if c.EventCount == 0 {
		c.FirstKey = k.Clone()
	}
	c.EventCount++
	c.LastKey = k.Clone()

	bucket := k.Time.Truncate(c.granularity).UnixMilli()
	c.buckets[bucket]++
}

// Bucket is the number of events whose time falls in [Start, Start+granularity)
type Bucket struct {
	Start int64 `json:"start"`
	Count int64 `json:"count"`
}

// Buckets returns the event-time histogram in time order
func (c *FileCounts) Buckets() []Bucket {
	out := make([]Bucket, 0, len(c.buckets))
	for start, n := range c.buckets {
		out = append(out, Bucket{Start: start, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// AuditKey is the JSON form of a key in the audit side file
type AuditKey struct {
	Partition int32  `json:"partition"`
	LeaderID  string `json:"leader_id"`
	Offset    int64  `json:"offset"`
	Time      int64  `json:"time"`
	Server    string `json:"server,omitempty"`
	Service   string `json:"service,omitempty"`
}

// AuditEntry is one promoted file in the audit side file
type AuditEntry struct {
	Topic       string   `json:"topic"`
	Destination string   `json:"destination"`
	EventCount  int64    `json:"event_count"`
	StartTime   int64    `json:"start_time"`
	EndTime     int64    `json:"end_time"`
	FirstKey    AuditKey `json:"first_key"`
	LastKey     AuditKey `json:"last_key"`
	Granularity int64    `json:"granularity_ms"`
	Buckets     []Bucket `json:"buckets"`
}

func (c *FileCounts) Audit(dest string) AuditEntry {
	return AuditEntry{
		Topic:       c.Topic,
		Destination: dest,
		EventCount:  c.EventCount,
		StartTime:   c.StartTime.UnixMilli(),
		EndTime:     c.EndTime.UnixMilli(),
		FirstKey:    auditKey(c.FirstKey),
		LastKey:     auditKey(c.LastKey),
		Granularity: c.granularity.Milliseconds(),
		Buckets:     c.Buckets(),
	}
}

func auditKey(k pull.Key) AuditKey {
	return AuditKey{
		Partition: k.Partition,
		LeaderID:  k.LeaderID,
		Offset:    k.Offset,
		Time:      k.Time.UnixMilli(),
		Server:    k.Server,
		Service:   k.Service,
	}
}
