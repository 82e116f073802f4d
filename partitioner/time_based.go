package partitioner

import (
	"fmt"
	"path"
	"strconv"
	"time"
)

type TimeBasedConfig struct {
	Granularity time.Duration
	// Label is the path segment between the topic and the date, e.g. "hourly"
	Label string
	// Layout formats the bucket start into directories
	Layout   string
	Location *time.Location
}

type Option func(*TimeBasedConfig)

func WithLocation(loc *time.Location) Option {
	return func(c *TimeBasedConfig) { c.Location = loc }
}

func WithLabel(label string) Option {
	return func(c *TimeBasedConfig) { c.Label = label }
}

var _ Partitioner = (*TimeBased)(nil)

// TimeBased buckets records by event time into fixed-width windows
type TimeBased struct {
	cfg TimeBasedConfig
}

// Hourly partitions into topic/hourly/YYYY/MM/DD/HH
func Hourly(opts ...Option) *TimeBased {
	return NewTimeBased(time.Hour, "hourly", "2006/01/02/15", opts...)
}

// Daily partitions into topic/daily/YYYY/MM/DD
func Daily(opts ...Option) *TimeBased {
	return NewTimeBased(24*time.Hour, "daily", "2006/01/02", opts...)
}

func NewTimeBased(granularity time.Duration, label, layout string, opts ...Option) *TimeBased {
	cfg := TimeBasedConfig{
		Granularity: granularity,
		Label:       label,
		Layout:      layout,
		Location:    time.UTC,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TimeBased{cfg: cfg}
}

// EncodePartition returns the bucket start in unix milliseconds
func (p *TimeBased) EncodePartition(_ string, eventTime time.Time) string {
	local := eventTime.In(p.cfg.Location)
	_, offset := local.Zone()
	shift := time.Duration(offset) * time.Second

	// truncate in local wall time so daily buckets start at local midnight
	start := local.Add(shift).Truncate(p.cfg.Granularity).Add(-shift)
	return strconv.FormatInt(start.UnixMilli(), 10)
}

func (p *TimeBased) GeneratePath(topic, encoded string) (string, error) {
	ms, err := strconv.ParseInt(encoded, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid encoded partition %q: %w", encoded, err)
	}
	bucket := time.UnixMilli(ms).In(p.cfg.Location)
	return path.Join(topic, p.cfg.Label, bucket.Format(p.cfg.Layout)), nil
}

func (p *TimeBased) GenerateFileName(topic, leaderID string, partition int32, count, lastOffset int64, encoded string) string {
	return fmt.Sprintf("%s.%s.%d.%d.%d.%s", topic, leaderID, partition, count, lastOffset, encoded)
}
