package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hugolhafner/go-camus/logger"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ ReaderFactory = (*KgoReaderFactory)(nil)
var _ Reader = (*kgoReader)(nil)

type KgoReaderConfig struct {
	BootstrapServers []string
	ClientID         string
	// PollTimeout bounds a single poll; a poll that yields nothing counts as the range being drained
	PollTimeout    time.Duration
	FetchMaxWait   time.Duration
	MaxPollRecords int

	Logger logger.Logger
}

func defaultConfig() KgoReaderConfig {
	return KgoReaderConfig{
		BootstrapServers: []string{"localhost:9092"},
		ClientID:         "go-camus",
		PollTimeout:      30 * time.Second,
		FetchMaxWait:     time.Second,
		MaxPollRecords:   500,
		Logger:           logger.NewNoopLogger(),
	}
}

type KgoOption func(*KgoReaderConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *KgoReaderConfig) {
		cfg.BootstrapServers = servers
	}
}

func WithClientID(id string) KgoOption {
	return func(cfg *KgoReaderConfig) {
		cfg.ClientID = id
	}
}

func WithPollTimeout(d time.Duration) KgoOption {
	return func(cfg *KgoReaderConfig) {
		if d > 0 {
			cfg.PollTimeout = d
		}
	}
}

func WithFetchMaxWait(d time.Duration) KgoOption {
	return func(cfg *KgoReaderConfig) {
		if d > 0 {
			cfg.FetchMaxWait = d
		}
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *KgoReaderConfig) {
		if n > 0 {
			cfg.MaxPollRecords = n
		}
	}
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *KgoReaderConfig) {
		cfg.Logger = l.With("client", "kgo")
	}
}

// KgoReaderFactory dials a dedicated franz-go client per assignment, consuming the
// partition directly (no consumer group) from the requested start offset.
type KgoReaderFactory struct {
	config KgoReaderConfig
}

func NewKgoReaderFactory(opts ...KgoOption) *KgoReaderFactory {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &KgoReaderFactory{config: cfg}
}

func (f *KgoReaderFactory) Open(ctx context.Context, a Assignment) (Reader, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(f.config.BootstrapServers...),
		kgo.ClientID(f.config.ClientID),
		kgo.ConsumePartitions(
			map[string]map[int32]kgo.Offset{
				a.Topic: {a.Partition: kgo.NewOffset().At(a.StartOffset)},
			},
		),
		kgo.FetchMaxWait(f.config.FetchMaxWait),
		kgo.WithLogger(newPartitionLogger(f.config.Logger, a)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	hwm, err := highWatermark(ctx, client, a)
	if err != nil {
		client.Close()
		return nil, err
	}

	end := hwm
	if a.EndOffset > 0 && a.EndOffset < end {
		end = a.EndOffset
	}

	f.config.Logger.Debug(
		"Opened partition reader",
		"topic", a.Topic,
		"partition", a.Partition,
		"start_offset", a.StartOffset,
		"end_offset", end,
		"high_watermark", hwm,
	)

	return &kgoReader{
		client:         client,
		tp:             a.TopicPartition(),
		next:           a.StartOffset,
		end:            end,
		pollTimeout:    f.config.PollTimeout,
		maxPollRecords: f.config.MaxPollRecords,
	}, nil
}

func highWatermark(ctx context.Context, client *kgo.Client, a Assignment) (int64, error) {
	listed, err := kadm.NewClient(client).ListEndOffsets(ctx, a.Topic)
	if err != nil {
		return 0, fmt.Errorf("list end offsets for %s: %w", a.TopicPartition(), err)
	}

	o, ok := listed.Lookup(a.Topic, a.Partition)
	if !ok {
		return 0, fmt.Errorf("partition %s not found", a.TopicPartition())
	}
	if o.Err != nil {
		return 0, fmt.Errorf("list end offsets for %s: %w", a.TopicPartition(), o.Err)
	}

	return o.Offset, nil
}

type kgoReader struct {
	client *kgo.Client
	tp     TopicPartition

	next    int64
	end     int64
	buf     []Message
	drained bool

	pollTimeout    time.Duration
	maxPollRecords int
	fetchTime      time.Duration
}

func (r *kgoReader) Next(ctx context.Context) (Message, error) {
	for {
		if len(r.buf) == 0 && (r.next >= r.end || r.drained) {
			return Message{}, io.EOF
		}

		if len(r.buf) > 0 {
			m := r.buf[0]
			r.buf = r.buf[1:]
			if m.Offset < r.next {
				continue
			}

			r.next = m.Offset + 1
			return m, nil
		}

		if err := r.fill(ctx); err != nil {
			return Message{}, err
		}
	}
}

func (r *kgoReader) fill(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	start := time.Now()
	fetches := r.client.PollRecords(pollCtx, r.maxPollRecords)
	r.fetchTime += time.Since(start)

	if err := ctx.Err(); err != nil {
		return err
	}
	if fetches.IsClientClosed() {
		return fmt.Errorf("fetch %s: client closed", r.tp)
	}

	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			continue
		}
		return fmt.Errorf("fetch %s: %w", r.tp, fe.Err)
	}

	records := fetches.Records()
	if len(records) == 0 {
		return io.EOF
	}

	for _, rec := range records {
		if rec.Offset >= r.end {
			r.drained = true
			break
		}
		r.buf = append(r.buf, convertRecord(rec))
	}

	return nil
}

func (r *kgoReader) FetchTime() time.Duration {
	return r.fetchTime
}

func (r *kgoReader) Close() error {
	r.client.Close()
	return nil
}

func convertRecord(r *kgo.Record) Message {
	return Message{
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		Key:         r.Key,
		Value:       r.Value,
		Headers:     convertFromKgoHeaders(r.Headers),
		Timestamp:   r.Timestamp,
		LeaderEpoch: r.LeaderEpoch,
	}
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}
