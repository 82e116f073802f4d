package mockkafka

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hugolhafner/go-camus/kafka"
)

var _ kafka.ReaderFactory = (*ReaderFactory)(nil)

// ReaderFactory serves in-memory partitions. Every Open returns an independent
// reader over the messages added for that topic-partition.
type ReaderFactory struct {
	mu sync.Mutex

	partitions map[kafka.TopicPartition][]kafka.Message

	opened []kafka.Assignment
	open   int

	fetchDelay time.Duration
	fetchErr   func(a kafka.Assignment, offset int64) error
	openErr    func(a kafka.Assignment) error
}

func NewReaderFactory(opts ...Option) *ReaderFactory {
	f := &ReaderFactory{
		partitions: make(map[kafka.TopicPartition][]kafka.Message),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// AddMessages appends messages to a topic-partition. Topic and partition are filled
// in, and offsets left at zero continue from the partition's current end.
func (f *ReaderFactory) AddMessages(topic string, partition int32, msgs ...kafka.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	existing := f.partitions[tp]

	next := int64(0)
	if len(existing) > 0 {
		next = existing[len(existing)-1].Offset + 1
	}

	for i := range msgs {
		msgs[i].Topic = topic
		msgs[i].Partition = partition
		if msgs[i].Offset == 0 {
			msgs[i].Offset = next
		}
		next = msgs[i].Offset + 1
	}

	existing = append(existing, msgs...)
	sort.SliceStable(existing, func(i, j int) bool { return existing[i].Offset < existing[j].Offset })
	f.partitions[tp] = existing
}

func (f *ReaderFactory) Open(ctx context.Context, a kafka.Assignment) (kafka.Reader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.opened = append(f.opened, a)

	if f.openErr != nil {
		if err := f.openErr(a); err != nil {
			return nil, err
		}
	}

	src := f.partitions[a.TopicPartition()]
	msgs := make([]kafka.Message, 0, len(src))
	for _, m := range src {
		if m.Offset < a.StartOffset {
			continue
		}
		if a.EndOffset > 0 && m.Offset >= a.EndOffset {
			break
		}
		msgs = append(msgs, m)
	}

	f.open++
	return &reader{factory: f, assignment: a, msgs: msgs}, nil
}

// SetFetchErrorFunc configures a function consulted before each message is handed out
func (f *ReaderFactory) SetFetchErrorFunc(fn func(a kafka.Assignment, offset int64) error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchErr = fn
}

// Opened returns every assignment passed to Open, in call order
func (f *ReaderFactory) Opened() []kafka.Assignment {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]kafka.Assignment, len(f.opened))
	copy(out, f.opened)
	return out
}

// OpenReaders is the number of readers opened and not yet closed
func (f *ReaderFactory) OpenReaders() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.open
}

type reader struct {
	factory    *ReaderFactory
	assignment kafka.Assignment
	msgs       []kafka.Message
	pos        int
	closed     bool
	fetchTime  time.Duration
}

func (r *reader) Next(ctx context.Context) (kafka.Message, error) {
	if r.factory.fetchDelay > 0 {
		start := time.Now()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(r.factory.fetchDelay):
		}
		r.fetchTime += time.Since(start)
	}

	if r.pos >= len(r.msgs) {
		return kafka.Message{}, io.EOF
	}

	m := r.msgs[r.pos]

	r.factory.mu.Lock()
	fetchErr := r.factory.fetchErr
	r.factory.mu.Unlock()

	if fetchErr != nil {
		if err := fetchErr(r.assignment, m.Offset); err != nil {
			return kafka.Message{}, err
		}
	}

	r.pos++
	return m, nil
}

func (r *reader) FetchTime() time.Duration {
	return r.fetchTime
}

func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	r.factory.mu.Lock()
	defer r.factory.mu.Unlock()
	r.factory.open--

	return nil
}
