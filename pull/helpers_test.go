//go:build unit

package pull_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-camus/decoder"
	"github.com/hugolhafner/go-camus/kafka"
	"github.com/hugolhafner/go-camus/pull"
)

type collectingSink struct {
	mu    sync.Mutex
	items []pull.Diagnostic
}

func (s *collectingSink) Report(d pull.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, d)
}

func (s *collectingSink) ofKind(kind pull.DiagnosticKind) []pull.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pull.Diagnostic
	for _, d := range s.items {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// brokerTimeDecoder stamps each record with the broker timestamp
func brokerTimeDecoder(fail func(msg kafka.Message) error) decoder.Factory {
	return func(string) (decoder.Decoder, error) {
		return decoder.Func(func(msg kafka.Message) (decoder.Decoded, error) {
			if fail != nil {
				if err := fail(msg); err != nil {
					return decoder.Decoded{}, &decoder.DecodeError{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Err: err}
				}
			}
			return decoder.Decoded{Record: string(msg.Value), Timestamp: msg.Timestamp}, nil
		}), nil
	}
}

func failOffsets(err error, offsets ...int64) func(kafka.Message) error {
	set := make(map[int64]struct{}, len(offsets))
	for _, o := range offsets {
		set[o] = struct{}{}
	}
	return func(msg kafka.Message) error {
		if _, ok := set[msg.Offset]; ok {
			return err
		}
		return nil
	}
}

// drain pulls until ErrDone, recording progress after every call
func drain(t *testing.T, e *pull.Engine) ([]pull.Record, []float64) {
	t.Helper()
	var (
		records  []pull.Record
		progress []float64
	)
	for {
		rec, err := e.Next(context.Background())
		progress = append(progress, e.Progress())
		if errors.Is(err, pull.ErrDone) {
			return records, progress
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
}
