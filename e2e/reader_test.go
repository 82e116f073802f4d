//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-camus/kafka"
)

func TestKgoReader_ReadsAssignedRange(t *testing.T) {
	c := startCluster(t)
	topic := c.topic(t, "reader", 2)

	values := make([]string, 40)
	for i := range values {
		values[i] = fmt.Sprintf("v%d", i)
	}
	c.produce(t, topic, 1, values...)

	f := kafka.NewKgoReaderFactory(kafka.WithBootstrapServers([]string{c.seed}), kafka.WithPollTimeout(5*time.Second))

	tests := []struct {
		name      string
		start     int64
		end       int64
		wantFirst int64
		wantCount int
	}{
		{"bounded range", 10, 30, 10, 20},
		{"end past high watermark", 35, 100, 35, 5},
		{"open ended", 0, 0, 0, 40},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()

				r, err := f.Open(ctx, kafka.Assignment{Topic: topic, LeaderID: "0", Partition: 1, StartOffset: tt.start, EndOffset: tt.end})
				require.NoError(t, err)
				defer r.Close()

				var offsets []int64
				for {
					msg, err := r.Next(ctx)
					if errors.Is(err, io.EOF) {
						break
					}
					require.NoError(t, err)
					require.Equal(t, fmt.Sprintf("v%d", msg.Offset), string(msg.Value))
					offsets = append(offsets, msg.Offset)
				}

				require.Len(t, offsets, tt.wantCount)
				require.Equal(t, tt.wantFirst, offsets[0])
			},
		)
	}
}
