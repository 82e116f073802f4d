//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hugolhafner/go-camus/commit"
	"github.com/hugolhafner/go-camus/pull"
)

const redpandaImage = "docker.redpanda.com/redpandadata/redpanda:v24.2.1"

// cluster is the redpanda broker shared by every test in the package
type cluster struct {
	container *redpanda.Container
	seed      string
	client    *kgo.Client
	admin     *kadm.Client
}

var (
	shared    *cluster
	sharedErr error
	startOnce sync.Once
)

func TestMain(m *testing.M) {
	code := m.Run()

	if shared != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		shared.client.Close()
		_ = shared.container.Terminate(ctx)
	}

	os.Exit(code)
}

func startCluster(t *testing.T) *cluster {
	t.Helper()

	startOnce.Do(
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			container, err := redpanda.Run(ctx, redpandaImage, redpanda.WithAutoCreateTopics())
			if err != nil {
				sharedErr = fmt.Errorf("start redpanda: %w", err)
				return
			}

			seed, err := container.KafkaSeedBroker(ctx)
			if err != nil {
				_ = container.Terminate(ctx)
				sharedErr = fmt.Errorf("seed broker: %w", err)
				return
			}

			client, err := kgo.NewClient(kgo.SeedBrokers(seed), kgo.RecordPartitioner(kgo.ManualPartitioner()))
			if err != nil {
				_ = container.Terminate(ctx)
				sharedErr = fmt.Errorf("admin client: %w", err)
				return
			}

			shared = &cluster{container: container, seed: seed, client: client, admin: kadm.NewClient(client)}
		},
	)

	require.NoError(t, sharedErr)
	return shared
}

// topic creates a uniquely named topic that is deleted when the test ends
func (c *cluster) topic(t *testing.T, suffix string, partitions int32) string {
	t.Helper()

	name := fmt.Sprintf("camus-e2e-%s-%d", suffix, time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.admin.CreateTopic(ctx, partitions, 1, nil, name)
	require.NoError(t, err)
	require.NoError(t, resp.Err, "create topic %s", name)

	t.Cleanup(
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, _ = c.admin.DeleteTopics(ctx, name)
		},
	)

	return name
}

// produce appends values to one partition in order
func (c *cluster) produce(t *testing.T, topic string, partition int32, values ...string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records := make([]*kgo.Record, len(values))
	for i, v := range values {
		records[i] = &kgo.Record{Topic: topic, Partition: partition, Value: []byte(v)}
	}
	require.NoError(t, c.client.ProduceSync(ctx, records...).FirstErr())
}

// plan builds a work unit covering everything currently in the topics.
// Partitions with a checkpoint resume after it; the rest start at the log start offset.
func (c *cluster) plan(t *testing.T, taskID int, resume []commit.Checkpoint, topics ...string) pull.WorkUnit {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	meta, err := c.admin.Metadata(ctx, topics...)
	require.NoError(t, err)
	starts, err := c.admin.ListStartOffsets(ctx, topics...)
	require.NoError(t, err)
	ends, err := c.admin.ListEndOffsets(ctx, topics...)
	require.NoError(t, err)

	prev := make(map[string]commit.Checkpoint, len(resume))
	for _, cp := range resume {
		prev[cp.Topic+"/"+strconv.Itoa(int(cp.Partition))] = cp
	}

	work := pull.WorkUnit{TaskID: taskID}
	ends.Each(
		func(end kadm.ListedOffset) {
			require.NoError(t, end.Err)

			leader := meta.Topics[end.Topic].Partitions[end.Partition].Leader
			if cp, ok := prev[end.Topic+"/"+strconv.Itoa(int(end.Partition))]; ok {
				req := cp.NextRequest(end.Offset)
				req.LeaderID = strconv.Itoa(int(leader))
				work.Requests = append(work.Requests, req)
				return
			}

			start, ok := starts.Lookup(end.Topic, end.Partition)
			require.True(t, ok)
			work.Requests = append(
				work.Requests, pull.Request{
					Topic:              end.Topic,
					LeaderID:           strconv.Itoa(int(leader)),
					Partition:          end.Partition,
					StartOffset:        start.Offset,
					EstimatedEndOffset: end.Offset,
				},
			)
		},
	)

	sort.Slice(
		work.Requests, func(i, j int) bool {
			a, b := work.Requests[i], work.Requests[j]
			if a.Topic != b.Topic {
				return a.Topic < b.Topic
			}
			return a.Partition < b.Partition
		},
	)

	return work
}
