//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	camus "github.com/hugolhafner/go-camus"
	"github.com/hugolhafner/go-camus/commit"
	"github.com/hugolhafner/go-camus/config"
	"github.com/hugolhafner/go-camus/storage"
)

func events(from int, at time.Time, step time.Duration, n int) []string {
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprintf(`{"id":%d,"timestamp":%d}`, from+i, at.Add(time.Duration(i)*step).UnixMilli())
	}
	return values
}

func newApp(t *testing.T, c *cluster, dir string) *camus.Application {
	t.Helper()

	cfg := config.Default()
	cfg.Kafka.Brokers = []string{c.seed}
	cfg.Kafka.PollTimeout = 5 * time.Second
	cfg.Writer.Codec = "none"
	cfg.Store = config.StoreCfg{URL: "file://" + dir, ExecutionDir: "/exec", DestRoot: "/dest"}
	require.NoError(t, cfg.Validate())

	app, err := camus.NewApplication(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func readOffsets(t *testing.T, dir string, taskID int) []commit.Checkpoint {
	t.Helper()

	r, err := storage.NewOSStore(dir).Open(context.Background(), path.Join("/exec", commit.TaskFile(commit.OffsetsPrefix, taskID)))
	require.NoError(t, err)
	defer r.Close()

	cps, err := commit.ReadCheckpoints(r)
	require.NoError(t, err)
	return cps
}

func TestApplication_PullsTopicIntoStore(t *testing.T) {
	c := startCluster(t)
	topic := c.topic(t, "camus", 1)

	// 10:30..11:42 spans two hourly directories
	c.produce(t, topic, 0, events(0, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), 3*time.Minute, 25)...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dir := t.TempDir()
	app := newApp(t, c, dir)

	res, err := app.Run(ctx, c.plan(t, 0, nil, topic))
	require.NoError(t, err)
	require.Equal(t, int64(25), res.Stats.RecordsRead)
	require.Len(t, res.Committed.Files, 2)
	require.Len(t, res.Committed.Dirs, 2)
	require.Equal(t, int64(25), res.Checkpoints[0].NextOffset)

	cps := readOffsets(t, dir, 0)
	require.Len(t, cps, 1)
	require.Equal(t, int64(24), cps[0].Offset)
}

func TestApplication_ResumesFromCheckpoints(t *testing.T) {
	c := startCluster(t)
	topic := c.topic(t, "resume", 2)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c.produce(t, topic, 0, events(0, at, time.Minute, 10)...)
	c.produce(t, topic, 1, events(100, at, time.Minute, 4)...)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	dir := t.TempDir()
	app := newApp(t, c, dir)

	first, err := app.Run(ctx, c.plan(t, 0, nil, topic))
	require.NoError(t, err)
	require.Equal(t, int64(14), first.Stats.RecordsRead)

	c.produce(t, topic, 0, events(10, at.Add(time.Hour), time.Minute, 6)...)

	second, err := app.Run(ctx, c.plan(t, 1, readOffsets(t, dir, 0), topic))
	require.NoError(t, err)
	require.Equal(t, int64(6), second.Stats.RecordsRead)
	require.Len(t, second.Committed.Files, 1)

	cps := readOffsets(t, dir, 1)
	require.Len(t, cps, 1)
	require.Equal(t, int32(0), cps[0].Partition)
	require.Equal(t, int64(15), cps[0].Offset)
}
