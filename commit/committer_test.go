//go:build unit

package commit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-camus/commit"
	mocklogger "github.com/hugolhafner/go-camus/logger/mock"
	"github.com/hugolhafner/go-camus/partitioner"
	"github.com/hugolhafner/go-camus/pull"
	"github.com/hugolhafner/go-camus/replicate"
	"github.com/hugolhafner/go-camus/storage"
	mockstorage "github.com/hugolhafner/go-camus/storage/mock"
)

const (
	workDir  = "/work/task-00003"
	taskDir  = "/runs/task-00003"
	destRoot = "/dest"
	ext      = ".json"
)

var baseTime = time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)

func newCommitter(store storage.Store, opts ...commit.Option) *commit.Committer {
	opts = append([]commit.Option{commit.WithExtension(ext), commit.WithClock(func() time.Time { return baseTime })}, opts...)
	return commit.NewCommitter(
		store,
		commit.Layout{WorkDir: workDir, TaskDir: taskDir, DestRoot: destRoot, TaskID: 3},
		partitioner.Static(partitioner.Hourly()),
		opts...,
	)
}

// pullRange feeds offsets [from, to) through AddCounts and writes one line per record
func pullRange(t *testing.T, c *commit.Committer, store storage.Store, topic string, from, to int64, at time.Time) commit.WorkingFile {
	t.Helper()
	ctx := context.Background()

	var wf commit.WorkingFile
	var lines []string
	for off := from; off < to; off++ {
		var err error
		wf, err = c.AddCounts(key(topic, 0, off, 10, at))
		require.NoError(t, err)
		lines = append(lines, strconv.FormatInt(off, 10))
	}

	w, err := store.Create(ctx, c.WorkPath(wf.Name()))
	require.NoError(t, err)
	for _, l := range lines {
		_, err := io.WriteString(w, l+"\n")
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return wf
}

func hourKey(at time.Time) string {
	return strconv.FormatInt(at.Truncate(time.Hour).UnixMilli(), 10)
}

func readCheckpoints(t *testing.T, store storage.Store, p string) []commit.Checkpoint {
	t.Helper()
	r, err := store.Open(context.Background(), p)
	require.NoError(t, err)
	defer r.Close()

	cps, err := commit.ReadCheckpoints(r)
	require.NoError(t, err)
	return cps
}

func readLines(t *testing.T, store storage.Store, p string) []string {
	t.Helper()
	r, err := store.Open(context.Background(), p)
	require.NoError(t, err)
	defer r.Close()

	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	require.NoError(t, sc.Err())
	return out
}

func TestCommitter_PromotesAndCheckpoints(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)

	pullRange(t, c, store, "t", 100, 200, baseTime)
	require.NoError(t, c.Commit(context.Background()))

	dir := path.Join(destRoot, "t/hourly/2024/05/01/10")
	dest := path.Join(dir, "t.1.0.100.199."+hourKey(baseTime)+ext)
	store.AssertExists(t, dest)
	require.Len(t, readLines(t, store, dest), 100)

	cur, ok := c.Cursors().Get(commit.PartitionID{Topic: "t", LeaderID: "1", Partition: 0})
	require.True(t, ok)
	require.Equal(t, int64(100), cur.EventCount)
	require.Equal(t, int64(199), cur.LastKey.Offset)

	cps := readCheckpoints(t, store, path.Join(taskDir, "offsets-m-00003"))
	require.Len(t, cps, 1)
	require.Equal(t, int64(199), cps[0].Offset)
	require.Equal(t, int64(200), cps[0].NextOffset)
	require.Equal(t, int64(10), cps[0].AvgMessageSize)

	require.Equal(t, []string{dir}, readLines(t, store, path.Join(taskDir, "paths-m-00003")))

	committed := c.Committed()
	require.Len(t, committed.Files, 1)
	require.Equal(t, dest, committed.Files[0].Path)
	require.Equal(t, []string{dir}, committed.Dirs)

	entries, err := store.List(context.Background(), workDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCommitter_SplitsByHour(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)

	later := baseTime.Add(time.Hour)
	pullRange(t, c, store, "t", 0, 5, baseTime)
	pullRange(t, c, store, "t", 5, 8, later)
	require.NoError(t, c.Commit(context.Background()))

	store.AssertExists(t, path.Join(destRoot, "t/hourly/2024/05/01/10", "t.1.0.5.4."+hourKey(baseTime)+ext))
	store.AssertExists(t, path.Join(destRoot, "t/hourly/2024/05/01/11", "t.1.0.3.7."+hourKey(later)+ext))
	require.Len(t, c.Committed().Dirs, 2)

	cps := readCheckpoints(t, store, path.Join(taskDir, "offsets-m-00003"))
	require.Len(t, cps, 1)
	require.Equal(t, int64(8), cps[0].NextOffset)
}

func TestCommitter_WritesAuditCounts(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store, commit.WithAuditCounts(true))

	pullRange(t, c, store, "t", 0, 3, baseTime)
	require.NoError(t, c.Commit(context.Background()))

	r, err := store.Open(context.Background(), path.Join(taskDir, "counts-m-00003.json"))
	require.NoError(t, err)
	defer r.Close()

	var audit []commit.AuditEntry
	require.NoError(t, json.NewDecoder(r).Decode(&audit))
	require.Len(t, audit, 1)
	require.Equal(t, int64(3), audit[0].EventCount)
	require.Equal(t, int64(0), audit[0].FirstKey.Offset)
	require.Equal(t, int64(2), audit[0].LastKey.Offset)
	require.Len(t, audit[0].Buckets, 1)
	require.Equal(t, int64(3), audit[0].Buckets[0].Count)
}

func TestCommitter_WithoutMoveDataOnlyCheckpoints(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	log := mocklogger.New()
	c := newCommitter(store, commit.WithMoveData(false), commit.WithLogger(log))

	wf := pullRange(t, c, store, "t", 0, 3, baseTime)
	require.NoError(t, c.Commit(context.Background()))

	require.Empty(t, store.Calls(mockstorage.OpExists))
	store.AssertNotExists(t, destRoot)
	require.Empty(t, c.Committed().Files)
	store.AssertExists(t, path.Join(taskDir, wf.Name()))
	require.Len(t, readCheckpoints(t, store, path.Join(taskDir, "offsets-m-00003")), 1)
	log.AssertCalledWithMessage(t, "Not moving run data")
}

func TestCommitter_EmptyWorkArea(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)

	require.NoError(t, c.Commit(context.Background()))
	require.Empty(t, readCheckpoints(t, store, path.Join(taskDir, "offsets-m-00003")))
	require.Empty(t, readLines(t, store, path.Join(taskDir, "paths-m-00003")))
}

func TestCommitter_MissingCounts(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)

	w, err := store.Create(context.Background(), path.Join(workDir, "data.t.1.0."+hourKey(baseTime)+"-m-00003"+ext))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = c.Commit(context.Background())
	require.ErrorIs(t, err, commit.ErrMissingCounts)
}

func TestCommitter_MalformedWorkingFile(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)

	w, err := store.Create(context.Background(), path.Join(workDir, "data.t.nope-m-00003"+ext))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.ErrorIs(t, c.Commit(context.Background()), commit.ErrWorkingFileName)
}

func TestCommitter_RenameFailureIsFatal(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)
	pullRange(t, c, store, "t", 0, 3, baseTime)

	boom := errors.New("permission denied")
	store.SetFault(
		func(op mockstorage.Op, p string) error {
			if op == mockstorage.OpRename {
				return boom
			}
			return nil
		},
	)

	err := c.Commit(context.Background())
	require.ErrorIs(t, err, boom)
	pe, ok := commit.AsPromotionError(err)
	require.True(t, ok)
	require.Equal(t, path.Join(destRoot, "t/hourly/2024/05/01/10", "t.1.0.3.2."+hourKey(baseTime)+ext), pe.Dest)
	require.Empty(t, c.Committed().Files)
}

func TestCommitter_ReplicationFailureDoesNotFailCommit(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	dials := 0
	u := replicate.NewUploader(
		func(context.Context) (storage.Store, error) {
			dials++
			return nil, errors.New("connection refused")
		},
	)
	c := newCommitter(store, commit.WithReplication(u, "/replica"))

	pullRange(t, c, store, "t", 0, 3, baseTime)
	require.NoError(t, c.Commit(context.Background()))

	require.Equal(t, 4, dials)
	require.Equal(t, int64(1), u.Failed())
	require.Equal(t, int64(0), u.Succeeded())
	store.AssertExists(t, path.Join(destRoot, "t/hourly/2024/05/01/10", "t.1.0.3.2."+hourKey(baseTime)+ext))
}

func TestCommitter_Abort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		replicaFault  bool
		wantErr       bool
		wantRemoved   int
		wantReplicaOK bool
	}{
		{name: "removes files and replicas", wantRemoved: 2, wantReplicaOK: true},
		{name: "remote delete failure is fatal", replicaFault: true, wantErr: true, wantRemoved: 1},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				ctx := context.Background()
				store := mockstorage.NewMem()
				replica := mockstorage.NewMem()
				u := replicate.NewUploader(replicate.Static(replica))
				c := newCommitter(store, commit.WithReplication(u, "/replica"))

				pullRange(t, c, store, "t", 0, 3, baseTime)
				pullRange(t, c, store, "t", 3, 5, baseTime.Add(time.Hour))
				require.NoError(t, c.Commit(ctx))
				require.Equal(t, int64(2), u.Succeeded())

				committed := c.Committed()
				require.Len(t, committed.Files, 2)
				for _, f := range committed.Files {
					replica.AssertExists(t, path.Join("/replica", f.Rel))
				}

				if tt.replicaFault {
					replica.SetFault(
						func(op mockstorage.Op, _ string) error {
							if op == mockstorage.OpRemove {
								return errors.New("forbidden")
							}
							return nil
						},
					)
				}

				err := c.Abort(ctx)
				if tt.wantErr {
					require.Error(t, err)
					re, ok := commit.AsRollbackError(err)
					require.True(t, ok)
					require.True(t, re.Replica)
				} else {
					require.NoError(t, err)
				}

				removed := store.Calls(mockstorage.OpRemove)
				require.Len(t, removed, tt.wantRemoved)
				for _, call := range removed {
					store.AssertNotExists(t, call.Path)
				}

				if tt.wantReplicaOK {
					replica.AssertRemoved(
						t,
						path.Join("/replica", committed.Files[0].Rel),
						path.Join("/replica", committed.Files[1].Rel),
					)
				}

				// the checkpoint is withdrawn into the preserved working area
				store.AssertNotExists(t, path.Join(taskDir, "offsets-m-00003"))
				store.AssertExists(t, path.Join(workDir, "offsets-m-00003"))
			},
		)
	}
}

func TestCommitter_FinalizeFailureHidesCheckpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		failOn string
	}{
		{name: "paths file", failOn: "paths-m-"},
		{name: "diagnostics file", failOn: "errors-m-"},
		{name: "offsets file", failOn: "offsets-m-"},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				ctx := context.Background()
				store := mockstorage.NewMem()
				c := newCommitter(store)

				pullRange(t, c, store, "t", 100, 200, baseTime)
				w, err := store.Create(ctx, c.WorkPath("errors-m-00003"))
				require.NoError(t, err)
				require.NoError(t, w.Close())

				boom := errors.New("boom")
				store.SetFault(
					func(op mockstorage.Op, p string) error {
						if op == mockstorage.OpRename && strings.HasPrefix(path.Base(p), tt.failOn) && path.Dir(p) == workDir {
							return boom
						}
						return nil
					},
				)

				require.ErrorIs(t, c.Commit(ctx), boom)
				store.AssertNotExists(t, path.Join(taskDir, "offsets-m-00003"))

				require.NoError(t, c.Abort(ctx))
				for _, name := range []string{"offsets-m-00003", "paths-m-00003", "errors-m-00003"} {
					store.AssertNotExists(t, path.Join(taskDir, name))
					store.AssertExists(t, path.Join(workDir, name))
				}
				for _, f := range c.Committed().Files {
					store.AssertNotExists(t, f.Path)
				}
			},
		)
	}
}

func TestCommitter_AbortLocalDeleteFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := mockstorage.NewMem()
	c := newCommitter(store)

	pullRange(t, c, store, "t", 0, 3, baseTime)
	require.NoError(t, c.Commit(ctx))

	dest := c.Committed().Files[0].Path
	require.NoError(t, store.Store.Remove(ctx, dest))

	err := c.Abort(ctx)
	require.ErrorIs(t, err, storage.ErrNotExist)
	re, ok := commit.AsRollbackError(err)
	require.True(t, ok)
	require.False(t, re.Replica)
	require.Equal(t, dest, re.Path)
}

func TestCommitter_AbortBeforeCommitIsNoop(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)
	pullRange(t, c, store, "t", 0, 3, baseTime)

	require.NoError(t, c.Abort(context.Background()))
	require.Empty(t, store.Calls(mockstorage.OpRemove))
}

func TestCommitter_AddCountsRejectsUnknownTopic(t *testing.T) {
	t.Parallel()
	resolver := func(topic string) (partitioner.Partitioner, error) {
		return nil, errors.New("no partitioner for " + topic)
	}
	c := commit.NewCommitter(mockstorage.NewMem(), commit.Layout{WorkDir: workDir, TaskDir: taskDir}, resolver)

	_, err := c.AddCounts(pull.Key{Topic: "unknown", LeaderID: "1"})
	require.Error(t, err)
	require.Zero(t, c.Cursors().Len())
}

func TestCommitter_AddCountsRejectsUnnameableKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  pull.Key
	}{
		{"empty topic", pull.Key{LeaderID: "1", Time: baseTime}},
		{"empty leader", pull.Key{Topic: "t", Time: baseTime}},
		{"leader with dot", pull.Key{Topic: "t", LeaderID: "1.2", Time: baseTime}},
		{"negative partition", pull.Key{Topic: "t", LeaderID: "1", Partition: -1, Time: baseTime}},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				c := newCommitter(mockstorage.NewMem())

				_, err := c.AddCounts(tt.key)
				require.ErrorIs(t, err, commit.ErrWorkingFileName)
				require.Zero(t, c.Cursors().Len())
			},
		)
	}
}

func TestCommitter_PromotesDottedTopic(t *testing.T) {
	t.Parallel()
	store := mockstorage.NewMem()
	c := newCommitter(store)

	wf := pullRange(t, c, store, "orders.v1", 100, 200, baseTime)
	require.Equal(t, "orders.v1", wf.Topic)
	require.NoError(t, c.Commit(context.Background()))

	dest := path.Join(destRoot, "orders.v1/hourly/2024/05/01/10", "orders.v1.1.0.100.199."+hourKey(baseTime)+ext)
	store.AssertExists(t, dest)
	require.Len(t, readLines(t, store, dest), 100)

	cps := readCheckpoints(t, store, path.Join(taskDir, "offsets-m-00003"))
	require.Len(t, cps, 1)
	require.Equal(t, "orders.v1", cps[0].Topic)
	require.Equal(t, int64(200), cps[0].NextOffset)
}
