//go:build unit

package storage_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-camus/storage"
)

func writeFile(t *testing.T, s storage.Store, path, content string) {
	t.Helper()
	w, err := s.Create(context.Background(), path)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, s storage.Store, path string) string {
	t.Helper()
	r, err := s.Open(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestAferoStore_CreateListRename(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := storage.NewMemStore()

	writeFile(t, s, "/work/b.txt", "b")
	writeFile(t, s, "/work/a.txt", "a")
	require.NoError(t, s.MkdirAll(ctx, "/work/sub"))

	entries, err := s.List(ctx, "/work")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a.txt", entries[0].Name)
	require.Equal(t, "b.txt", entries[1].Name)
	require.True(t, entries[2].IsDir)

	require.NoError(t, s.MkdirAll(ctx, "/dest"))
	require.NoError(t, s.Rename(ctx, "/work/a.txt", "/dest/a.txt"))
	require.Equal(t, "a", readFile(t, s, "/dest/a.txt"))

	ok, err := s.Exists(ctx, "/work/a.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAferoStore_RenameRefusesOverwrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := storage.NewMemStore()

	writeFile(t, s, "/a", "a")
	writeFile(t, s, "/b", "b")

	err := s.Rename(ctx, "/a", "/b")
	require.ErrorIs(t, err, storage.ErrExists)
	require.Equal(t, "b", readFile(t, s, "/b"))
}

func TestAferoStore_RemoveMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := storage.NewMemStore()

	writeFile(t, s, "/a", "a")
	require.NoError(t, s.Remove(ctx, "/a"))

	err := s.Remove(ctx, "/a")
	require.True(t, storage.IsNotExist(err))
}

func TestAferoStore_URL(t *testing.T) {
	t.Parallel()
	require.Equal(t, "mem:///x/y", storage.NewMemStore().URL("x/y"))
	require.Equal(t, "file:///data/x", storage.NewOSStore("/data").URL("/x"))
}

func TestCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := storage.NewMemStore()
	dst := storage.NewMemStore()

	writeFile(t, src, "/in/file.json", `{"a":1}`)
	require.NoError(t, storage.Copy(ctx, src, "/in/file.json", dst, "/out/deep/file.json"))
	require.Equal(t, `{"a":1}`, readFile(t, dst, "/out/deep/file.json"))

	err := storage.Copy(ctx, src, "/in/missing", dst, "/out/missing")
	require.Error(t, err)
}

func TestDial(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		url      string
		provider string
		wantErr  string
	}{
		{name: "memory", url: "mem://", provider: "mem"},
		{name: "file", url: "file:///tmp", provider: "file"},
		{name: "bare path", url: "/tmp", provider: "file"},
		{name: "gcs without bucket", url: "gs:///prefix", wantErr: "missing bucket"},
		{name: "unsupported", url: "s3://bucket", wantErr: "unsupported scheme"},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				s, err := storage.Dial(context.Background(), tt.url)
				if tt.wantErr != "" {
					require.ErrorContains(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				require.Equal(t, tt.provider, s.Provider())
			},
		)
	}
}
