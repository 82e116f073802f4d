//go:build unit

package writer_test

import (
	"bufio"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hugolhafner/go-camus/storage"
	"github.com/hugolhafner/go-camus/writer"
)

func readBack(t *testing.T, store storage.Store, path string, codec writer.Codec) []string {
	t.Helper()
	f, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	defer f.Close()

	r, err := writer.NewCodecReader(f, codec)
	require.NoError(t, err)
	defer r.Close()

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestJSONLines_Codecs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		codec writer.Codec
		ext   string
	}{
		{"none", writer.CodecNone, ".json"},
		{"gzip", writer.CodecGzip, ".json.gz"},
		{"snappy", writer.CodecSnappy, ".json.snappy"},
		{"zstd", writer.CodecZstd, ".json.zst"},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				store := storage.NewMemStore()
				p := writer.NewJSONLines(tt.codec)
				require.Equal(t, tt.ext, p.Extension())

				path := "/work/data.t.1.0.0-m-00000" + p.Extension()
				w, err := p.NewWriter(context.Background(), store, path)
				require.NoError(t, err)

				require.NoError(t, w.Write(map[string]any{"id": 1}))
				require.NoError(t, w.Write([]byte(`{"raw":true}`)))
				require.NoError(t, w.Write("plain"))
				require.NoError(t, w.Close())

				require.Equal(
					t,
					[]string{`{"id":1}`, `{"raw":true}`, "plain"},
					readBack(t, store, path, tt.codec),
				)
			},
		)
	}
}

func TestMarshalRecord(t *testing.T) {
	t.Parallel()

	b, err := writer.MarshalRecord(wrapperspb.String("hi"))
	require.NoError(t, err)
	require.JSONEq(t, `"hi"`, string(b))

	_, err = writer.MarshalRecord(nil)
	require.Error(t, err)

	_, err = writer.MarshalRecord(make(chan int))
	require.Error(t, err)
}

func TestRegistry_Build(t *testing.T) {
	t.Parallel()
	r := writer.NewRegistry()

	p, err := r.Build("json", "gzip")
	require.NoError(t, err)
	require.Equal(t, ".json.gz", p.Extension())

	_, err = r.Build("avro", "")
	require.ErrorContains(t, err, `unknown writer format "avro" (registered: json)`)

	_, err = r.Build("json", "lz4")
	require.ErrorContains(t, err, "unsupported codec")
}
