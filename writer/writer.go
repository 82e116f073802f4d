package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/hugolhafner/go-camus/storage"
)

// RecordWriter appends decoded records to one working file
type RecordWriter interface {
	Write(record any) error
	// Close flushes buffered output and closes the underlying file
	Close() error
}

// Provider creates record writers for working files
type Provider interface {
	// Extension is the suffix of every file the provider writes, such as ".json.gz"
	Extension() string
	NewWriter(ctx context.Context, store storage.Store, path string) (RecordWriter, error)
}

// JSONLines writes one JSON document per line
type JSONLines struct {
	codec Codec
}

var _ Provider = (*JSONLines)(nil)

func NewJSONLines(codec Codec) *JSONLines {
	if codec == "" {
		codec = CodecNone
	}
	return &JSONLines{codec: codec}
}

func (p *JSONLines) Extension() string {
	return ".json" + p.codec.Extension()
}

func (p *JSONLines) NewWriter(ctx context.Context, store storage.Store, path string) (RecordWriter, error) {
	f, err := store.Create(ctx, path)
	if err != nil {
		return nil, err
	}

	cw, err := NewCodecWriter(f, p.codec)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}

	return &jsonLinesWriter{file: f, codec: cw, buf: bufio.NewWriter(cw)}, nil
}

type jsonLinesWriter struct {
	file  io.Closer
	codec io.WriteCloser
	buf   *bufio.Writer
}

func (w *jsonLinesWriter) Write(record any) error {
	line, err := MarshalRecord(record)
	if err != nil {
		return err
	}
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

func (w *jsonLinesWriter) Close() error {
	return errors.Join(w.buf.Flush(), w.codec.Close(), w.file.Close())
}

// MarshalRecord renders a decoded record as a single JSON line.
// Raw bytes and strings are written as is.
func MarshalRecord(record any) ([]byte, error) {
	switch r := record.(type) {
	case nil:
		return nil, errors.New("nil record")
	case []byte:
		return r, nil
	case string:
		return []byte(r), nil
	case json.RawMessage:
		return r, nil
	case proto.Message:
		return protojson.MarshalOptions{Multiline: false}.Marshal(r)
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", record, err)
		}
		return b, nil
	}
}
