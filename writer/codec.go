package writer

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses a working file as it is written
type Codec string

const (
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecSnappy Codec = "snappy"
	CodecZstd   Codec = "zstd"
)

// ParseCodec accepts the codec names plus the empty string for none
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case "", CodecNone:
		return CodecNone, nil
	case CodecGzip, CodecSnappy, CodecZstd:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported codec %q", s)
	}
}

// Extension is appended after the format extension
func (c Codec) Extension() string {
	switch c {
	case CodecGzip:
		return ".gz"
	case CodecSnappy:
		return ".snappy"
	case CodecZstd:
		return ".zst"
	default:
		return ""
	}
}

// NewCodecWriter wraps w. Closing the result flushes the codec but leaves w open.
func NewCodecWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecNone, "":
		return nopWriteCloser{w}, nil
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CodecZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
}

// NewCodecReader is the reading counterpart of NewCodecWriter
func NewCodecReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	switch codec {
	case CodecNone, "":
		return io.NopCloser(r), nil
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case CodecZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
