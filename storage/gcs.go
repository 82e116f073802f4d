package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var _ Store = (*GCSStore)(nil)

// GCSStore is a Store over one Cloud Storage bucket. Directories are implicit,
// so MkdirAll is a no-op and Rename is a copy followed by a delete.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSStore dials a new client. Each call opens its own connection pool.
func NewGCSStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return NewGCSStoreFromClient(client, bucket, prefix), nil
}

func NewGCSStoreFromClient(client *gcs.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *GCSStore) Provider() string {
	return "gs"
}

func (s *GCSStore) URL(p string) string {
	return "gs://" + s.bucket + "/" + s.object(p)
}

func (s *GCSStore) object(p string) string {
	return strings.TrimPrefix(path.Join(s.prefix, p), "/")
}

func (s *GCSStore) handle(p string) *gcs.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.object(p))
}

func (s *GCSStore) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.handle(p).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

func (s *GCSStore) List(ctx context.Context, dir string) ([]Entry, error) {
	prefix := s.object(dir)
	if prefix != "" {
		prefix += "/"
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix, Delimiter: "/"})
	var entries []Entry
	for {
		obj, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		if obj.Prefix != "" {
			entries = append(entries, Entry{Name: path.Base(strings.TrimSuffix(obj.Prefix, "/")), IsDir: true})
			continue
		}
		entries = append(entries, Entry{Name: strings.TrimPrefix(obj.Name, prefix), Size: obj.Size, ModTime: obj.Updated})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *GCSStore) MkdirAll(context.Context, string) error {
	return nil
}

func (s *GCSStore) Rename(ctx context.Context, src, dst string) error {
	dstHandle := s.handle(dst).If(gcs.Conditions{DoesNotExist: true})
	if _, err := dstHandle.CopierFrom(s.handle(src)).Run(ctx); err != nil {
		return fmt.Errorf("copy %s to %s: %w", s.URL(src), s.URL(dst), err)
	}
	return s.Remove(ctx, src)
}

func (s *GCSStore) Remove(ctx context.Context, p string) error {
	err := s.handle(p).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("remove %s: %w", s.URL(p), ErrNotExist)
	}
	return err
}

func (s *GCSStore) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	return &gcsWriter{Writer: s.handle(p).NewWriter(ctx), cancel: cancel}, nil
}

func (s *GCSStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	r, err := s.handle(p).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("open %s: %w", s.URL(p), ErrNotExist)
	}
	return r, err
}

// Close releases the client's connections
func (s *GCSStore) Close() error {
	return s.client.Close()
}

type gcsWriter struct {
	*gcs.Writer
	cancel context.CancelFunc
}

func (w *gcsWriter) Close() error {
	defer w.cancel()
	return w.Writer.Close()
}
