package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// ErrExists is returned by Rename when the destination is already present
var ErrExists = os.ErrExist

// ErrNotExist is returned when a path is missing
var ErrNotExist = os.ErrNotExist

// Entry is one child of a listed directory
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Store is the file abstraction the commit protocol runs against.
// Paths are slash-separated and relative to the store's root.
type Store interface {
	// Provider names the backend, e.g. "file", "mem" or "gs"
	Provider() string

	// URL renders path as an absolute location for logs and side files
	URL(path string) string

	Exists(ctx context.Context, path string) (bool, error)

	// List returns the direct children of dir, sorted by name
	List(ctx context.Context, dir string) ([]Entry, error)

	MkdirAll(ctx context.Context, path string) error

	// Rename atomically moves src to dst. It fails if dst exists.
	Rename(ctx context.Context, src, dst string) error

	// Remove deletes one file. A missing file is an error.
	Remove(ctx context.Context, path string) error

	Create(ctx context.Context, path string) (io.WriteCloser, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Copy streams srcPath from src into dstPath on dst
func Copy(ctx context.Context, src Store, srcPath string, dst Store, dstPath string) (err error) {
	r, err := src.Open(ctx, srcPath)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, r.Close())
	}()

	w, err := dst.Create(ctx, dstPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// IsNotExist reports whether err means the path was missing
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}
