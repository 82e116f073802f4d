package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/spf13/afero"
)

var _ Store = (*AferoStore)(nil)

// AferoStore is a Store over an afero filesystem: the OS in production, memory in tests
type AferoStore struct {
	fs       afero.Fs
	provider string
	root     string
}

// NewAferoStore wraps fs. root is only used to render URLs.
func NewAferoStore(fs afero.Fs, provider, root string) *AferoStore {
	return &AferoStore{fs: fs, provider: provider, root: root}
}

// NewMemStore returns an empty in-memory store
func NewMemStore() *AferoStore {
	return NewAferoStore(afero.NewMemMapFs(), "mem", "/")
}

// NewOSStore returns a store rooted at dir on the local filesystem
func NewOSStore(dir string) *AferoStore {
	if dir == "" || dir == "/" {
		return NewAferoStore(afero.NewOsFs(), "file", "/")
	}
	return NewAferoStore(afero.NewBasePathFs(afero.NewOsFs(), dir), "file", dir)
}

func (s *AferoStore) Fs() afero.Fs {
	return s.fs
}

func (s *AferoStore) Provider() string {
	return s.provider
}

func (s *AferoStore) URL(p string) string {
	return s.provider + "://" + path.Join("/", s.root, p)
}

func (s *AferoStore) Exists(_ context.Context, p string) (bool, error) {
	return afero.Exists(s.fs, p)
}

func (s *AferoStore) List(_ context.Context, dir string) ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{Name: fi.Name(), IsDir: fi.IsDir(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *AferoStore) MkdirAll(_ context.Context, p string) error {
	return s.fs.MkdirAll(p, 0o755)
}

func (s *AferoStore) Rename(_ context.Context, src, dst string) error {
	exists, err := afero.Exists(s.fs, dst)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("rename %s to %s: %w", src, dst, ErrExists)
	}
	return s.fs.Rename(src, dst)
}

func (s *AferoStore) Remove(_ context.Context, p string) error {
	exists, err := afero.Exists(s.fs, p)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("remove %s: %w", p, ErrNotExist)
	}
	return s.fs.Remove(p)
}

func (s *AferoStore) Create(_ context.Context, p string) (io.WriteCloser, error) {
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return s.fs.Create(p)
}

func (s *AferoStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	return s.fs.Open(p)
}
