package mockstorage

import (
	"context"
	"io"
	"sync"

	"github.com/hugolhafner/go-camus/storage"
)

// Op names a Store method for fault injection
type Op string

const (
	OpExists   Op = "exists"
	OpList     Op = "list"
	OpMkdirAll Op = "mkdirall"
	OpRename   Op = "rename"
	OpRemove   Op = "remove"
	OpCreate   Op = "create"
	OpOpen     Op = "open"
)

// Call is one recorded Store invocation
type Call struct {
	Op   Op
	Path string
	Dst  string
}

var _ storage.Store = (*Store)(nil)

// Store wraps another Store, records calls and fails the ones a fault func picks.
type Store struct {
	storage.Store

	mu    sync.Mutex
	calls []Call
	fault func(op Op, path string) error
}

func Wrap(s storage.Store, opts ...Option) *Store {
	m := &Store{Store: s}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewMem wraps a fresh in-memory store
func NewMem(opts ...Option) *Store {
	return Wrap(storage.NewMemStore(), opts...)
}

// SetFault replaces the fault func
func (m *Store) SetFault(fn func(op Op, path string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

func (m *Store) record(op Op, p, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, Path: p, Dst: dst})
	if m.fault != nil {
		return m.fault(op, p)
	}
	return nil
}

// Calls returns every recorded call, optionally filtered by op
func (m *Store) Calls(ops ...Op) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Call, 0, len(m.calls))
	for _, c := range m.calls {
		if len(ops) == 0 {
			out = append(out, c)
			continue
		}
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (m *Store) Exists(ctx context.Context, p string) (bool, error) {
	if err := m.record(OpExists, p, ""); err != nil {
		return false, err
	}
	return m.Store.Exists(ctx, p)
}

func (m *Store) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	if err := m.record(OpList, dir, ""); err != nil {
		return nil, err
	}
	return m.Store.List(ctx, dir)
}

func (m *Store) MkdirAll(ctx context.Context, p string) error {
	if err := m.record(OpMkdirAll, p, ""); err != nil {
		return err
	}
	return m.Store.MkdirAll(ctx, p)
}

func (m *Store) Rename(ctx context.Context, src, dst string) error {
	if err := m.record(OpRename, src, dst); err != nil {
		return err
	}
	return m.Store.Rename(ctx, src, dst)
}

func (m *Store) Remove(ctx context.Context, p string) error {
	if err := m.record(OpRemove, p, ""); err != nil {
		return err
	}
	return m.Store.Remove(ctx, p)
}

func (m *Store) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := m.record(OpCreate, p, ""); err != nil {
		return nil, err
	}
	return m.Store.Create(ctx, p)
}

func (m *Store) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := m.record(OpOpen, p, ""); err != nil {
		return nil, err
	}
	return m.Store.Open(ctx, p)
}
