package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/pull"
	"github.com/hugolhafner/go-camus/storage"
)

// DiagnosticEntry is one line of the errors side file
type DiagnosticEntry struct {
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Topic     string    `json:"topic"`
	LeaderID  string    `json:"leader_id"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
}

// diagnosticsFile appends diagnostics as JSON lines, opening the file on the first entry.
// A write failure is kept and returned from Close so that the task aborts.
type diagnosticsFile struct {
	ctx    context.Context
	store  storage.Store
	path   string
	now    func() time.Time
	logger logger.Logger

	mu      sync.Mutex
	w       io.WriteCloser
	enc     *json.Encoder
	written int
	err     error
}

var _ pull.DiagnosticSink = (*diagnosticsFile)(nil)

func newDiagnosticsFile(ctx context.Context, store storage.Store, path string, now func() time.Time, l logger.Logger) *diagnosticsFile {
	return &diagnosticsFile{ctx: ctx, store: store, path: path, now: now, logger: l}
}

func (f *diagnosticsFile) Report(d pull.Diagnostic) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return
	}
	if f.w == nil {
		w, err := f.store.Create(f.ctx, f.path)
		if err != nil {
			f.err = err
			return
		}
		f.w, f.enc = w, json.NewEncoder(w)
	}

	entry := DiagnosticEntry{
		Time:      f.now(),
		Kind:      string(d.Kind),
		Topic:     d.Key.Topic,
		LeaderID:  d.Key.LeaderID,
		Partition: d.Key.Partition,
		Offset:    d.Key.Offset,
		Message:   d.Message,
	}
	if d.Err != nil {
		entry.Error = d.Err.Error()
	}

	if err := f.enc.Encode(entry); err != nil {
		f.err = err
		return
	}
	f.written++
}

func (f *diagnosticsFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.err
	if f.w != nil {
		err = errors.Join(err, f.w.Close())
		f.logger.Info("Wrote diagnostics", "path", f.path, "entries", f.written)
	}
	if err != nil {
		return fmt.Errorf("writing diagnostics: %w", err)
	}
	return nil
}
