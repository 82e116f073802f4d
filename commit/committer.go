package commit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/otel"
	"github.com/hugolhafner/go-camus/partitioner"
	"github.com/hugolhafner/go-camus/pull"
	"github.com/hugolhafner/go-camus/replicate"
	"github.com/hugolhafner/go-camus/storage"
)

// Side file prefixes, suffixed with the task id
const (
	OffsetsPrefix = "offsets"
	PathsPrefix   = "paths"
	CountsPrefix  = "counts"
	ErrorsPrefix  = "errors"
)

const defaultCountsGranularity = 10 * time.Minute

// Layout locates a task's files in the primary store
type Layout struct {
	// WorkDir holds the working files while the task runs; it is preserved on abort
	WorkDir string
	// TaskDir receives the working area's remaining files when the task commits
	TaskDir string
	// DestRoot is where promoted files land, under the partitioner's path
	DestRoot string
	TaskID   int
}

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry
	Now       func() time.Time

	MoveData          bool
	AuditCounts       bool
	Extension         string
	CountsGranularity time.Duration

	Uploader    *replicate.Uploader
	ReplicaRoot string
}

type Option func(*Config)

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// WithMoveData toggles promotion; checkpoints are written either way
func WithMoveData(enabled bool) Option {
	return func(c *Config) {
		c.MoveData = enabled
	}
}

// WithAuditCounts writes a JSON counts side file for the promoted files
func WithAuditCounts(enabled bool) Option {
	return func(c *Config) {
		c.AuditCounts = enabled
	}
}

// WithExtension sets the working file extension the writer uses
func WithExtension(ext string) Option {
	return func(c *Config) {
		c.Extension = ext
	}
}

func WithCountsGranularity(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CountsGranularity = d
		}
	}
}

// WithReplication uploads every promoted file to root on the uploader's store
func WithReplication(u *replicate.Uploader, root string) Option {
	return func(c *Config) {
		c.Uploader = u
		c.ReplicaRoot = root
	}
}

// CommittedFile is one promoted file
type CommittedFile struct {
	Path string
	// Rel is the path below the destination root, reused for the replica
	Rel string
}

// CommittedSet is the rollback manifest of a task
type CommittedSet struct {
	Files []CommittedFile
	Dirs  []string
}

// Committer promotes a task's working files, checkpoints its cursors and rolls back on abort.
// It is not safe for concurrent use.
type Committer struct {
	store        storage.Store
	layout       Layout
	partitioners partitioner.Resolver
	config       Config
	logger       logger.Logger

	cursors *CursorStore
	counts  map[string]*FileCounts

	files []CommittedFile
	dirs  map[string]struct{}
	// published lists the side files finalize moved into TaskDir, in move order
	published []string
}

func NewCommitter(store storage.Store, layout Layout, partitioners partitioner.Resolver, opts ...Option) *Committer {
	config := Config{
		Logger:            logger.NewNoopLogger(),
		Telemetry:         otel.Noop(),
		Now:               time.Now,
		MoveData:          true,
		CountsGranularity: defaultCountsGranularity,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &Committer{
		store:        store,
		layout:       layout,
		partitioners: partitioners,
		config:       config,
		logger:       config.Logger.With("component", "committer"),
		cursors:      NewCursorStore(),
		counts:       make(map[string]*FileCounts),
		dirs:         make(map[string]struct{}),
	}
}

// WorkingFileFor names the working file a record with key k belongs to
func (c *Committer) WorkingFileFor(k pull.Key) (WorkingFile, error) {
	if k.Topic == "" || !isLeaderID(k.LeaderID) || k.Partition < 0 {
		return WorkingFile{}, fmt.Errorf(
			"%w: key %s cannot be named (topic, leader id or partition)", ErrWorkingFileName, k,
		)
	}

	p, err := c.partitioners(k.Topic)
	if err != nil {
		return WorkingFile{}, err
	}

	return WorkingFile{
		Topic:      k.Topic,
		LeaderID:   k.LeaderID,
		Partition:  k.Partition,
		EncodedKey: p.EncodePartition(k.Topic, k.Time),
		TaskID:     c.layout.TaskID,
		Extension:  c.config.Extension,
	}, nil
}

// AddCounts records k against its working file and its partition cursor.
// It returns the working file the record must be written to.
func (c *Committer) AddCounts(k pull.Key) (WorkingFile, error) {
	wf, err := c.WorkingFileFor(k)
	if err != nil {
		return WorkingFile{}, err
	}

	fc, ok := c.counts[wf.BaseName()]
	if !ok {
		fc = newFileCounts(k.Topic, c.config.CountsGranularity, c.config.Now())
		c.counts[wf.BaseName()] = fc
	}
	fc.Add(k)
	c.cursors.Add(k)

	return wf, nil
}

// WorkPath is the full path of a file in the working area
func (c *Committer) WorkPath(name string) string {
	return path.Join(c.layout.WorkDir, name)
}

func (c *Committer) Cursors() *CursorStore {
	return c.cursors
}

// Counts returns the counts of a working file by its base name
func (c *Committer) Counts(baseName string) (*FileCounts, bool) {
	fc, ok := c.counts[baseName]
	return fc, ok
}

// Committed returns a copy of the rollback manifest
func (c *Committer) Committed() CommittedSet {
	dirs := make([]string, 0, len(c.dirs))
	for d := range c.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	return CommittedSet{
		Files: append([]CommittedFile(nil), c.files...),
		Dirs:  dirs,
	}
}

// Commit promotes the working files, writes the checkpoint side files and finalizes the working area.
// Any error is fatal; the caller is expected to Abort.
func (c *Committer) Commit(ctx context.Context) (err error) {
	ctx, span := c.config.Telemetry.Tracer.Start(ctx, "commit")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.config.MoveData {
		start := time.Now()
		err := c.promote(ctx)
		c.recordPhase(ctx, "promote", start)
		if err != nil {
			return err
		}
	} else {
		c.logger.Info("Not moving run data")
	}

	start := time.Now()
	defer c.recordPhase(ctx, "checkpoint", start)

	if err := c.writeOffsets(ctx); err != nil {
		return fmt.Errorf("writing offsets: %w", err)
	}
	if err := c.writePaths(ctx); err != nil {
		return fmt.Errorf("writing touched paths: %w", err)
	}
	if err := c.finalize(ctx); err != nil {
		return fmt.Errorf("finalizing task output: %w", err)
	}
	return nil
}

func (c *Committer) recordPhase(ctx context.Context, phase string, start time.Time) {
	c.config.Telemetry.CommitDuration.Record(
		ctx, time.Since(start).Seconds(), metric.WithAttributes(otel.AttrCommitPhase.String(phase)),
	)
}

func (c *Committer) promote(ctx context.Context) error {
	c.logger.Info("Promoting working files", "work_dir", c.layout.WorkDir, "dest_root", c.layout.DestRoot)

	entries, err := c.list(ctx, c.layout.WorkDir)
	if err != nil {
		return fmt.Errorf("listing working area: %w", err)
	}

	var audit []AuditEntry
	for _, e := range entries {
		if e.IsDir || !strings.HasPrefix(e.Name, workingPrefix) {
			continue
		}

		entry, err := c.promoteFile(ctx, e.Name)
		if err != nil {
			return err
		}
		if c.config.AuditCounts {
			audit = append(audit, entry)
		}
	}

	if c.config.AuditCounts {
		name := TaskFile(CountsPrefix, c.layout.TaskID) + ".json"
		c.logger.Info("Writing counts", "path", c.WorkPath(name))
		if err := c.writeFile(ctx, c.WorkPath(name), func(w io.Writer) error {
			if audit == nil {
				audit = []AuditEntry{}
			}
			return json.NewEncoder(w).Encode(audit)
		}); err != nil {
			return fmt.Errorf("writing counts: %w", err)
		}
	}
	return nil
}

func (c *Committer) promoteFile(ctx context.Context, name string) (AuditEntry, error) {
	wf, err := ParseWorkingFile(name, c.config.Extension)
	if err != nil {
		return AuditEntry{}, err
	}

	counts, ok := c.counts[wf.BaseName()]
	if !ok {
		return AuditEntry{}, fmt.Errorf("%w: %s", ErrMissingCounts, name)
	}
	counts.EndTime = c.config.Now()

	p, err := c.partitioners(wf.Topic)
	if err != nil {
		return AuditEntry{}, err
	}
	dir, err := p.GeneratePath(wf.Topic, wf.EncodedKey)
	if err != nil {
		return AuditEntry{}, fmt.Errorf("partitioning %s: %w", name, err)
	}
	file := p.GenerateFileName(wf.Topic, wf.LeaderID, wf.Partition, counts.EventCount, counts.LastKey.Offset, wf.EncodedKey)

	rel := path.Join(dir, file+c.config.Extension)
	src := c.WorkPath(name)
	dest := path.Join(c.layout.DestRoot, rel)
	parent := path.Dir(dest)

	exists, err := c.store.Exists(ctx, parent)
	if err != nil {
		return AuditEntry{}, &PromotionError{Source: src, Dest: dest, Err: err}
	}
	if !exists {
		if err := c.store.MkdirAll(ctx, parent); err != nil {
			return AuditEntry{}, &PromotionError{Source: src, Dest: dest, Err: err}
		}
	}

	c.logger.Info("Moving file", "source", src, "dest", dest)
	if err := c.store.Rename(ctx, src, dest); err != nil {
		c.logger.Error("Failed to move file", "source", src, "dest", dest, "error", err)
		return AuditEntry{}, &PromotionError{Source: src, Dest: dest, Err: err}
	}

	c.files = append(c.files, CommittedFile{Path: dest, Rel: rel})
	c.dirs[parent] = struct{}{}
	c.config.Telemetry.FilesMoved.Add(ctx, 1, otel.TopicAttributes(wf.Topic))

	if c.config.Uploader != nil {
		// best effort, the uploader logs and counts failures
		_ = c.config.Uploader.Upload(ctx, c.store, dest, c.replicaPath(rel))
	}

	return counts.Audit(dest), nil
}

func (c *Committer) replicaPath(rel string) string {
	return path.Join(c.config.ReplicaRoot, rel)
}

func (c *Committer) writeOffsets(ctx context.Context) error {
	cursors := c.cursors.Cursors()
	cps := make([]Checkpoint, 0, len(cursors))
	for _, cur := range cursors {
		cp := CheckpointOf(cur)
		c.logger.Info(
			"Average record size",
			"topic", cp.Topic,
			"partition", cp.Partition,
			"avg_size", cp.AvgMessageSize,
			"next_offset", cp.NextOffset,
		)
		cps = append(cps, cp)
	}

	return c.writeFile(ctx, c.WorkPath(TaskFile(OffsetsPrefix, c.layout.TaskID)), func(w io.Writer) error {
		return WriteCheckpoints(w, cps)
	})
}

func (c *Committer) writePaths(ctx context.Context) error {
	dirs := c.Committed().Dirs
	return c.writeFile(ctx, c.WorkPath(TaskFile(PathsPrefix, c.layout.TaskID)), func(w io.Writer) error {
		for _, d := range dirs {
			if _, err := io.WriteString(w, d+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

// finalize moves what is left in the working area into the task directory.
// The offsets file moves last so a checkpoint is only visible once everything else is.
func (c *Committer) finalize(ctx context.Context) error {
	entries, err := c.list(ctx, c.layout.WorkDir)
	if err != nil {
		return err
	}
	if err := c.store.MkdirAll(ctx, c.layout.TaskDir); err != nil {
		return err
	}

	offsets := TaskFile(OffsetsPrefix, c.layout.TaskID)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir && e.Name != offsets {
			names = append(names, e.Name)
		}
	}
	names = append(names, offsets)

	for _, name := range names {
		src, dst := c.WorkPath(name), path.Join(c.layout.TaskDir, name)
		if err := c.store.Rename(ctx, src, dst); err != nil {
			return fmt.Errorf("moving %s to %s: %w", src, dst, err)
		}
		c.published = append(c.published, name)
	}

	c.logger.Info("Task output committed", "task_dir", c.layout.TaskDir, "files", len(c.files))
	return nil
}

// Abort withdraws the published side files, checkpoint first, back into the working area.
// It then deletes every promoted file and, with replication on, its replica.
// Any failure is returned. The working area is left in place for inspection.
func (c *Committer) Abort(ctx context.Context) (err error) {
	ctx, span := c.config.Telemetry.Tracer.Start(ctx, "abort")
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.recordPhase(ctx, "abort", start)
	}()

	c.logger.Info("Aborting task, preserving working area for inspection", "work_dir", c.layout.WorkDir)
	for i := len(c.published) - 1; i >= 0; i-- {
		name := c.published[i]
		src, dst := path.Join(c.layout.TaskDir, name), c.WorkPath(name)
		c.logger.Info("Withdrawing task output", "path", src)
		if err := c.store.Rename(ctx, src, dst); err != nil {
			return &RollbackError{Path: src, Err: err}
		}
		c.published = c.published[:i]
	}

	c.logger.Info("Attempting to roll back committed files", "files", len(c.files))

	for _, f := range c.files {
		c.logger.Info("Rolling back committed file", "path", f.Path)
		if err := c.store.Remove(ctx, f.Path); err != nil {
			return &RollbackError{Path: f.Path, Err: err}
		}
		c.config.Telemetry.RollbackDeletes.Add(ctx, 1)

		if c.config.Uploader != nil {
			replica := c.replicaPath(f.Rel)
			if err := c.config.Uploader.Delete(ctx, replica); err != nil {
				return &RollbackError{Path: replica, Replica: true, Err: err}
			}
			c.config.Telemetry.RollbackDeletes.Add(ctx, 1)
		}
	}
	return nil
}

func (c *Committer) list(ctx context.Context, dir string) ([]storage.Entry, error) {
	entries, err := c.store.List(ctx, dir)
	if storage.IsNotExist(err) {
		return nil, nil
	}
	return entries, err
}

func (c *Committer) writeFile(ctx context.Context, p string, fn func(w io.Writer) error) error {
	w, err := c.store.Create(ctx, p)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		return errors.Join(err, w.Close())
	}
	return w.Close()
}
