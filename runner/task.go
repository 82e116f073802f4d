package runner

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/hugolhafner/go-camus/commit"
	"github.com/hugolhafner/go-camus/decoder"
	"github.com/hugolhafner/go-camus/kafka"
	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/partitioner"
	"github.com/hugolhafner/go-camus/pull"
	"github.com/hugolhafner/go-camus/storage"
	"github.com/hugolhafner/go-camus/writer"
)

// Deps are the collaborators a task reads from and writes to
type Deps struct {
	Readers      kafka.ReaderFactory
	Decoders     decoder.Factory
	Partitioners partitioner.Resolver
	Writers      writer.Provider
	Store        storage.Store
}

// Paths locate a run in the primary store
type Paths struct {
	// ExecutionDir receives the side files of every task in the run
	ExecutionDir string
	// DestRoot receives the promoted data files
	DestRoot string
}

// Result summarises a committed task
type Result struct {
	TaskID      int
	AttemptID   string
	Stats       pull.Stats
	Committed   commit.CommittedSet
	Checkpoints []commit.Checkpoint
}

// Task pulls one work unit into working files and commits them.
// A task runs once; it is not safe for concurrent use.
type Task struct {
	work   pull.WorkUnit
	deps   Deps
	layout commit.Layout
	config Config
	logger logger.Logger
}

func NewTask(work pull.WorkUnit, deps Deps, paths Paths, opts ...Option) *Task {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.AttemptID == "" {
		config.AttemptID = uuid.NewString()
	}

	return &Task{
		work: work,
		deps: deps,
		layout: commit.Layout{
			WorkDir:  WorkDir(paths.ExecutionDir, work.TaskID, config.AttemptID),
			TaskDir:  paths.ExecutionDir,
			DestRoot: paths.DestRoot,
			TaskID:   work.TaskID,
		},
		config: config,
		logger: config.Logger.With("task_id", work.TaskID, "attempt", config.AttemptID),
	}
}

// WorkDir is the private working area of one task attempt
func WorkDir(executionDir string, taskID int, attemptID string) string {
	return path.Join(executionDir, "_temporary", fmt.Sprintf("task%s_%s", commit.TaskSuffix(taskID), attemptID))
}

func (t *Task) Layout() commit.Layout {
	return t.layout
}

// Run pulls every request of the work unit and commits the output.
// On failure every promoted file is rolled back and the joined errors are returned.
func (t *Task) Run(ctx context.Context) (res Result, err error) {
	ctx, span := t.config.Telemetry.Tracer.Start(ctx, "task")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	res = Result{TaskID: t.work.TaskID, AttemptID: t.config.AttemptID}
	t.logger.Info("Starting task", "requests", len(t.work.Requests), "work_dir", t.layout.WorkDir)

	committer := commit.NewCommitter(
		t.deps.Store,
		t.layout,
		t.deps.Partitioners,
		append(
			[]commit.Option{
				commit.WithLogger(t.logger),
				commit.WithTelemetry(t.config.Telemetry),
				commit.WithClock(t.config.Now),
			},
			append(t.config.CommitOptions, commit.WithExtension(t.deps.Writers.Extension()))...,
		)...,
	)

	diags := newDiagnosticsFile(
		ctx,
		t.deps.Store,
		committer.WorkPath(commit.TaskFile(commit.ErrorsPrefix, t.work.TaskID)),
		t.config.Now,
		t.logger,
	)

	engine := pull.NewEngine(
		t.deps.Readers,
		t.deps.Decoders,
		t.work.Requests,
		append(
			[]pull.Option{
				pull.WithLogger(t.logger),
				pull.WithTelemetry(t.config.Telemetry),
				pull.WithClock(t.config.Now),
			},
			append(t.config.EngineOptions, pull.WithDiagnosticSink(diags))...,
		)...,
	)

	err = t.pull(ctx, engine, committer)
	res.Stats = engine.Stats()
	err = errors.Join(err, diags.Close())

	if err == nil {
		err = committer.Commit(ctx)
	}
	if err != nil {
		t.logger.Error("Task failed, rolling back", "error", err)
		if abortErr := committer.Abort(context.WithoutCancel(ctx)); abortErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", abortErr))
		}
		return res, err
	}

	res.Committed = committer.Committed()
	for _, c := range committer.Cursors().Cursors() {
		res.Checkpoints = append(res.Checkpoints, commit.CheckpointOf(c))
	}

	t.logger.Info(
		"Task committed",
		"records", res.Stats.RecordsRead,
		"bytes", humanize.Bytes(uint64(res.Stats.BytesRead)),
		"files", len(res.Committed.Files),
	)
	return res, nil
}

func (t *Task) pull(ctx context.Context, engine *pull.Engine, committer *commit.Committer) (err error) {
	writers := make(map[string]writer.RecordWriter)
	progress := NewProgressTicker(t.config.Progress...)

	defer func() {
		progress.Close()
		engine.Close(ctx)
		for name, w := range writers {
			if cerr := w.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("closing %s: %w", name, cerr))
			}
		}
	}()

	for {
		rec, err := engine.Next(ctx)
		if errors.Is(err, pull.ErrDone) {
			t.reportProgress(engine)
			return nil
		}
		if err != nil {
			return err
		}

		wf, err := committer.AddCounts(rec.Key)
		if err != nil {
			return fmt.Errorf("partitioning %s: %w", rec.Key, err)
		}

		name := wf.Name()
		w, ok := writers[name]
		if !ok {
			w, err = t.deps.Writers.NewWriter(ctx, t.deps.Store, committer.WorkPath(name))
			if err != nil {
				return fmt.Errorf("opening working file %s: %w", name, err)
			}
			writers[name] = w
		}

		if err := w.Write(rec.Value); err != nil {
			return fmt.Errorf("writing %s to %s: %w", rec.Key, name, err)
		}

		progress.RecordProcessed(1)
		select {
		case <-progress.C():
			t.reportProgress(engine)
		default:
		}
	}
}

func (t *Task) reportProgress(engine *pull.Engine) {
	stats := engine.Stats()
	t.logger.Info(
		"Task progress",
		"progress", fmt.Sprintf("%.1f%%", engine.Progress()*100),
		"records", stats.RecordsRead,
		"bytes", humanize.Bytes(uint64(stats.BytesRead)),
		"skipped", stats.SkippedSchemaNotFound+stats.SkippedOther,
	)
}
