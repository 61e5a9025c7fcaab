package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/metrics"
	"git.home.luguber.info/inful/sitepress/internal/output"
	"git.home.luguber.info/inful/sitepress/internal/task"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// Options configures one build pass.
type Options struct {
	SourceDir string
	OutputDir string
	// IndexPath is relative to OutputDir unless absolute. Empty selects
	// output.DefaultIndexName.
	IndexPath string
	// NoIndex disables reading and writing the index, and so stale cleanup.
	NoIndex bool
	// Encoding is the output text encoding label; empty means UTF-8.
	Encoding string
	BuildID  string
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

type build struct {
	writer    *output.Writer
	indexPath string
	owners    map[string]string
	written   []string
	artifacts map[string][]Artifact
	skipped   int
}

// Process runs every unit of q in dependency order and reconciles the output
// directory with the previous build. The queue is sorted before anything
// runs, so a cyclic or dangling dependency fails without side effects.
func Process(ctx context.Context, q *task.Queue[Unit], opts Options) (*Report, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.BuildID == "" {
		opts.BuildID = uuid.NewString()
	}
	log := opts.Logger.With(logfields.BuildID(opts.BuildID))
	report := newReport(opts.BuildID)

	err := run(ctx, q, opts, log, report)
	report.finish(err)
	opts.Recorder.ObserveBuildDuration(report.Duration())
	opts.Recorder.IncBuildOutcome(string(report.Outcome))
	opts.Recorder.AddArtifactsWritten(len(report.Written))
	opts.Recorder.AddStaleRemoved(len(report.Removed))
	if err != nil {
		return report, err
	}
	log.Info("Build complete",
		logfields.Count(len(report.Written)),
		slog.Int("removed", len(report.Removed)),
		slog.Int("skipped", report.Skipped),
		logfields.Duration(report.Duration()))
	return report, nil
}

func run(ctx context.Context, q *task.Queue[Unit], opts Options, log *slog.Logger, report *Report) error {
	units, err := q.Sorted()
	if err != nil {
		return err
	}
	report.Tasks = len(units)

	sourceDir, outputDir, err := prepareDirs(opts.SourceDir, opts.OutputDir)
	if err != nil {
		return err
	}
	writer, err := output.NewWriter(outputDir, opts.Encoding)
	if err != nil {
		return err
	}

	b := &build{
		writer:    writer,
		owners:    make(map[string]string),
		artifacts: make(map[string][]Artifact),
	}
	var previous []string
	if !opts.NoIndex {
		b.indexPath = output.IndexPath(outputDir, opts.IndexPath)
		if previous, err = output.ReadIndex(b.indexPath); err != nil {
			return err
		}
	}

	source := os.DirFS(sourceDir)
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		bc := &Context{
			BuildID:   opts.BuildID,
			SourceDir: sourceDir,
			OutputDir: outputDir,
			Source:    source,
			Logger:    log.With(logfields.Task(u.ID())),
			task:      u.ID(),
			deps:      sets.New(u.DependsOn()...),
			build:     b,
		}
		start := time.Now()
		bc.Logger.Debug("Running task", logfields.UnitKind(u.Kind()))
		err := u.Run(ctx, bc)
		opts.Recorder.ObserveTaskDuration(u.ID(), time.Since(start))
		if err != nil {
			opts.Recorder.IncTaskResult(u.ID(), metrics.ResultFailed)
			report.Written = b.written
			report.Skipped = b.skipped
			preserveIndex(b, previous, log)
			return annotate(err, u.ID(), "")
		}
		opts.Recorder.IncTaskResult(u.ID(), metrics.ResultSuccess)
		report.Artifacts[u.ID()] = len(b.artifacts[u.ID()])
	}
	report.Written = b.written
	report.Skipped = b.skipped

	if b.indexPath == "" {
		return nil
	}
	removed, err := output.Reconcile(outputDir, previous, b.written)
	report.Removed = removed
	for _, t := range removed {
		log.Info("Removed stale output", logfields.Target(t))
	}
	if err != nil {
		return err
	}
	return output.WriteIndex(b.indexPath, b.written)
}

// preserveIndex records the union of the previous index and everything
// written so far, so files from a failed build are still cleaned up later.
func preserveIndex(b *build, previous []string, log *slog.Logger) {
	if b.indexPath == "" || len(b.written) == 0 {
		return
	}
	seen := sets.New(b.written...)
	merged := append([]string(nil), b.written...)
	for _, t := range previous {
		if !seen.Has(t) {
			seen.Add(t)
			merged = append(merged, t)
		}
	}
	if err := output.WriteIndex(b.indexPath, merged); err != nil {
		log.Warn("Failed to preserve build index", logfields.Error(err))
	}
}

func prepareDirs(sourceDir, outputDir string) (string, string, error) {
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve source directory").Build()
	}
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", ferrors.NotFoundError("source directory does not exist").
				WithContext("path", src).
				Build()
		}
		return "", "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat source directory").
			WithContext("path", src).
			Build()
	}
	if !info.IsDir() {
		return "", "", ferrors.ConfigError("source is not a directory").WithContext("path", src).Build()
	}

	if outputDir == "" {
		return "", "", ferrors.ConfigError("output directory is required").Build()
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return "", "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve output directory").Build()
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output directory").
			WithContext("path", out).
			Build()
	}
	return src, out, nil
}
