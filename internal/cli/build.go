package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"git.home.luguber.info/inful/sitepress/internal/config"
	"git.home.luguber.info/inful/sitepress/internal/engine"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/history"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/metrics"
	"git.home.luguber.info/inful/sitepress/internal/monitor"
	"git.home.luguber.info/inful/sitepress/internal/notify"
	"git.home.luguber.info/inful/sitepress/internal/retry"
	"git.home.luguber.info/inful/sitepress/internal/serve"
	"git.home.luguber.info/inful/sitepress/internal/workspace"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Source             string   `short:"s" help:"Site source directory (default: ./site when it exists, otherwise the current directory)."`
	Output             string   `short:"o" help:"Output directory, or :temp: for a directory removed on exit (default: ./output)."`
	Testing            bool     `help:"Shorthand for --output :temp: --serve --monitor."`
	Monitor            bool     `short:"m" help:"Rebuild whenever watched files change."`
	Watch              []string `short:"w" help:"Add a path or glob pattern to the watch list." placeholder:"PATH"`
	DontWatch          []string `short:"W" help:"Never watch a path or glob pattern." placeholder:"PATH"`
	NoWatchDefaults    bool     `help:"Do not watch the source and configuration directories by default."`
	WatchPollFrequency string   `help:"Time between watch polls; plain numbers are seconds." placeholder:"SECONDS"`
	WatchSchedule      string   `help:"Cron expression forcing periodic rebuilds in monitor mode." placeholder:"CRON"`
	Serve              bool     `help:"Serve the output directory over HTTP."`
	ServeHost          string   `help:"Host to serve on (default: localhost)."`
	ServePort          int      `help:"Port to serve on (default: 9000)."`
	IndexPath          string   `help:"Build index path, relative to the output directory unless absolute."`
	NoIndex            bool     `help:"Neither read nor write the build index. Stale outputs are kept."`
	Encoding           string   `help:"Text encoding of written pages (default: utf-8)."`
	NoHistory          bool     `help:"Do not record builds in the history database."`
}

// apply overlays flags on cfg and validates the result.
func (b *BuildCmd) apply(cfg *config.Config) error {
	if b.Testing {
		cfg.Output = workspace.TempOutput
		b.Serve = true
		b.Monitor = true
	} else if b.Output != "" {
		cfg.Output = b.Output
	}
	if b.Source != "" {
		cfg.Source = b.Source
	}
	cfg.Watch.Paths = append(cfg.Watch.Paths, b.Watch...)
	cfg.Watch.Ignore = append(cfg.Watch.Ignore, b.DontWatch...)
	if b.NoWatchDefaults {
		off := false
		cfg.Watch.Defaults = &off
	}
	if b.WatchPollFrequency != "" {
		cfg.Watch.PollInterval = b.WatchPollFrequency
	}
	if b.WatchSchedule != "" {
		cfg.Watch.Schedule = b.WatchSchedule
	}
	if b.ServeHost != "" {
		cfg.Serve.Host = b.ServeHost
	}
	if b.ServePort != 0 {
		cfg.Serve.Port = b.ServePort
	}
	if b.IndexPath != "" {
		cfg.Index.Path = b.IndexPath
	}
	if b.NoIndex {
		cfg.Index.Disabled = true
	}
	if b.Encoding != "" {
		cfg.Encoding = b.Encoding
	}
	if b.NoHistory {
		cfg.History.Disabled = true
	}
	return config.Validate(cfg)
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	if g.Site == nil {
		return ferrors.InternalError("no site function registered").Build()
	}
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger := root.configureLogging(cfg)
	if err := b.apply(cfg); err != nil {
		return err
	}

	ws := workspace.ForOutput(cfg.Output, logger)
	if err := ws.Create(); err != nil {
		return err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn("Failed to clean up output directory", logfields.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &runner{cfg: cfg, g: g, log: logger, ws: ws}
	r.resolvePaths(root)

	if monitor.ChildMode() == monitor.ModeBuild || (!b.Monitor && !b.Serve) {
		return r.buildOnce(ctx, metrics.NoopRecorder{})
	}
	return r.runLong(ctx, b.Monitor, b.Serve)
}

// runner holds the resolved state of one build command.
type runner struct {
	cfg       *config.Config
	g         *Global
	log       *slog.Logger
	ws        *workspace.Manager
	source    string
	configDir string
}

func (r *runner) resolvePaths(root *CLI) {
	r.source = r.cfg.SourceDir()
	if abs, err := filepath.Abs(r.source); err == nil {
		r.source = abs
	}
	path, _ := root.configPath()
	if _, err := os.Stat(path); err == nil {
		if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
			r.configDir = abs
		}
	}
}

// buildOnce runs one build pass in this process and records its report.
func (r *runner) buildOnce(ctx context.Context, rec metrics.Recorder) error {
	q, err := r.g.Site(r.cfg, r.log)
	if err != nil {
		return err
	}
	if q.Len() == 0 {
		r.log.Warn("No units declared; nothing to build")
	}
	report, err := engine.Process(ctx, q, engine.Options{
		SourceDir: r.source,
		OutputDir: r.ws.Path(),
		IndexPath: r.cfg.Index.Path,
		NoIndex:   r.cfg.Index.Disabled,
		Encoding:  r.cfg.Encoding,
		Recorder:  rec,
		Logger:    r.log,
	})
	if report != nil {
		r.record(ctx, report)
	}
	return err
}

// record stores report in the history database and publishes it. Failures
// are logged; they never fail the build.
func (r *runner) record(ctx context.Context, report *engine.Report) {
	if !r.cfg.History.Disabled {
		if err := r.addHistory(ctx, report); err != nil {
			r.log.Warn("Failed to record build history", logfields.Error(err))
		}
	}
	if r.cfg.Notify.NATSURL == "" {
		return
	}
	policy := retry.NewPolicy(r.cfg.Notify.Backoff, 0, 0, r.cfg.Notify.Retries)
	pub, err := notify.New(r.cfg.Notify.NATSURL, r.cfg.Notify.Subject, policy, r.log)
	if err != nil {
		r.log.Warn("Failed to connect build notifier", logfields.Error(err))
		return
	}
	defer func() { _ = pub.Close() }()
	if err := pub.Publish(ctx, notify.NewEvent(report, r.ws.Path())); err != nil {
		r.log.Warn("Failed to publish build event", logfields.Error(err))
	}
}

func (r *runner) addHistory(ctx context.Context, report *engine.Report) error {
	store, err := history.Open(r.cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Add(ctx, history.FromReport(report)); err != nil {
		return err
	}
	if r.cfg.History.Keep > 0 {
		if _, err := store.Prune(ctx, r.cfg.History.Keep); err != nil {
			return err
		}
	}
	return nil
}

// runLong serves and/or monitors until ctx is canceled. Monitored builds run
// in child processes; the parent only counts their outcomes.
func (r *runner) runLong(ctx context.Context, watch, serveOutput bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rec := metrics.NewPrometheusRecorder(r.g.Registry)
	rebuild := r.childRebuild(rec)
	if watch {
		if err := rebuild(ctx); err != nil {
			r.log.Warn("Initial build failed; still watching", logfields.Error(err))
		}
	} else if err := r.buildOnce(ctx, rec); err != nil {
		return err
	}

	var served <-chan error
	if serveOutput {
		srv, closeHistory := r.server()
		defer closeHistory()
		served = r.background(ctx, cancel, srv.Run)
	} else {
		done := make(chan error)
		close(done)
		served = done
	}

	if !watch {
		return <-served
	}

	filter, err := r.filter()
	if err != nil {
		return err
	}
	m := &monitor.Monitor{
		Watch:    r.watchList(),
		Filter:   filter,
		Interval: r.cfg.PollInterval(),
		Notify:   r.cfg.WatchNotify(),
		Schedule: r.cfg.Watch.Schedule,
		Rebuild:  rebuild,
		Logger:   r.log,
		Recorder: rec,
	}
	monErr := m.Run(ctx)
	cancel()
	if err := <-served; err != nil && monErr == nil {
		return err
	}
	return monErr
}

// background runs serveFn in its own goroutine. A failure is logged at once
// and cancels ctx so a running monitor stops too.
func (r *runner) background(ctx context.Context, cancel context.CancelFunc, serveFn func(context.Context) error) <-chan error {
	served := make(chan error, 1)
	go func() {
		err := serveFn(ctx)
		if err != nil {
			r.log.Error("Server stopped", logfields.Error(err))
			cancel()
		}
		served <- err
	}()
	return served
}

// childRebuild returns a rebuild function running one build pass in a child
// process and recording its outcome.
func (r *runner) childRebuild(rec metrics.Recorder) monitor.RebuildFunc {
	child := monitor.ChildBuilder(r.log)
	child.Env = r.ws.ChildEnv()
	return func(ctx context.Context) error {
		start := time.Now()
		err := child.Build(ctx)
		rec.ObserveBuildDuration(time.Since(start))
		if err != nil {
			rec.IncBuildOutcome(string(engine.OutcomeFailed))
			return err
		}
		rec.IncBuildOutcome(string(engine.OutcomeSuccess))
		return nil
	}
}

func (r *runner) server() (*serve.Server, func()) {
	srv := serve.New(r.ws.Path(), r.cfg.Serve.Host, r.cfg.Serve.Port, r.log)
	if r.cfg.Serve.Metrics {
		srv.Registry = r.g.Registry
	}
	closer := func() {}
	if !r.cfg.History.Disabled {
		store, err := history.Open(r.cfg.HistoryPath())
		if err != nil {
			r.log.Warn("Build history unavailable to the server", logfields.Error(err))
		} else {
			srv.History = store
			closer = func() { _ = store.Close() }
		}
	}
	return srv, closer
}

// watchList returns the configured watch entries plus, unless disabled, the
// source directory, the configuration directory and the program's own paths.
func (r *runner) watchList() []string {
	watch := slices.Clone(r.cfg.Watch.Paths)
	if r.cfg.WatchDefaults() {
		watch = append(watch, r.source)
		if r.configDir != "" {
			watch = append(watch, r.configDir)
		}
		watch = append(watch, r.g.WatchPaths...)
	}
	return watch
}

// ignoreList always excludes what builds write: the output directory and
// the history database.
func (r *runner) ignoreList() []string {
	ignore := slices.Clone(r.cfg.Watch.Ignore)
	ignore = append(ignore, r.ws.Path())
	if !r.cfg.History.Disabled {
		db := r.cfg.HistoryPath()
		ignore = append(ignore, db, db+"-journal", db+"-wal", db+"-shm")
	}
	return ignore
}

func (r *runner) filter() (*monitor.Filter, error) {
	f := monitor.NewFilter(r.ignoreList())
	if !r.cfg.Watch.UseGitignore {
		return f, nil
	}
	root := r.configDir
	if root == "" {
		root = "."
	}
	return f.WithGitignore(root)
}
