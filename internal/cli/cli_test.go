package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepress/internal/config"
	"git.home.luguber.info/inful/sitepress/internal/engine"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/task"
	"git.home.luguber.info/inful/sitepress/internal/workspace"
)

func helloSite(_ *config.Config, _ *slog.Logger) (*task.Queue[engine.Unit], error) {
	q := task.NewQueue[engine.Unit]()
	err := q.Enqueue(&engine.PageUnit{
		Name:    "hello",
		Foreach: pathresolve.Pattern("*.txt"),
		Target:  "{stem}.html",
		Func: func(_ context.Context, _ *engine.Context, item *engine.Item) (*engine.Result, error) {
			return engine.Text(fmt.Sprintf("<p>%v</p>", item.Fields["stem"])), nil
		},
	})
	return q, err
}

func run(t *testing.T, site SiteFunc, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(args, Options{Site: site, Stdout: &stdout, Stderr: &stderr})
	return code, stdout.String(), stderr.String()
}

func siteDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "site"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "site", "tom.txt"), []byte("Tom"), 0o600))
	t.Chdir(dir)
	return dir
}

func TestExecute_BuildIsTheDefaultCommand(t *testing.T) {
	dir := siteDir(t)

	code, _, stderr := run(t, helloSite)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(dir, "output", "tom.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>tom</p>", string(data))
}

func TestExecute_BuildFlagsAndHistory(t *testing.T) {
	dir := siteDir(t)

	code, _, stderr := run(t, helloSite, "build", "-s", "site", "-o", "public")
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(dir, "public", "tom.html"))
	assert.FileExists(t, filepath.Join(dir, ".sitepress_history.db"))

	code, stdout, stderr := run(t, helloSite, "history", "-n", "5")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "BUILD")
	assert.Contains(t, stdout, "success")
}

func TestExecute_NoHistory(t *testing.T) {
	dir := siteDir(t)

	code, _, stderr := run(t, helloSite, "--no-history")
	require.Equal(t, 0, code, stderr)
	assert.NoFileExists(t, filepath.Join(dir, ".sitepress_history.db"))
}

func TestExecute_HistoryEmpty(t *testing.T) {
	siteDir(t)

	code, stdout, _ := run(t, helloSite, "history")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "No builds recorded")
}

func TestExecute_SiteErrorSetsExitCode(t *testing.T) {
	siteDir(t)
	failing := func(*config.Config, *slog.Logger) (*task.Queue[engine.Unit], error) {
		q := task.NewQueue[engine.Unit]()
		err := q.Enqueue(&engine.PageUnit{Name: "index", Deps: []string{"missing"}, Target: "index.html",
			Func: func(context.Context, *engine.Context, *engine.Item) (*engine.Result, error) { return nil, nil }})
		return q, err
	}

	code, _, _ := run(t, failing)
	assert.NotEqual(t, 0, code)
}

func TestExecute_UnitErrorIsABuildFailure(t *testing.T) {
	siteDir(t)
	failing := func(*config.Config, *slog.Logger) (*task.Queue[engine.Unit], error) {
		q := task.NewQueue[engine.Unit]()
		err := q.Enqueue(&engine.PageUnit{Name: "index", Target: "index.html",
			Func: func(context.Context, *engine.Context, *engine.Item) (*engine.Result, error) {
				return nil, errors.New("boom")
			}})
		return q, err
	}

	code, _, _ := run(t, failing)
	assert.Equal(t, 11, code)
}

func TestExecute_UnknownFlag(t *testing.T) {
	siteDir(t)

	code, _, stderr := run(t, helloSite, "--no-such-flag")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "no-such-flag")
}

func TestExecute_MissingExplicitConfig(t *testing.T) {
	siteDir(t)

	code, _, _ := run(t, helloSite, "-c", "absent.yaml")
	assert.Equal(t, 3, code)
}

func TestExecute_InvalidFlagValueIsAConfigError(t *testing.T) {
	siteDir(t)

	code, _, _ := run(t, helloSite, "--encoding", "no-such-charset")
	assert.Equal(t, 7, code)
}

func TestExecute_Init(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	code, stdout, stderr := run(t, helloSite, "init")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, config.DefaultFile)

	cfg, err := config.Load(filepath.Join(dir, config.DefaultFile))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Units)

	code, _, _ = run(t, helloSite, "init")
	assert.Equal(t, 7, code)

	code, _, _ = run(t, helloSite, "init", "--force")
	assert.Equal(t, 0, code)
}

func TestExecute_NoSiteFunction(t *testing.T) {
	siteDir(t)

	code, _, _ := run(t, nil)
	assert.Equal(t, 10, code)
}

func TestBuildCmd_Apply(t *testing.T) {
	b := &BuildCmd{
		Source:             "src",
		Output:             "public",
		Watch:              []string{"templates"},
		DontWatch:          []string{"*.tmp"},
		NoWatchDefaults:    true,
		WatchPollFrequency: "0.5",
		WatchSchedule:      "@hourly",
		ServeHost:          "0.0.0.0",
		ServePort:          8080,
		IndexPath:          "idx.txt",
		NoIndex:            true,
		Encoding:           "latin1",
		NoHistory:          true,
	}
	cfg := config.Default()
	require.NoError(t, b.apply(cfg))

	assert.Equal(t, "src", cfg.Source)
	assert.Equal(t, "public", cfg.Output)
	assert.Equal(t, []string{"templates"}, cfg.Watch.Paths)
	assert.Equal(t, []string{"*.tmp"}, cfg.Watch.Ignore)
	assert.False(t, cfg.WatchDefaults())
	assert.Equal(t, "@hourly", cfg.Watch.Schedule)
	assert.Equal(t, "0.0.0.0", cfg.Serve.Host)
	assert.Equal(t, 8080, cfg.Serve.Port)
	assert.Equal(t, "idx.txt", cfg.Index.Path)
	assert.True(t, cfg.Index.Disabled)
	assert.Equal(t, "latin1", cfg.Encoding)
	assert.True(t, cfg.History.Disabled)
}

func TestBuildCmd_ApplyTesting(t *testing.T) {
	b := &BuildCmd{Testing: true, Output: "public"}
	cfg := config.Default()
	require.NoError(t, b.apply(cfg))

	assert.Equal(t, workspace.TempOutput, cfg.Output)
	assert.True(t, b.Serve)
	assert.True(t, b.Monitor)
}

func TestRunner_WatchAndIgnoreLists(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Source = filepath.Join(dir, "site")
	cfg.Watch.Paths = []string{"extra"}
	cfg.Watch.Ignore = []string{"*.tmp"}
	ws := workspace.ForOutput(filepath.Join(dir, "output"), nil)
	r := &runner{
		cfg:       cfg,
		g:         &Global{WatchPaths: []string{"/prog"}},
		ws:        ws,
		source:    cfg.Source,
		configDir: dir,
	}

	assert.Equal(t, []string{"extra", cfg.Source, dir, "/prog"}, r.watchList())
	ignore := r.ignoreList()
	assert.Contains(t, ignore, "*.tmp")
	assert.Contains(t, ignore, ws.Path())
	assert.Contains(t, ignore, filepath.Join(dir, ".sitepress_history.db"))

	off := false
	cfg.Watch.Defaults = &off
	cfg.History.Disabled = true
	assert.Equal(t, []string{"extra"}, r.watchList())
	assert.Equal(t, []string{"*.tmp", ws.Path()}, r.ignoreList())
}

func TestRunner_ServerFailureCancelsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	r := &runner{log: slog.New(slog.NewTextHandler(&buf, nil))}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	bind := errors.New("address already in use")
	served := r.background(ctx, cancel, func(context.Context) error { return bind })

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server failure did not cancel the context")
	}
	require.ErrorIs(t, <-served, bind)
	assert.Contains(t, buf.String(), "Server stopped")
	assert.Contains(t, buf.String(), "address already in use")
}

func TestRunner_CleanServerStopKeepsContext(t *testing.T) {
	r := &runner{log: slog.New(slog.DiscardHandler)}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	served := r.background(ctx, cancel, func(context.Context) error { return nil })
	require.NoError(t, <-served)
	assert.NoError(t, ctx.Err())
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, levelFor(config.LogLevelDebug))
	assert.Equal(t, slog.LevelInfo, levelFor(config.LogLevelInfo))
	assert.Equal(t, slog.LevelWarn, levelFor(config.LogLevelWarn))
	assert.Equal(t, slog.LevelError, levelFor(config.LogLevelError))
}

func TestConfigureLogging_JSON(t *testing.T) {
	var buf bytes.Buffer
	root := &CLI{stderr: &buf}
	cfg := config.Default()
	cfg.Logging.Format = config.LogFormatJSON

	logger := root.configureLogging(cfg)
	logger.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
