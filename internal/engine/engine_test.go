package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/metrics"
	"git.home.luguber.info/inful/sitepress/internal/output"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/pipe"
	"git.home.luguber.info/inful/sitepress/internal/task"
)

type site struct {
	src string
	out string
}

func newSite(t *testing.T, files map[string]string) site {
	t.Helper()
	s := site{src: t.TempDir(), out: filepath.Join(t.TempDir(), "out")}
	for rel, content := range files {
		s.put(t, rel, content)
	}
	return s
}

func (s site) put(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(s.src, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (s site) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.out, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (s site) process(t *testing.T, units ...Unit) (*Report, error) {
	t.Helper()
	q := task.NewQueue[Unit]()
	for _, u := range units {
		require.NoError(t, q.Enqueue(u))
	}
	return Process(context.Background(), q, Options{SourceDir: s.src, OutputDir: s.out})
}

func bioUnit() *PageUnit {
	return &PageUnit{
		Name:      "bio",
		Foreach:   pathresolve.Pattern("cats/*.md"),
		Target:    "cats/{stem}.html",
		OpenFiles: true,
		Func: func(_ context.Context, _ *Context, item *Item) (*Result, error) {
			body, err := item.Doc.ReadBody()
			if err != nil {
				return nil, err
			}
			name := item.Doc.FrontMatter["name"].(string)
			return &Result{
				Content:  []byte(fmt.Sprintf("<h1>%s</h1>%s", name, strings.TrimSpace(string(body)))),
				Metadata: map[string]any{"name": name, "target": item.Target},
			}, nil
		},
	}
}

func catFiles() map[string]string {
	return map[string]string{
		"cats/tom.md":   "---\nname: Tom\n...\nGrey.\n",
		"cats/felix.md": "---\nname: Felix\n---\nBlack.\n",
	}
}

func TestProcess_SingleShotPage(t *testing.T) {
	s := newSite(t, nil)
	report, err := s.process(t, &PageUnit{
		Name:   "home",
		Target: "index.html",
		Func: func(context.Context, *Context, *Item) (*Result, error) {
			return Text("<p>home</p>"), nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, []string{"index.html"}, report.Written)
	assert.Equal(t, "<p>home</p>", s.read(t, "index.html"))
	assert.Equal(t, "index.html\n", s.read(t, output.DefaultIndexName))
}

func TestProcess_FanOutWithFrontMatter(t *testing.T) {
	s := newSite(t, catFiles())
	report, err := s.process(t, bioUnit())
	require.NoError(t, err)

	assert.Equal(t, []string{"cats/felix.html", "cats/tom.html"}, report.Written)
	assert.Equal(t, "<h1>Tom</h1>Grey.", s.read(t, "cats/tom.html"))
	assert.Equal(t, "<h1>Felix</h1>Black.", s.read(t, "cats/felix.html"))
}

func TestProcess_DependentReadsArtifacts(t *testing.T) {
	s := newSite(t, catFiles())
	main := &PageUnit{
		Name:   "main",
		Target: "index.html",
		Deps:   []string{"bio"},
		Func: func(_ context.Context, bc *Context, _ *Item) (*Result, error) {
			arts, err := bc.Artifacts("bio")
			if err != nil {
				return nil, err
			}
			var names []string
			for _, a := range arts {
				names = append(names, a.Metadata["name"].(string))
			}
			sort.Strings(names)
			return Text(strings.Join(names, ",")), nil
		},
	}
	// Registered before its dependency on purpose.
	report, err := s.process(t, main, bioUnit())
	require.NoError(t, err)
	assert.Equal(t, "Felix,Tom", s.read(t, "index.html"))
	assert.Equal(t, "index.html", report.Written[len(report.Written)-1])
	assert.Equal(t, 2, report.Artifacts["bio"])
}

func TestProcess_ArtifactsRequireDeclaredDependency(t *testing.T) {
	s := newSite(t, catFiles())
	sneaky := &PageUnit{
		Name:   "sneaky",
		Target: "x.html",
		Func: func(_ context.Context, bc *Context, _ *Item) (*Result, error) {
			_, err := bc.Artifacts("bio")
			return nil, err
		},
	}
	_, err := s.process(t, bioUnit(), sneaky)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestProcess_IdempotentRebuild(t *testing.T) {
	s := newSite(t, catFiles())
	_, err := s.process(t, bioUnit())
	require.NoError(t, err)
	first := s.read(t, "cats/tom.html")
	firstIndex := s.read(t, output.DefaultIndexName)

	report, err := s.process(t, bioUnit())
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
	assert.Equal(t, first, s.read(t, "cats/tom.html"))
	assert.Equal(t, firstIndex, s.read(t, output.DefaultIndexName))
}

func TestProcess_StaleCleanup(t *testing.T) {
	s := newSite(t, map[string]string{"a.md": "a", "b.md": "b"})
	unit := func() Unit {
		return &PageUnit{
			Name:    "pages",
			Foreach: pathresolve.Pattern("*.md"),
			Target:  "{stem}.html",
			Func: func(_ context.Context, bc *Context, item *Item) (*Result, error) {
				data, err := bc.ReadFile(item.Path)
				if err != nil {
					return nil, err
				}
				return &Result{Content: data}, nil
			},
		}
	}

	_, err := s.process(t, unit())
	require.NoError(t, err)
	assert.Equal(t, "a.html\nb.html\n", s.read(t, output.DefaultIndexName))

	require.NoError(t, os.Remove(filepath.Join(s.src, "b.md")))
	report, err := s.process(t, unit())
	require.NoError(t, err)
	assert.Equal(t, []string{"b.html"}, report.Removed)
	assert.NoFileExists(t, filepath.Join(s.out, "b.html"))
	assert.FileExists(t, filepath.Join(s.out, "a.html"))
	assert.Equal(t, "a.html\n", s.read(t, output.DefaultIndexName))
}

func TestProcess_EscapingTargetWritesNothing(t *testing.T) {
	s := newSite(t, map[string]string{"a.md": "a"})
	_, err := s.process(t, &PageUnit{
		Name:    "evil",
		Foreach: pathresolve.Pattern("a.md"),
		Target:  "../../{stem}.html",
		Func: func(context.Context, *Context, *Item) (*Result, error) {
			return Text("pwned"), nil
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pathresolve.ErrNotContained))
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))

	entries, _ := os.ReadDir(s.out)
	assert.Empty(t, entries)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(filepath.Dir(s.out)), "a.html"))
}

func TestProcess_CycleFailsBeforeRunning(t *testing.T) {
	s := newSite(t, nil)
	ran := false
	fn := func(context.Context, *Context, *Item) (*Result, error) {
		ran = true
		return Text("x"), nil
	}
	_, err := s.process(t,
		&PageUnit{Name: "1", Target: "1.html", Deps: []string{"2"}, Func: fn},
		&PageUnit{Name: "2", Target: "2.html", Deps: []string{"1"}, Func: fn},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrCyclicDependency))
	assert.False(t, ran)
	assert.NoDirExists(t, s.out)
}

func TestProcess_NilResultIsSkipped(t *testing.T) {
	s := newSite(t, nil)
	report, err := s.process(t, &PageUnit{
		Name:   "draft",
		Target: "draft.html",
		Func:   func(context.Context, *Context, *Item) (*Result, error) { return nil, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Written)
	assert.NoFileExists(t, filepath.Join(s.out, "draft.html"))
}

func TestProcess_ExplicitTargetOverridesTemplate(t *testing.T) {
	s := newSite(t, map[string]string{"posts/p.md": "---\nslug: hello\n---\nhi"})
	_, err := s.process(t, &PageUnit{
		Name:      "posts",
		Foreach:   pathresolve.Pattern("posts/*.md"),
		OpenFiles: true,
		Func: func(_ context.Context, _ *Context, item *Item) (*Result, error) {
			assert.Equal(t, "posts/p.md", item.Target)
			return &Result{Target: item.Doc.FrontMatter["slug"].(string) + "/index.html", Content: []byte("hi")}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", s.read(t, "hello/index.html"))
}

func TestProcess_MissingTarget(t *testing.T) {
	s := newSite(t, nil)
	_, err := s.process(t, &PageUnit{
		Name: "anon",
		Func: func(context.Context, *Context, *Item) (*Result, error) { return Text("x"), nil },
	})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestProcess_UnknownTemplateField(t *testing.T) {
	s := newSite(t, map[string]string{"a.md": "a"})
	_, err := s.process(t, &PageUnit{
		Name:    "pages",
		Foreach: pathresolve.Pattern("a.md"),
		Target:  "{meta.slug}.html",
		Func:    func(context.Context, *Context, *Item) (*Result, error) { return Text("x"), nil },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pathresolve.ErrUnknownField))
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	item, _ := ce.Context().GetString("item")
	assert.Equal(t, "a.md", item)
}

func TestProcess_DuplicateTargets(t *testing.T) {
	s := newSite(t, nil)
	fn := func(context.Context, *Context, *Item) (*Result, error) { return Text("x"), nil }
	_, err := s.process(t,
		&PageUnit{Name: "one", Target: "same.html", Func: fn},
		&PageUnit{Name: "two", Target: "same.html", Func: fn},
	)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
	assert.Contains(t, err.Error(), `"one"`)
}

func TestProcess_NoMatchIsNotFound(t *testing.T) {
	s := newSite(t, nil)
	_, err := s.process(t, &AssetUnit{Name: "css", Foreach: pathresolve.Pattern("css/*.css")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pathresolve.ErrNotFound))
}

func TestProcess_PatternListMayMatchNothing(t *testing.T) {
	s := newSite(t, nil)
	rep, err := s.process(t,
		&AssetUnit{Name: "css", Foreach: pathresolve.PatternList("css/*.css")},
		&PipelineUnit{Name: "js", Foreach: pathresolve.PatternList("js/*.js", "vendor/*.js")},
	)
	require.NoError(t, err)
	assert.Empty(t, rep.Written)
}

func TestProcess_BadFrontMatterAbortsBuild(t *testing.T) {
	s := newSite(t, map[string]string{"a.md": "---\nkey: v\nno end"})
	u := bioUnit()
	u.Foreach = pathresolve.Pattern("*.md")
	_, err := s.process(t, u)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryDocument, ferrors.GetCategory(err))
}

func TestProcess_AssetCopiesVerbatim(t *testing.T) {
	s := newSite(t, map[string]string{
		"static/logo.bin": "\x00\x01\xff",
		"static/site.css": "body{}",
	})
	report, err := s.process(t,
		&AssetUnit{Name: "static", Foreach: pathresolve.Pattern("static/*")},
		&AssetUnit{Name: "favicon", Foreach: pathresolve.Pattern("static/logo.bin"), Target: "favicon.ico"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"static/logo.bin", "static/site.css", "favicon.ico"}, report.Written)
	assert.Equal(t, "\x00\x01\xff", s.read(t, "static/logo.bin"))
	assert.Equal(t, "\x00\x01\xff", s.read(t, "favicon.ico"))
}

func TestProcess_PipelineConcat(t *testing.T) {
	s := newSite(t, map[string]string{
		"js/a.js": "a();",
		"js/b.js": "b();",
		"md/x.md": "---\ntitle: x\n---\nbody",
	})
	report, err := s.process(t,
		&PipelineUnit{
			Name:    "js",
			Foreach: pathresolve.Pattern("js/*.js"),
			Func: func(ctx context.Context, _ *Context, src *pipe.Source) (*pipe.Source, error) {
				return src.Pipe(ctx, pipe.Concat("js/all.js"))
			},
		},
		&PipelineUnit{Name: "md", Foreach: pathresolve.Pattern("md/*.md"), OpenFiles: true},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"js/all.js", "md/x.md"}, report.Written)
	assert.Equal(t, "a();b();", s.read(t, "js/all.js"))
	assert.Equal(t, "body", s.read(t, "md/x.md"))
}

func TestProcess_NoIndex(t *testing.T) {
	s := newSite(t, nil)
	q := task.NewQueue[Unit]()
	require.NoError(t, q.Enqueue(&PageUnit{
		Name: "home", Target: "index.html",
		Func: func(context.Context, *Context, *Item) (*Result, error) { return Text("x"), nil },
	}))
	_, err := Process(context.Background(), q, Options{SourceDir: s.src, OutputDir: s.out, NoIndex: true})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(s.out, output.DefaultIndexName))
}

func TestProcess_TargetCollidingWithIndex(t *testing.T) {
	s := newSite(t, nil)
	_, err := s.process(t, &PageUnit{
		Name: "sneaky", Target: output.DefaultIndexName,
		Func: func(context.Context, *Context, *Item) (*Result, error) { return Text("x"), nil },
	})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestProcess_FailedBuildKeepsIndexKnowledge(t *testing.T) {
	s := newSite(t, map[string]string{"a.md": "a"})
	ok := &PageUnit{
		Name: "ok", Foreach: pathresolve.Pattern("a.md"), Target: "a.html",
		Func: func(context.Context, *Context, *Item) (*Result, error) { return Text("a"), nil },
	}
	boom := &PageUnit{
		Name: "boom", Target: "b.html",
		Func: func(context.Context, *Context, *Item) (*Result, error) { return nil, errors.New("boom") },
	}
	_, err := s.process(t, ok, boom)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryBuild, ferrors.GetCategory(err))
	assert.Equal(t, "a.html\n", s.read(t, output.DefaultIndexName))
}

func TestProcess_MissingSourceDir(t *testing.T) {
	q := task.NewQueue[Unit]()
	_, err := Process(context.Background(), q, Options{SourceDir: filepath.Join(t.TempDir(), "nope"), OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryNotFound, ferrors.GetCategory(err))
}

type countingRecorder struct {
	metrics.NoopRecorder
	results  map[string]metrics.ResultLabel
	outcome  string
	written  int
	duration time.Duration
}

func (c *countingRecorder) IncTaskResult(id string, r metrics.ResultLabel) { c.results[id] = r }
func (c *countingRecorder) IncBuildOutcome(o string)                       { c.outcome = o }
func (c *countingRecorder) AddArtifactsWritten(n int)                      { c.written += n }
func (c *countingRecorder) ObserveBuildDuration(d time.Duration)           { c.duration = d }

func TestProcess_RecordsMetrics(t *testing.T) {
	s := newSite(t, catFiles())
	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}
	q := task.NewQueue[Unit]()
	require.NoError(t, q.Enqueue(bioUnit()))
	report, err := Process(context.Background(), q, Options{SourceDir: s.src, OutputDir: s.out, Recorder: rec, BuildID: "b-1"})
	require.NoError(t, err)
	assert.Equal(t, "b-1", report.BuildID)
	assert.Equal(t, metrics.ResultSuccess, rec.results["bio"])
	assert.Equal(t, "success", rec.outcome)
	assert.Equal(t, 2, rec.written)
	assert.Contains(t, report.Summary(), "written=2")
}

func TestProcess_CanceledContext(t *testing.T) {
	s := newSite(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q := task.NewQueue[Unit]()
	require.NoError(t, q.Enqueue(&PageUnit{
		Name: "home", Target: "index.html",
		Func: func(context.Context, *Context, *Item) (*Result, error) { return Text("x"), nil },
	}))
	_, err := Process(ctx, q, Options{SourceDir: s.src, OutputDir: s.out})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestContext_CommandRunsInSourceDir(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	s := newSite(t, map[string]string{"VERSION": "1.2.3"})
	_, err := s.process(t, &PipelineUnit{
		Name:    "version",
		Foreach: pathresolve.Pattern("VERSION"),
		Func: func(ctx context.Context, bc *Context, src *pipe.Source) (*pipe.Source, error) {
			return src.Pipe(ctx, bc.Command("version.txt", "sh", "-c", "cat VERSION; cat"))
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1.2.31.2.3", s.read(t, "version.txt"))
}
