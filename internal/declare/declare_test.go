package declare

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepress/internal/config"
	"git.home.luguber.info/inful/sitepress/internal/engine"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type site struct {
	src, out string
}

func newSite(t *testing.T, files map[string]string) site {
	t.Helper()
	s := site{src: t.TempDir(), out: filepath.Join(t.TempDir(), "out")}
	for name, body := range files {
		p := filepath.Join(s.src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return s
}

func (s site) build(t *testing.T, units []config.UnitConfig) (*engine.Report, error) {
	t.Helper()
	b, err := New(quiet())
	require.NoError(t, err)
	q, err := b.Queue(units)
	require.NoError(t, err)
	return engine.Process(context.Background(), q, engine.Options{SourceDir: s.src, OutputDir: s.out, Logger: quiet()})
}

func (s site) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.out, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

var catsFiles = map[string]string{
	"cats/tom.md":          "---\nname: Tom\n---\n# Tom\n\nFriends with [Jerry](jerry.md).\n",
	"cats/jerry.md":        "---\nname: Jerry\ntitle: Jerry the Mouse\n---\nNot a cat.\n",
	"cats/draft.md":        "---\nname: Draft\ndraft: true\n---\nwip\n",
	"templates/bio.html":   "<title>{{.Title}}</title><h2>{{.Meta.name}}</h2>{{.Content}}",
	"templates/index.html": "<ul>{{range sortBy \"name\" .Deps.cats}}<li><a href=\"{{rel $.Target .Target}}\">{{.Metadata.name}}</a></li>{{end}}</ul>",
	"css/site.css":         "body{}",
	"js/a.js":              "var a;\n",
	"js/b.js":              "var b;\n",
}

func catsUnits() []config.UnitConfig {
	return []config.UnitConfig{
		{Name: "css", Kind: config.UnitAsset, Foreach: config.Patterns{Items: []string{"css/*.css"}}},
		{Name: "js", Kind: config.UnitPipeline, Foreach: config.Patterns{Items: []string{"js/*.js"}}, Stages: []config.StageConfig{{Concat: "site.js"}, {Into: "js"}}},
		{Name: "cats", Kind: config.UnitPage, Foreach: config.Patterns{Items: []string{"cats/*.md"}}, Target: "{stem}.html", Layout: "templates/bio.html"},
		{Name: "index", Kind: config.UnitPage, Target: "index.html", Layout: "templates/index.html", DependsOn: []string{"cats"}},
	}
}

func TestBuilder_CatsSite(t *testing.T) {
	s := newSite(t, catsFiles)
	report, err := s.build(t, catsUnits())
	require.NoError(t, err)

	tom := s.read(t, "tom.html")
	assert.Contains(t, tom, "<title>Tom</title>")
	assert.Contains(t, tom, "<h2>Tom</h2>")
	assert.Contains(t, tom, `<a href="jerry.html">Jerry</a>`)

	jerry := s.read(t, "jerry.html")
	assert.Contains(t, jerry, "<title>Jerry the Mouse</title>")

	assert.NoFileExists(t, filepath.Join(s.out, "draft.html"))
	assert.Equal(t, 1, report.Skipped)

	assert.Equal(t,
		`<ul><li><a href="jerry.html">Jerry</a></li><li><a href="tom.html">Tom</a></li></ul>`,
		s.read(t, "index.html"))
	assert.Equal(t, "body{}", s.read(t, "css/site.css"))
	assert.Equal(t, "var a;\nvar b;\n", s.read(t, "js/site.js"))
}

func TestBuilder_RunStage(t *testing.T) {
	s := newSite(t, map[string]string{"txt/a.txt": "shout\n"})
	units := []config.UnitConfig{{
		Name: "upper", Kind: config.UnitPipeline, Foreach: config.Patterns{Items: []string{"txt/*.txt"}},
		Stages: []config.StageConfig{{Run: []string{"tr", "a-z", "A-Z"}, Name: "LOUD.txt"}},
	}}
	_, err := s.build(t, units)
	require.NoError(t, err)
	assert.Equal(t, "SHOUT\n", s.read(t, "LOUD.txt"))
}

func TestBuilder_PlainBodyAndMarkdownOverride(t *testing.T) {
	md := false
	s := newSite(t, map[string]string{"raw/a.md": "# kept *as is*\n", "raw/b.html": "<p>b</p>"})
	units := []config.UnitConfig{
		{Name: "raw", Foreach: config.Patterns{Items: []string{"raw/a.md"}}, Target: "a.txt", Markdown: &md},
		{Name: "html", Foreach: config.Patterns{Items: []string{"raw/b.html"}}, Target: "{name}"},
	}
	_, err := s.build(t, units)
	require.NoError(t, err)
	assert.Equal(t, "# kept *as is*\n", s.read(t, "a.txt"))
	assert.Equal(t, "<p>b</p>", s.read(t, "b.html"))
}

func TestBuilder_LayoutErrors(t *testing.T) {
	t.Run("parse", func(t *testing.T) {
		s := newSite(t, map[string]string{"p.md": "x", "bad.html": "{{.Title"})
		_, err := s.build(t, []config.UnitConfig{{Name: "p", Foreach: config.Patterns{Items: []string{"p.md"}}, Target: "p.html", Layout: "bad.html"}})
		require.Error(t, err)
		assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
	})
	t.Run("execute", func(t *testing.T) {
		s := newSite(t, map[string]string{"p.md": "x", "bad.html": "{{.Nope}}"})
		_, err := s.build(t, []config.UnitConfig{{Name: "p", Foreach: config.Patterns{Items: []string{"p.md"}}, Target: "p.html", Layout: "bad.html"}})
		require.Error(t, err)
		assert.Equal(t, ferrors.CategoryBuild, ferrors.GetCategory(err))
	})
	t.Run("missing", func(t *testing.T) {
		s := newSite(t, map[string]string{"p.md": "x"})
		_, err := s.build(t, []config.UnitConfig{{Name: "p", Foreach: config.Patterns{Items: []string{"p.md"}}, Target: "p.html", Layout: "gone.html"}})
		require.Error(t, err)
		assert.Equal(t, ferrors.CategoryFileSystem, ferrors.GetCategory(err))
	})
}

func TestBuilder_LayoutCacheFollowsContent(t *testing.T) {
	s := newSite(t, map[string]string{"p.md": "x", "l.html": "one"})
	b, err := New(quiet())
	require.NoError(t, err)
	units := []config.UnitConfig{{Name: "p", Foreach: config.Patterns{Items: []string{"p.md"}}, Target: "p.html", Layout: "l.html"}}

	run := func() {
		q, err := b.Queue(units)
		require.NoError(t, err)
		_, err = engine.Process(context.Background(), q, engine.Options{SourceDir: s.src, OutputDir: s.out, Logger: quiet()})
		require.NoError(t, err)
	}
	run()
	assert.Equal(t, "one", s.read(t, "p.html"))
	assert.Equal(t, 1, b.layouts.Len())

	require.NoError(t, os.WriteFile(filepath.Join(s.src, "l.html"), []byte("two"), 0o644))
	run()
	assert.Equal(t, "two", s.read(t, "p.html"))
	assert.Equal(t, 2, b.layouts.Len())
}

func TestUnit_UnknownKind(t *testing.T) {
	b, err := New(quiet())
	require.NoError(t, err)
	_, err = b.Unit(config.UnitConfig{Name: "x", Kind: "widget"})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestQueue_DuplicateNames(t *testing.T) {
	b, err := New(quiet())
	require.NoError(t, err)
	_, err = b.Queue([]config.UnitConfig{
		{Name: "a", Kind: config.UnitAsset, Foreach: config.Patterns{Items: []string{"x"}}},
		{Name: "a", Kind: config.UnitAsset, Foreach: config.Patterns{Items: []string{"y"}}},
	})
	require.Error(t, err)
}

func TestRel(t *testing.T) {
	cases := []struct{ from, to, want string }{
		{"index.html", "tom.html", "tom.html"},
		{"cats/tom.html", "index.html", "../index.html"},
		{"a/b.html", "a/c/d.html", "c/d.html"},
		{"a/b/c.html", "x/y.html", "../../x/y.html"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rel(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSortBy(t *testing.T) {
	arts := []engine.Artifact{
		{Target: "b.html", Metadata: map[string]any{"name": "Tom"}},
		{Target: "a.html", Metadata: map[string]any{"name": "Jerry"}},
		{Target: "c.html"},
	}
	got := sortBy("name", arts)
	// Missing keys print as "<nil>", which sorts before letters.
	assert.Equal(t, []string{"c.html", "a.html", "b.html"}, []string{got[0].Target, got[1].Target, got[2].Target})
	assert.Equal(t, "b.html", arts[0].Target, "input is not reordered")
}
