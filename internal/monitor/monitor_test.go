package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

type fataler interface {
	Helper()
	Fatal(args ...any)
}

func write(t fataler, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func token(t *testing.T, watch, ignore []string) Token {
	t.Helper()
	tok, err := StateToken(watch, ignore)
	require.NoError(t, err)
	return tok
}

func TestStateToken_StableOverUnchangedTree(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "a")
	write(t, root, "sub/b.md", "b")

	first := token(t, []string{root}, nil)
	assert.Equal(t, first, token(t, []string{root}, nil))
	assert.Len(t, first.String(), 64)
}

func TestStateToken_DetectsChanges(t *testing.T) {
	root := t.TempDir()
	a := write(t, root, "a.md", "a")
	write(t, root, "sub/b.md", "b")
	base := token(t, []string{root}, nil)

	t.Run("touch", func(t *testing.T) {
		later := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(a, later, later))
		assert.NotEqual(t, base, token(t, []string{root}, nil))
	})

	t.Run("add file", func(t *testing.T) {
		before := token(t, []string{root}, nil)
		write(t, root, "new.md", "n")
		assert.NotEqual(t, before, token(t, []string{root}, nil))
	})

	t.Run("rename directory", func(t *testing.T) {
		before := token(t, []string{root}, nil)
		require.NoError(t, os.Rename(filepath.Join(root, "sub"), filepath.Join(root, "moved")))
		assert.NotEqual(t, before, token(t, []string{root}, nil))
	})

	t.Run("empty directory", func(t *testing.T) {
		before := token(t, []string{root}, nil)
		require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))
		assert.NotEqual(t, before, token(t, []string{root}, nil))
	})
}

func TestStateToken_SkipsHiddenAndIgnored(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "a")
	out := filepath.Join(root, "out")
	base := token(t, []string{root}, []string{out})

	write(t, root, ".git/HEAD", "ref")
	write(t, root, "out/index.html", "x")
	assert.Equal(t, base, token(t, []string{root}, []string{out}))

	write(t, root, "b.md", "b")
	assert.NotEqual(t, base, token(t, []string{root}, []string{out}))
}

func TestStateToken_GlobbedWatchAndIgnore(t *testing.T) {
	root := t.TempDir()
	write(t, root, "site/a.md", "a")
	write(t, root, "site/tmp.log", "1")
	watch := []string{filepath.Join(root, "si*")}
	ignore := []string{filepath.Join(root, "site", "*.log")}

	base := token(t, watch, ignore)
	write(t, root, "site/tmp.log", "22")
	write(t, root, "site/other.log", "3")
	assert.Equal(t, base, token(t, watch, ignore))
}

func TestStateToken_MissingWatchPath(t *testing.T) {
	tok := token(t, []string{filepath.Join(t.TempDir(), "absent")}, nil)
	assert.Equal(t, token(t, nil, nil), tok)
}

func TestFilter_Gitignore(t *testing.T) {
	root := t.TempDir()
	write(t, root, ".gitignore", "# build outputs\n*.tmp\nbuild/\n")
	write(t, root, "a.md", "a")

	f, err := NewFilter(nil).WithGitignore(root)
	require.NoError(t, err)
	base, err := f.Token([]string{root})
	require.NoError(t, err)

	write(t, root, "scratch.tmp", "x")
	write(t, root, "build/out.html", "x")
	again, err := f.Token([]string{root})
	require.NoError(t, err)
	assert.Equal(t, base, again)

	assert.True(t, f.Skip(filepath.Join(root, "x.tmp"), false))
	assert.False(t, f.Skip(filepath.Join(root, "x.md"), false))
}

func TestFilter_MissingGitignore(t *testing.T) {
	f, err := NewFilter(nil).WithGitignore(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, f.git)
}

func TestStateToken_StabilityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		root, err := os.MkdirTemp("", "token-prop-*")
		if err != nil {
			rt.Fatal(err)
		}
		defer os.RemoveAll(root)

		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}(/[a-z]{1,6})?\.txt`), 1, 8, rapid.ID[string]).Draw(rt, "files")
		for _, n := range names {
			write(rt, root, n, n)
		}
		a, err := StateToken([]string{root}, nil)
		if err != nil {
			rt.Fatal(err)
		}
		b, err := StateToken([]string{root}, nil)
		if err != nil {
			rt.Fatal(err)
		}
		if a != b {
			rt.Fatalf("token changed over an unmodified tree")
		}

		write(rt, root, "zz-extra/"+names[0], "extra")
		c, err := StateToken([]string{root}, nil)
		if err != nil {
			rt.Fatal(err)
		}
		if a == c {
			rt.Fatalf("token unchanged after adding a file")
		}
	})
}

func TestMonitor_RebuildsOnChangeAndSurvivesFailures(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "a")

	var calls atomic.Int32
	m := &Monitor{
		Watch:    []string{root},
		Interval: 10 * time.Millisecond,
		Rebuild: func(context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("broken build")
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Give the monitor time to take its baseline.
	time.Sleep(50 * time.Millisecond)
	write(t, root, "b.md", "b")
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	write(t, root, "c.md", "c")
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitor_NoChangeNoRebuild(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "a")

	var calls atomic.Int32
	m := &Monitor{
		Watch:    []string{root},
		Interval: 5 * time.Millisecond,
		Rebuild:  func(context.Context) error { calls.Add(1); return nil },
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Run(ctx))
	assert.Zero(t, calls.Load())
}

func TestMonitor_PanicIsContained(t *testing.T) {
	m := &Monitor{Rebuild: func(context.Context) error { panic("boom") }}
	err := m.safeRebuild(context.Background())
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryBuild, ferrors.GetCategory(err))
}

func TestMonitor_InvalidSchedule(t *testing.T) {
	m := &Monitor{
		Watch:    []string{t.TempDir()},
		Schedule: "not a cron",
		Rebuild:  func(context.Context) error { return nil },
	}
	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestMonitor_NotifyStillDetectsChanges(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "a")
	var calls atomic.Int32
	m := &Monitor{
		Watch:    []string{root},
		Interval: time.Hour,
		Notify:   true,
		Rebuild:  func(context.Context) error { calls.Add(1); return nil },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	write(t, root, "sub/new.md", "n")
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestShouldIgnoreEvent(t *testing.T) {
	for _, p := range []string{"a.md~", "x.swp", ".#lock", "#auto#", ".DS_Store"} {
		assert.True(t, shouldIgnoreEvent(p), p)
	}
	assert.False(t, shouldIgnoreEvent("page.md"))
}

func TestChild_Build(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	ok := &Child{Mode: ModeBuild, Executable: exe, Args: []string{"-test.run=^TestChildHelper$"}, Env: []string{"CHILD_EXIT=0"}}
	require.NoError(t, ok.Build(context.Background()))

	bad := &Child{Mode: ModeBuild, Executable: exe, Args: []string{"-test.run=^TestChildHelper$"}, Env: []string{"CHILD_EXIT=3"}}
	err = bad.Build(context.Background())
	require.Error(t, err)
	ce, isClassified := ferrors.AsClassified(err)
	require.True(t, isClassified)
	assert.Equal(t, ferrors.CategoryBuild, ce.Category())
	code, _ := ce.Context().Get("exit_code")
	assert.Equal(t, 3, code)
}

// TestChildHelper is the body of the re-executed test binary.
func TestChildHelper(t *testing.T) {
	if ChildMode() != ModeBuild {
		t.Skip("helper process only")
	}
	var code int
	_, _ = fmt.Sscan(os.Getenv("CHILD_EXIT"), &code)
	os.Exit(code)
}
