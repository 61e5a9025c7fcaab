package monitor

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// Filter decides which paths are left out of the state token. Ignore
// patterns are globbed again on every check so paths created later, such as
// the output directory, are still excluded.
type Filter struct {
	patterns []string
	git      gitignore.Matcher
	gitRoot  string
}

// NewFilter returns a filter for the don't-watch list.
func NewFilter(ignore []string) *Filter {
	return &Filter{patterns: ignore}
}

// WithGitignore also excludes whatever root/.gitignore excludes. A missing
// .gitignore is not an error.
func (f *Filter) WithGitignore(root string) (*Filter, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return f, ferrors.WrapError(err, ferrors.CategoryMonitor, "resolve gitignore root").Build()
	}
	file, err := os.Open(filepath.Join(abs, ".gitignore"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f, nil
		}
		return f, ferrors.WrapError(err, ferrors.CategoryMonitor, "open .gitignore").
			WithContext("path", abs).
			Build()
	}
	defer func() { _ = file.Close() }()

	var ps []gitignore.Pattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, nil))
	}
	if err := sc.Err(); err != nil {
		return f, ferrors.WrapError(err, ferrors.CategoryMonitor, "read .gitignore").
			WithContext("path", abs).
			Build()
	}
	f.git = gitignore.NewMatcher(ps)
	f.gitRoot = abs
	return f, nil
}

// resolve expands the ignore patterns into absolute paths. Patterns that
// match nothing are kept literally.
func (f *Filter) resolve() sets.Set[string] {
	out := sets.New[string]()
	for _, p := range f.patterns {
		if abs, err := filepath.Abs(p); err == nil {
			out.Add(abs)
		}
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if abs, err := filepath.Abs(m); err == nil {
				out.Add(abs)
			}
		}
	}
	return out
}

type snapshot struct {
	ignored sets.Set[string]
	f       *Filter
}

func (f *Filter) snapshot() snapshot {
	return snapshot{ignored: f.resolve(), f: f}
}

// skip reports whether abs, or any of its ancestors, is excluded.
func (s snapshot) skip(abs string, isDir bool) bool {
	for p := abs; ; {
		if s.ignored.Has(p) {
			return true
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	if s.f.git == nil {
		return false
	}
	rel, err := filepath.Rel(s.f.gitRoot, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	return s.f.git.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}

// Skip reports whether the monitor ignores abs.
func (f *Filter) Skip(abs string, isDir bool) bool {
	return f.snapshot().skip(abs, isDir)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
