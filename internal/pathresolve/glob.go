// Package pathresolve expands glob patterns, resolves target templates and
// guards every path against escaping its root directory.
package pathresolve

import (
	"errors"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// ErrNotFound is returned when a single glob pattern matches nothing.
var ErrNotFound = errors.New("pattern matched no files")

// Glob expands one pattern against fsys and returns the matching regular
// files, sorted. A pattern that matches nothing is a usage error: callers
// that want optional patterns must check for ErrNotFound themselves.
func Glob(fsys fs.FS, pattern string) ([]string, error) {
	matches, err := globFiles(fsys, pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ferrors.NotFoundError("glob pattern matched no files").
			WithContext("pattern", pattern).
			WithCause(ErrNotFound).
			Build()
	}
	return sets.Sorted(sets.New(matches...)), nil
}

// GlobAll expands every pattern and returns the sorted union. An empty
// result is not an error.
func GlobAll(fsys fs.FS, patterns []string) ([]string, error) {
	seen := sets.New[string]()
	for _, p := range patterns {
		matches, err := globFiles(fsys, p)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			seen.Add(m)
		}
	}
	return sets.Sorted(seen), nil
}

// Patterns is what a unit fans out over: either one pattern, which must
// match, or a list of patterns whose union may be empty. A list holding a
// single pattern is still a list.
type Patterns struct {
	items []string
	list  bool
}

// Pattern is a single pattern that must match at least one file.
func Pattern(p string) Patterns { return Patterns{items: []string{p}} }

// PatternList is a list of patterns that may match nothing.
func PatternList(ps ...string) Patterns { return Patterns{items: slices.Clone(ps), list: true} }

// IsZero reports whether no pattern was given at all.
func (p Patterns) IsZero() bool { return !p.list && len(p.items) == 0 }

// IsList reports whether p was given as a list.
func (p Patterns) IsList() bool { return p.list }

func (p Patterns) Items() []string { return slices.Clone(p.items) }

// Expand applies Glob to a single pattern and GlobAll to a list. The zero
// Patterns expands to nothing.
func (p Patterns) Expand(fsys fs.FS) ([]string, error) {
	switch {
	case p.list:
		return GlobAll(fsys, p.items)
	case len(p.items) == 0:
		return nil, nil
	default:
		return Glob(fsys, p.items[0])
	}
}

func globFiles(fsys fs.FS, pattern string) ([]string, error) {
	clean, err := cleanPattern(pattern)
	if err != nil {
		return nil, err
	}
	matches, err := doublestar.Glob(fsys, clean)
	if err != nil {
		return nil, ferrors.ConfigError("invalid glob pattern").
			WithContext("pattern", pattern).
			WithCause(err).
			Build()
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := fs.Stat(fsys, m)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat glob match").
				WithContext("path", m).
				Build()
		}
		if info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	return files, nil
}

// cleanPattern rejects patterns that would leave the source root.
func cleanPattern(pattern string) (string, error) {
	p := strings.TrimPrefix(pattern, "./")
	if p == "" || path.IsAbs(p) {
		return "", notContained(pattern, "source root")
	}
	if c := path.Clean(p); c == ".." || strings.HasPrefix(c, "../") {
		return "", notContained(pattern, "source root")
	}
	return p, nil
}
