package output

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// Reconcile deletes every target listed in previous that is not in written,
// then prunes directories the deletions left empty, stopping at root or at
// the first non-empty ancestor. All previous entries are containment-checked
// before the first deletion; one bad entry fails the whole step. It returns
// the removed targets in sorted order.
func Reconcile(root string, previous, written []string) ([]string, error) {
	current := sets.New[string]()
	for _, t := range written {
		current.Add(path.Clean(t))
	}

	prior := sets.New[string]()
	abs := make(map[string]string, len(previous))
	for _, t := range previous {
		p, err := pathresolve.JoinContained(root, t)
		if err != nil {
			return nil, ferrors.ConfigError("build index entry escapes the output directory").
				WithContext("path", t).
				WithContext("root", root).
				WithCause(err).
				Build()
		}
		clean := path.Clean(t)
		prior.Add(clean)
		abs[clean] = p
	}

	var removed []string
	for _, t := range sets.Sorted(prior.Difference(current)) {
		p := abs[t]
		info, err := os.Lstat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat stale output").
				WithContext("path", p).
				Build()
		}
		if info.IsDir() {
			return removed, ferrors.FileSystemError("stale index entry is a directory").
				WithContext("path", p).
				Build()
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove stale output").
				WithContext("path", p).
				Build()
		}
		removed = append(removed, t)
		pruneEmptyParents(filepath.Dir(p), root)
	}
	return removed, nil
}

// pruneEmptyParents removes dir and its ancestors while they are empty and
// strictly inside root.
func pruneEmptyParents(dir, root string) {
	for pathresolve.AssertContained(dir, root) == nil {
		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return
		}
		dir = filepath.Dir(dir)
	}
}
