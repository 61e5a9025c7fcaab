package pathresolve

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// ErrNotContained is the cause of every containment failure.
var ErrNotContained = errors.New("path escapes its root directory")

// AssertContained fails unless p lies strictly inside root once both are made
// absolute, cleaned and resolved through any existing symlinks. The root
// itself is not considered contained.
func AssertContained(p, root string) error {
	cp, err := canonical(p)
	if err != nil {
		return err
	}
	cr, err := canonical(root)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(cr, cp)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return notContained(p, root)
	}
	return nil
}

// JoinContained joins a slash-separated relative path onto root and asserts
// the result stays inside it. Absolute paths are rejected outright.
func JoinContained(root, rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", notContained(rel, root)
	}
	joined := filepath.Join(root, filepath.FromSlash(rel))
	if err := AssertContained(joined, root); err != nil {
		return "", err
	}
	return joined, nil
}

// canonical makes p absolute and resolves symlinks in its longest existing
// prefix. Components that do not exist yet are appended lexically.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve absolute path").
			WithContext("path", p).
			Build()
	}
	var tail []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve symlinks").
				WithContext("path", p).
				Build()
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

func notContained(p, root string) error {
	return ferrors.ConfigError("path escapes its root directory; did it begin with / or ..?").
		WithContext("path", p).
		WithContext("root", root).
		WithCause(ErrNotContained).
		Build()
}
