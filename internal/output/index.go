package output

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// DefaultIndexName is the index file written inside the output root.
const DefaultIndexName = ".sitepress_index"

// IndexPath resolves the configured index location. Relative paths are taken
// relative to the output root; an empty value selects DefaultIndexName.
func IndexPath(root, configured string) string {
	if configured == "" {
		configured = DefaultIndexName
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(root, configured)
}

// ReadIndex returns the targets recorded by the previous build. A missing
// index means there is nothing to reconcile against and is not an error.
func ReadIndex(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open build index").
			WithContext("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	var targets []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read build index").
			WithContext("path", path).
			Build()
	}
	return targets, nil
}

// WriteIndex replaces the index with targets, one per line, newline terminated.
func WriteIndex(path string, targets []string) error {
	var b strings.Builder
	for _, t := range targets {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := writeAtomic(path, []byte(b.String())); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write build index").
			WithContext("path", path).
			Build()
	}
	return nil
}
