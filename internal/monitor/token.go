// Package monitor fingerprints watched directories and rebuilds the site
// whenever the fingerprint changes.
package monitor

import (
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// Token fingerprints the names, modification times and directory structure
// of a watched file set.
type Token [32]byte

func (t Token) String() string { return hex.EncodeToString(t[:]) }

// StateToken computes the token for watch minus ignore. Both lists hold
// paths or glob patterns, expanded on every call.
func StateToken(watch, ignore []string) (Token, error) {
	return NewFilter(ignore).Token(watch)
}

// Token computes the state token of watch under this filter. Hidden
// directories are not descended into; hidden files are included.
func (f *Filter) Token(watch []string) (Token, error) {
	snap := f.snapshot()
	roots := sets.New[string]()
	for _, w := range watch {
		matches, err := doublestar.FilepathGlob(w)
		if err != nil {
			return Token{}, ferrors.WrapError(err, ferrors.CategoryMonitor, "invalid watch pattern").
				WithContext("pattern", w).
				Build()
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || snap.skip(abs, info.IsDir()) {
				continue
			}
			roots.Add(abs)
		}
	}

	h := blake3.New()
	for _, root := range sets.Sorted(roots) {
		if err := hashTree(h, root, snap); err != nil {
			return Token{}, err
		}
	}
	var t Token
	copy(t[:], h.Sum(nil))
	return t, nil
}

func hashTree(h *blake3.Hasher, root string, snap snapshot) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return ferrors.WrapError(err, ferrors.CategoryMonitor, "walk watched path").
				WithContext("path", p).
				Build()
		}
		if d.IsDir() {
			if p != root && (hidden(d.Name()) || snap.skip(p, true)) {
				return filepath.SkipDir
			}
			return hashDir(h, p, snap)
		}
		if snap.skip(p, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return ferrors.WrapError(err, ferrors.CategoryMonitor, "stat watched file").
				WithContext("path", p).
				Build()
		}
		_, _ = h.WriteString("f\x00" + p + "\x00" +
			strconv.FormatInt(info.ModTime().UnixNano(), 10) + "\x00" +
			strconv.FormatInt(info.Size(), 10) + "\n")
		return nil
	})
}

// hashDir records the sorted immediate subdirectories of dir so renamed or
// added directories change the token even when empty.
func hashDir(h *blake3.Hasher, dir string, snap snapshot) error {
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryMonitor, "read watched directory").
			WithContext("path", dir).
			Build()
	}
	_, _ = h.WriteString("d\x00" + dir)
	for _, e := range entries {
		if !e.IsDir() || hidden(e.Name()) {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if snap.skip(sub, true) {
			continue
		}
		_, _ = h.WriteString("\x00" + e.Name())
	}
	_, _ = h.WriteString("\n")
	return nil
}
