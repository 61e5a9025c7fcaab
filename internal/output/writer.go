package output

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
)

// Writer places artifacts under Root. Text content is encoded with the
// configured encoding; binary content is written byte for byte.
type Writer struct {
	root string
	enc  encoding.Encoding
}

// NewWriter returns a writer for root. encodingName is an HTML encoding
// label such as "utf-8" or "iso-8859-1"; empty means UTF-8.
func NewWriter(root, encodingName string) (*Writer, error) {
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &Writer{root: root, enc: enc}, nil
}

// LookupEncoding resolves an encoding label.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, ferrors.ConfigError(fmt.Sprintf("unknown output encoding %q", name)).
			WithCause(err).
			Build()
	}
	return enc, nil
}

// Root returns the output root.
func (w *Writer) Root() string { return w.root }

// Resolve returns the absolute path of target, failing if it escapes the root.
func (w *Writer) Resolve(target string) (string, error) {
	return pathresolve.JoinContained(w.root, target)
}

// WriteText encodes content and writes it to target.
func (w *Writer) WriteText(target string, content []byte) (string, error) {
	data := content
	if w.enc != unicode.UTF8 {
		encoded, err := w.enc.NewEncoder().Bytes(content)
		if err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryBuild, "encode output").
				WithContext("target", target).
				Build()
		}
		data = encoded
	}
	return w.WriteBinary(target, data)
}

// WriteBinary writes content to target unchanged.
func (w *Writer) WriteBinary(target string, content []byte) (string, error) {
	p, err := w.prepare(target)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(p, content); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "write output").
			WithContext("target", target).
			WithContext("path", p).
			Build()
	}
	return p, nil
}

// WriteFrom streams r to target unchanged.
func (w *Writer) WriteFrom(target string, r io.Reader) (string, error) {
	p, err := w.prepare(target)
	if err != nil {
		return "", err
	}
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err == nil {
		_, err = io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = os.Rename(tmp, p)
		}
		if err != nil {
			_ = os.Remove(tmp)
		}
	}
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "write output").
			WithContext("target", target).
			WithContext("path", p).
			Build()
	}
	return p, nil
}

func (w *Writer) prepare(target string) (string, error) {
	p, err := w.Resolve(target)
	if err != nil {
		return "", err
	}
	if err := ensureDir(filepath.Dir(p)); err != nil {
		return "", err
	}
	return p, nil
}

// ensureDir creates dir and its parents. Losing a creation race to another
// writer is fine; anything else, such as a file in the way, is not.
func ensureDir(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return nil
		}
	}
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output directory").
		WithContext("path", dir).
		Build()
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
