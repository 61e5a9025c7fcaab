// Package document reads source files into front matter and a body stream.
package document

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/text/transform"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

const (
	frontMatterStart = "---"
	frontMatterEnd   = "..."
)

// peekLen bounds the look-ahead used to recognise the opening terminator line.
const peekLen = 64

// ErrBadFrontMatter is the cause of every front matter failure; match it with errors.Is.
var ErrBadFrontMatter = errors.New("bad front matter")

// Document is an opened source file: its parsed front matter and a body
// stream positioned at the first content byte.
type Document struct {
	Path     string
	Encoding Encoding
	// FrontMatter is nil when the file has no front matter block.
	FrontMatter map[string]any

	body   io.Reader
	closer io.Closer
}

// Open reads the front matter of the file at path. The caller must Close the document.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open source document").
			WithContext("path", path).
			Build()
	}
	return newDocument(f, path, f)
}

// OpenFS is Open against a filesystem rooted at the source directory.
func OpenFS(fsys fs.FS, name string) (*Document, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open source document").
			WithContext("path", name).
			Build()
	}
	return newDocument(f, name, f)
}

// Parse reads a document from r. name is only used for error reporting.
func Parse(r io.Reader, name string) (*Document, error) {
	return newDocument(r, name, nil)
}

func newDocument(r io.Reader, name string, closer io.Closer) (*Document, error) {
	doc, err := read(r, name)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	doc.closer = closer
	return doc, nil
}

func read(r io.Reader, name string) (*Document, error) {
	raw := bufio.NewReader(r)
	prefix, err := raw.Peek(MaxPrefixLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read source document").
			WithContext("path", name).
			Build()
	}
	enc := DetectEncoding(prefix)

	var text io.Reader = raw
	if dec := enc.decoder(); dec != nil {
		text = transform.NewReader(raw, dec)
	}
	br := bufio.NewReader(text)

	doc := &Document{Path: name, Encoding: enc, body: br}
	if !startsWithFrontMatter(br) {
		return doc, nil
	}

	// Drop the opening terminator line.
	if _, err := br.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return nil, badFrontMatter(name, "read failed", err)
	}

	var block bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if isTerminator(line, frontMatterStart) || isTerminator(line, frontMatterEnd) {
			break
		}
		block.WriteString(line)
		if errors.Is(err, io.EOF) {
			return nil, badFrontMatter(name, "No end of front matter.", nil)
		}
		if err != nil {
			return nil, badFrontMatter(name, "read failed", err)
		}
	}

	fields, err := decodeFrontMatter(block.Bytes())
	if err != nil {
		return nil, badFrontMatter(name, "front matter is not a valid mapping", err)
	}
	doc.FrontMatter = fields
	return doc, nil
}

func startsWithFrontMatter(br *bufio.Reader) bool {
	head, _ := br.Peek(peekLen)
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	} else if len(head) == peekLen {
		return false
	}
	return isTerminator(string(line), frontMatterStart)
}

func isTerminator(line, marker string) bool {
	return strings.TrimRight(line, " \t\r\n") == marker
}

func badFrontMatter(path, message string, cause error) error {
	wrapped := ErrBadFrontMatter
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", ErrBadFrontMatter, cause)
	}
	return ferrors.DocumentError(message).
		WithContext("path", path).
		WithCause(wrapped).
		Build()
}

// HasFrontMatter reports whether the file started with a front matter block.
func (d *Document) HasFrontMatter() bool {
	return d.FrontMatter != nil
}

// Body returns the content stream. It is consumed by reading.
func (d *Document) Body() io.Reader {
	return d.body
}

// ReadBody reads the remaining content.
func (d *Document) ReadBody() ([]byte, error) {
	return io.ReadAll(d.body)
}

// Close releases the underlying file, if any.
func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}
