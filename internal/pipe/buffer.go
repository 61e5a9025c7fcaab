// Package pipe provides named, rewindable byte streams and the stages that
// transform ordered lists of them.
package pipe

import (
	"errors"
	"io"
	"os"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// DefaultSpillThreshold is the size above which a Buffer moves to a temp file.
const DefaultSpillThreshold = 4 << 20

var errNegativeOffset = errors.New("pipe: negative seek offset")

// Buffer is a named, seekable byte stream. Writes always append; reads and
// seeks share one cursor. A Buffer is owned by exactly one stage at a time.
type Buffer struct {
	name  string
	limit int64

	mem  []byte
	file *os.File
	size int64
	off  int64
}

// NewBuffer returns an empty buffer that spills to disk above DefaultSpillThreshold.
func NewBuffer(name string) *Buffer {
	return NewBufferLimit(name, DefaultSpillThreshold)
}

// NewBufferLimit is NewBuffer with an explicit spill threshold.
func NewBufferLimit(name string, limit int64) *Buffer {
	return &Buffer{name: name, limit: limit}
}

// FromReader copies r into a new buffer positioned at offset zero.
func FromReader(name string, r io.Reader) (*Buffer, error) {
	b := NewBuffer(name)
	if _, err := io.Copy(b, r); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// FromBytes returns a buffer holding a copy of p.
func FromBytes(name string, p []byte) *Buffer {
	b := NewBuffer(name)
	_, _ = b.Write(p)
	return b
}

// Name is the logical name of the stream, used as its output target.
func (b *Buffer) Name() string { return b.name }

// SetName renames the stream.
func (b *Buffer) SetName(name string) { b.name = name }

// Len returns the number of bytes written.
func (b *Buffer) Len() int64 { return b.size }

// Spilled reports whether the contents live in a temporary file.
func (b *Buffer) Spilled() bool { return b.file != nil }

func (b *Buffer) Write(p []byte) (int, error) {
	if b.file == nil && int64(len(b.mem))+int64(len(p)) > b.limit {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}
	if b.file == nil {
		b.mem = append(b.mem, p...)
		b.size += int64(len(p))
		return len(p), nil
	}
	n, err := b.file.WriteAt(p, b.size)
	b.size += int64(n)
	return n, err
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.off >= b.size {
		return 0, io.EOF
	}
	var n int
	if b.file == nil {
		n = copy(p, b.mem[b.off:])
	} else {
		var err error
		n, err = b.file.ReadAt(p[:min(int64(len(p)), b.size-b.off)], b.off)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
	}
	b.off += int64(n)
	return n, nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.off + offset
	case io.SeekEnd:
		abs = b.size + offset
	default:
		return 0, errors.New("pipe: invalid whence")
	}
	if abs < 0 {
		return 0, errNegativeOffset
	}
	b.off = abs
	return abs, nil
}

// Rewind moves the read cursor back to the start.
func (b *Buffer) Rewind() { b.off = 0 }

// Bytes returns the full contents regardless of the cursor.
func (b *Buffer) Bytes() ([]byte, error) {
	if b.file == nil {
		return append([]byte(nil), b.mem...), nil
	}
	out := make([]byte, b.size)
	if _, err := b.file.ReadAt(out, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return out, nil
}

// Close releases the buffer and removes any spill file. It is safe to call twice.
func (b *Buffer) Close() error {
	b.mem = nil
	if b.file == nil {
		return nil
	}
	f := b.file
	b.file = nil
	cerr := f.Close()
	rerr := os.Remove(f.Name())
	if rerr != nil && !os.IsNotExist(rerr) {
		return rerr
	}
	return cerr
}

func (b *Buffer) spill() error {
	f, err := os.CreateTemp("", "sitepress-pipe-*")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create pipe spill file").
			WithContext("stream", b.name).
			Build()
	}
	if _, err := f.Write(b.mem); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write pipe spill file").
			WithContext("stream", b.name).
			Build()
	}
	b.file = f
	b.mem = nil
	return nil
}
