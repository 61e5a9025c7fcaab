package pipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// Concat joins every stream, in order, into one stream called name.
func Concat(name string) Stage {
	return func(_ context.Context, in []*Buffer) ([]*Buffer, error) {
		out := NewBuffer(name)
		for _, b := range in {
			b.Rewind()
			if _, err := io.Copy(out, b); err != nil {
				_ = out.Close()
				return nil, ferrors.WrapError(err, ferrors.CategoryBuild, "concatenate streams").
					WithContext("stream", b.Name()).
					Build()
			}
		}
		_ = closeAll(in)
		return []*Buffer{out}, nil
	}
}

// Run feeds the concatenated streams to an external command on stdin and
// captures its stdout as one stream called name.
func Run(name string, argv ...string) Stage {
	return RunIn("", name, argv...)
}

// RunIn is Run with the command started in dir.
func RunIn(dir, name string, argv ...string) Stage {
	return func(ctx context.Context, in []*Buffer) ([]*Buffer, error) {
		if len(argv) == 0 {
			return nil, ferrors.ConfigError("run stage needs a command").WithContext("stream", name).Build()
		}
		readers := make([]io.Reader, 0, len(in))
		for _, b := range in {
			b.Rewind()
			readers = append(readers, b)
		}

		out := NewBuffer(name)
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		cmd.Stdin = io.MultiReader(readers...)
		cmd.Stdout = out
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			_ = out.Close()
			b := ferrors.WrapError(err, ferrors.CategoryBuild, fmt.Sprintf("command %q failed", argv[0])).
				WithContext("command", strings.Join(argv, " ")).
				WithContext("stream", name)
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				b = b.WithContext("stderr", msg)
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				b = b.WithContext("exit_code", exitErr.ExitCode())
			}
			return nil, b.Build()
		}
		_ = closeAll(in)
		return []*Buffer{out}, nil
	}
}

// Map applies fn to every stream, keeping count and order. A stream that fn
// replaces is closed.
func Map(fn func(*Buffer) (*Buffer, error)) Stage {
	return MapIndexed(func(_ int, b *Buffer) (*Buffer, error) { return fn(b) })
}

// MapIndexed is Map with the 0-based position of each stream.
func MapIndexed(fn func(int, *Buffer) (*Buffer, error)) Stage {
	return func(_ context.Context, in []*Buffer) ([]*Buffer, error) {
		out := make([]*Buffer, 0, len(in))
		for i, b := range in {
			b.Rewind()
			r, err := fn(i, b)
			if err != nil {
				_ = closeAll(out)
				return nil, err
			}
			if r != b {
				_ = b.Close()
				in[i] = nil
			}
			out = append(out, r)
		}
		return out, nil
	}
}

// Rename changes the logical name of every stream.
func Rename(fn func(string) string) Stage {
	return func(_ context.Context, in []*Buffer) ([]*Buffer, error) {
		for _, b := range in {
			b.SetName(fn(b.Name()))
		}
		return in, nil
	}
}

// Into moves every stream under dir.
func Into(dir string) Stage {
	return Rename(func(name string) string {
		return strings.TrimSuffix(dir, "/") + "/" + name
	})
}

// Tee copies every stream to w and passes them through unchanged.
func Tee(w io.Writer) Stage {
	return func(_ context.Context, in []*Buffer) ([]*Buffer, error) {
		for _, b := range in {
			b.Rewind()
			if _, err := io.Copy(w, b); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryBuild, "tee stream").
					WithContext("stream", b.Name()).
					Build()
			}
		}
		return in, nil
	}
}
