package pipe

import (
	"context"
	"errors"
	"fmt"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// Stage turns an ordered list of streams into a new one. A stage owns its
// input: it must close every buffer it does not return.
type Stage func(ctx context.Context, in []*Buffer) ([]*Buffer, error)

// Source is the ordered stream list a pipeline unit transforms.
type Source struct {
	streams []*Buffer
}

// NewSource takes ownership of streams and rewinds them.
func NewSource(streams ...*Buffer) *Source {
	for _, s := range streams {
		s.Rewind()
	}
	return &Source{streams: streams}
}

// Pipe applies stage to the current streams. On failure every stream is
// released and the source becomes empty.
func (s *Source) Pipe(ctx context.Context, stage Stage) (*Source, error) {
	in := s.streams
	s.streams = nil
	out, err := stage(ctx, in)
	if err != nil {
		_ = closeAll(in)
		_ = closeAll(out)
		return s, err
	}
	for i, b := range out {
		if b == nil || b.Name() == "" {
			_ = closeAll(out)
			return s, ferrors.BuildError(fmt.Sprintf("pipe stage produced an unnamed stream at position %d", i)).Build()
		}
		b.Rewind()
	}
	s.streams = out
	return s, nil
}

// Chain applies stages in order and stops at the first failure.
func (s *Source) Chain(ctx context.Context, stages ...Stage) (*Source, error) {
	for _, st := range stages {
		if _, err := s.Pipe(ctx, st); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Streams returns the current streams. They remain owned by the source.
func (s *Source) Streams() []*Buffer { return s.streams }

// Len returns the number of streams.
func (s *Source) Len() int { return len(s.streams) }

// Close releases every stream.
func (s *Source) Close() error {
	err := closeAll(s.streams)
	s.streams = nil
	return err
}

func closeAll(bufs []*Buffer) error {
	var errs []error
	for _, b := range bufs {
		if b != nil {
			errs = append(errs, b.Close())
		}
	}
	return errors.Join(errs...)
}
