package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotShardable is returned by Sharder.Shards when the source layout cannot be split.
	ErrNotShardable = errors.New("source does not support sharding")

	// ErrEmptyStream is returned when a stream that must repeat forever produced no entries
	// on a fresh pass, so repeating it would spin without yielding.
	ErrEmptyStream = errors.New("stream produced no entries")

	// ErrNoData is returned by a multiplexer when none of its inputs can produce an entry.
	ErrNoData = errors.New("no input stream can produce entries")

	// ErrInvalidWeights is returned when mixing weights do not describe a distribution.
	ErrInvalidWeights = errors.New("invalid mixing weights")
)

// Source is the boundary to whatever decodes an on-disk manifest or archive.
// Each Open starts a new, finite, independent pass over the records.
type Source interface {
	Name() string
	// Len returns the number of records; used as the default mixing weight.
	Len(ctx context.Context) (int, error)
	Open(ctx context.Context) (Iterator, error)
}

// Sharder is implemented by sources that can be split into one source per shard.
// The shards together yield exactly the records of the parent.
type Sharder interface {
	Shards(ctx context.Context) ([]Source, error)
}

// Iterator is a single pass over a stream. Next returns io.EOF once the pass is over
// and keeps returning io.EOF afterwards. Close releases held resources and is safe to
// call more than once. Iterators are not safe for concurrent use.
type Iterator interface {
	Next(ctx context.Context) (*Entry, error)
	Close() error
}

// Kind names the operator that produced a Stream.
type Kind string

const (
	KindSource      Kind = "source"
	KindRepeat      Kind = "repeat"
	KindMap         Kind = "map"
	KindTake        Kind = "take"
	KindMux         Kind = "mux"
	KindInfiniteMux Kind = "infinite_mux"
)

// Stream is an immutable, lazily evaluated description of an entry sequence. Nothing
// is read until Open is called; each Open returns an independent Iterator, so one
// Stream can be shared by several consumers.
type Stream struct {
	name     string
	kind     Kind
	finite   bool
	size     int
	hasSize  bool
	children []*Stream
	weights  []float64
	maxOpen  int
	open     func(ctx context.Context) (Iterator, error)
}

// FromSource wraps a Source as a finite stream named after the source.
func FromSource(src Source) *Stream {
	name := src.Name()
	return &Stream{
		name:   name,
		kind:   KindSource,
		finite: true,
		open: func(ctx context.Context) (Iterator, error) {
			it, err := src.Open(ctx)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			return &originIterator{inner: it, origin: name}, nil
		},
	}
}

// Name returns the stream's display name.
func (s *Stream) Name() string { return s.name }

// Kind returns the operator that produced the stream.
func (s *Stream) Kind() Kind { return s.kind }

// Finite reports whether a pass over the stream ends.
func (s *Stream) Finite() bool { return s.finite }

// SizeHint returns the record count of a finite stream when known.
func (s *Stream) SizeHint() (int, bool) { return s.size, s.hasSize }

// Children returns the input streams of a wrapper or multiplexer.
func (s *Stream) Children() []*Stream { return s.children }

// Weights returns the mixing weights of a multiplexer, aligned with Children.
func (s *Stream) Weights() []float64 { return s.weights }

// MaxOpen returns the open-stream cap of a bounded multiplexer, or 0.
func (s *Stream) MaxOpen() int { return s.maxOpen }

// Open starts a new pass over the stream.
func (s *Stream) Open(ctx context.Context) (Iterator, error) {
	return s.open(ctx)
}

// WithSizeHint returns a copy of s that reports n as its record count.
func (s *Stream) WithSizeHint(n int) *Stream {
	c := *s
	c.size, c.hasSize = n, true
	return &c
}

// Named returns a copy of s with a different display name.
func (s *Stream) Named(name string) *Stream {
	c := *s
	c.name = name
	return &c
}

// originIterator stamps the producing stream's name on entries that do not carry one.
type originIterator struct {
	inner  Iterator
	origin string
}

func (it *originIterator) Next(ctx context.Context) (*Entry, error) {
	e, err := it.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	if e.Origin == "" {
		e.Origin = it.origin
	}
	return e, nil
}

func (it *originIterator) Close() error { return it.inner.Close() }

// Entries returns an in-memory Source over the given entries. Each pass yields clones,
// so metadata written downstream never leaks into the next pass.
func Entries(name string, entries ...*Entry) Source {
	return &sliceSource{name: name, entries: entries}
}

type sliceSource struct {
	name    string
	entries []*Entry
}

func (s *sliceSource) Name() string                     { return s.name }
func (s *sliceSource) Len(context.Context) (int, error) { return len(s.entries), nil }

func (s *sliceSource) Open(context.Context) (Iterator, error) {
	return &sliceIterator{entries: s.entries}, nil
}

type sliceIterator struct {
	entries []*Entry
	pos     int
}

func (it *sliceIterator) Next(ctx context.Context) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.entries) {
		return nil, io.EOF
	}
	e := it.entries[it.pos].Clone()
	it.pos++
	return e, nil
}

func (it *sliceIterator) Close() error {
	it.pos = len(it.entries)
	return nil
}
