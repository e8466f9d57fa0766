package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Stage transforms one entry. Stages run lazily inside Map, once per pulled entry,
// in the order given.
type Stage func(ctx context.Context, e *Entry) (*Entry, error)

// Identity returns a stage that passes the entry through unchanged.
func Identity() Stage {
	return func(_ context.Context, e *Entry) (*Entry, error) {
		return e, nil
	}
}

// Tap returns a stage that calls fn(ctx, e) then passes e through unchanged.
// Use for logging or counting without changing the entry.
func Tap(fn func(context.Context, *Entry)) Stage {
	return func(ctx context.Context, e *Entry) (*Entry, error) {
		fn(ctx, e)
		return e, nil
	}
}

// Tag returns a stage that sets every key of tags into the entry's metadata.
// Nested maps and slices are copied for the stage and again for every entry, so
// neither the caller nor another entry can change what an entry carries.
func Tag(tags map[string]any) Stage {
	tags = copyValue(tags).(map[string]any)
	return func(_ context.Context, e *Entry) (*Entry, error) {
		for k, v := range tags {
			e.Set(k, copyValue(v))
		}
		return e, nil
	}
}

// copyValue deep-copies the composite values produced by YAML, TOML and JSON
// decoding. Other values are returned as is.
func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for k, x := range v {
			out[k] = copyValue(x)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = copyValue(x)
		}
		return out
	case []string:
		return slices.Clone(v)
	}
	return v
}

// Map returns a stream that applies stages to every entry of s. Order, count and
// finiteness are those of s.
func Map(s *Stream, stages ...Stage) *Stream {
	if len(stages) == 0 {
		return s
	}
	return &Stream{
		name:     s.name,
		kind:     KindMap,
		finite:   s.finite,
		size:     s.size,
		hasSize:  s.hasSize,
		children: []*Stream{s},
		open: func(ctx context.Context) (Iterator, error) {
			it, err := s.Open(ctx)
			if err != nil {
				return nil, err
			}
			return &mapIterator{inner: it, stages: stages}, nil
		},
	}
}

// AttachTags returns a stream whose entries carry every key/value of tags in their
// metadata. Tags are applied to exactly the entries produced by s.
func AttachTags(s *Stream, tags map[string]any) *Stream {
	if len(tags) == 0 {
		return s
	}
	return Map(s, Tag(tags))
}

type mapIterator struct {
	inner  Iterator
	stages []Stage
}

func (it *mapIterator) Next(ctx context.Context) (*Entry, error) {
	e, err := it.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	for i, stage := range it.stages {
		e, err = stage(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return e, nil
}

func (it *mapIterator) Close() error { return it.inner.Close() }

// Repeat returns an infinite stream that re-opens s every time a pass ends. A pass
// that yields nothing fails with ErrEmptyStream instead of spinning. Streams that are
// already infinite are returned unchanged.
func Repeat(s *Stream) *Stream {
	if !s.finite {
		return s
	}
	return &Stream{
		name:     s.name,
		kind:     KindRepeat,
		finite:   false,
		children: []*Stream{s},
		open: func(context.Context) (Iterator, error) {
			return &repeatIterator{src: s}, nil
		},
	}
}

type repeatIterator struct {
	src      *Stream
	cur      Iterator
	pass     int
	produced int
	closed   bool
}

func (it *repeatIterator) Next(ctx context.Context) (*Entry, error) {
	if it.closed {
		return nil, io.EOF
	}
	for {
		if it.cur == nil {
			cur, err := it.src.Open(WithPass(ctx, it.pass))
			if err != nil {
				return nil, err
			}
			it.cur, it.produced = cur, 0
			it.pass++
		}
		e, err := it.cur.Next(ctx)
		if err == nil {
			it.produced++
			return e, nil
		}
		if !errors.Is(err, io.EOF) {
			return nil, err
		}
		empty := it.produced == 0
		closeErr := it.cur.Close()
		it.cur = nil
		if closeErr != nil {
			return nil, fmt.Errorf("repeat %s: close pass: %w", it.src.name, closeErr)
		}
		if empty {
			return nil, fmt.Errorf("repeat %s: %w", it.src.name, ErrEmptyStream)
		}
	}
}

func (it *repeatIterator) Close() error {
	it.closed = true
	if it.cur == nil {
		return nil
	}
	err := it.cur.Close()
	it.cur = nil
	return err
}

// Take returns a finite stream of at most n entries from s.
func Take(s *Stream, n int) *Stream {
	return &Stream{
		name:     s.name,
		kind:     KindTake,
		finite:   true,
		children: []*Stream{s},
		open: func(ctx context.Context) (Iterator, error) {
			it, err := s.Open(ctx)
			if err != nil {
				return nil, err
			}
			return &takeIterator{inner: it, left: n}, nil
		},
	}
}

type takeIterator struct {
	inner Iterator
	left  int
}

func (it *takeIterator) Next(ctx context.Context) (*Entry, error) {
	if it.left <= 0 {
		return nil, io.EOF
	}
	e, err := it.inner.Next(ctx)
	if err != nil {
		return nil, err
	}
	it.left--
	return e, nil
}

func (it *takeIterator) Close() error { return it.inner.Close() }

// Collect drains a finite iterator into a slice and closes it.
func Collect(ctx context.Context, it Iterator) ([]*Entry, error) {
	defer it.Close()
	var out []*Entry
	for {
		e, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
