package stream

import (
	"context"
	"fmt"
	"io"
	"testing"
)

// openTracker counts iterators that are open at the same time across test sources.
type openTracker struct {
	current int
	max     int
	opens   map[string]int
}

func newOpenTracker() *openTracker {
	return &openTracker{opens: make(map[string]int)}
}

// trackedSource yields n entries whose IDs are "<name>-<i>" and reports opens/closes.
type trackedSource struct {
	name    string
	n       int
	tracker *openTracker
}

func (s *trackedSource) Name() string                     { return s.name }
func (s *trackedSource) Len(context.Context) (int, error) { return s.n, nil }

func (s *trackedSource) Open(context.Context) (Iterator, error) {
	if s.tracker != nil {
		s.tracker.current++
		s.tracker.opens[s.name]++
		if s.tracker.current > s.tracker.max {
			s.tracker.max = s.tracker.current
		}
	}
	return &trackedIterator{src: s}, nil
}

type trackedIterator struct {
	src    *trackedSource
	pos    int
	closed bool
}

func (it *trackedIterator) Next(context.Context) (*Entry, error) {
	if it.closed || it.pos >= it.src.n {
		return nil, io.EOF
	}
	e := &Entry{ID: fmt.Sprintf("%s-%d", it.src.name, it.pos)}
	it.pos++
	return e, nil
}

func (it *trackedIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.src.tracker != nil {
		it.src.tracker.current--
	}
	return nil
}

func tracked(name string, n int, tr *openTracker) *Stream {
	return FromSource(&trackedSource{name: name, n: n, tracker: tr})
}

func pull(t testing.TB, ctx context.Context, s *Stream, n int) []*Entry {
	t.Helper()
	it, err := s.Open(ctx)
	if err != nil {
		t.Fatalf("open %s: %v", s.Name(), err)
	}
	defer it.Close()
	out := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		out = append(out, e)
	}
	return out
}

func ids(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
