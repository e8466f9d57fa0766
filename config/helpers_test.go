package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcshock/datamux/stream"
)

// openTracker counts iterators that are open at the same time.
type openTracker struct {
	cur, max int
}

func (t *openTracker) opened() {
	t.cur++
	if t.cur > t.max {
		t.max = t.cur
	}
}

// memSource is an in-memory source made of shards.
type memSource struct {
	name   string
	shards [][]*stream.Entry
	tr     *openTracker
}

func newMemSource(name string, shardSizes ...int) *memSource {
	m := &memSource{name: name}
	n := 0
	for _, size := range shardSizes {
		var shard []*stream.Entry
		for i := 0; i < size; i++ {
			shard = append(shard, &stream.Entry{ID: fmt.Sprintf("%s-%d", name, n)})
			n++
		}
		m.shards = append(m.shards, shard)
	}
	return m
}

func (m *memSource) Name() string { return m.name }

func (m *memSource) Len(context.Context) (int, error) {
	n := 0
	for _, sh := range m.shards {
		n += len(sh)
	}
	return n, nil
}

func (m *memSource) Open(ctx context.Context) (stream.Iterator, error) {
	var all []*stream.Entry
	for _, sh := range m.shards {
		all = append(all, sh...)
	}
	it, err := stream.Entries(m.name, all...).Open(ctx)
	if err != nil {
		return nil, err
	}
	if m.tr != nil {
		m.tr.opened()
	}
	return &trackedIterator{inner: it, tr: m.tr}, nil
}

func (m *memSource) Shards(context.Context) ([]stream.Source, error) {
	if len(m.shards) < 2 {
		return nil, stream.ErrNotShardable
	}
	out := make([]stream.Source, len(m.shards))
	for i, sh := range m.shards {
		out[i] = &memSource{name: fmt.Sprintf("%s#%d", m.name, i), shards: [][]*stream.Entry{sh}, tr: m.tr}
	}
	return out, nil
}

type trackedIterator struct {
	inner  stream.Iterator
	tr     *openTracker
	closed bool
}

func (it *trackedIterator) Next(ctx context.Context) (*stream.Entry, error) {
	return it.inner.Next(ctx)
}

func (it *trackedIterator) Close() error {
	if !it.closed && it.tr != nil {
		it.tr.cur--
	}
	it.closed = true
	return it.inner.Close()
}

// fakeWorld serves memSources by path and records every factory call.
type fakeWorld struct {
	sources map[string]*memSource
	specs   []SourceSpec
}

func newFakeWorld(sources ...*memSource) *fakeWorld {
	w := &fakeWorld{sources: make(map[string]*memSource)}
	for _, s := range sources {
		w.sources[s.name] = s
	}
	return w
}

func (w *fakeWorld) registry() *Registry {
	r := NewRegistry()
	for _, k := range []Kind{KindManifest, KindManifestTarred, KindPackaged, KindPackagedSharded} {
		r.Register(k, func(_ context.Context, spec SourceSpec) (stream.Source, error) {
			w.specs = append(w.specs, spec)
			src, ok := w.sources[spec.Path]
			if !ok {
				return nil, fmt.Errorf("no source at %q", spec.Path)
			}
			return src, nil
		})
	}
	return r
}

func (w *fakeWorld) spec(t *testing.T, path string) SourceSpec {
	t.Helper()
	for _, s := range w.specs {
		if s.Path == path {
			return s
		}
	}
	t.Fatalf("no factory call for %q", path)
	return SourceSpec{}
}

func pullN(t *testing.T, s *stream.Stream, n int) []*stream.Entry {
	t.Helper()
	ctx := context.Background()
	it, err := s.Open(ctx)
	require.NoError(t, err)
	defer it.Close()
	out := make([]*stream.Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := it.Next(ctx)
		require.NoError(t, err, "pull %d", i)
		out = append(out, e)
	}
	return out
}

func drainStream(t *testing.T, s *stream.Stream) int {
	t.Helper()
	ctx := context.Background()
	it, err := s.Open(ctx)
	require.NoError(t, err)
	defer it.Close()
	n := 0
	for {
		_, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

func weight(v float64) *float64 { return &v }

func manifestLeaf(name, path string, w *float64) Node {
	return Node{Name: name, Kind: KindManifest, ManifestPaths: SinglePath(path), Weight: w}
}
