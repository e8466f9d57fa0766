package source

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/dcshock/datamux/stream"
)

// TarredOptions configure a TarredManifest.
type TarredOptions struct {
	ManifestOptions
	// Shuffle visits shards in a seeded random order on every pass.
	Shuffle bool
	// Seed drives the shard shuffle.
	Seed stream.SeedPolicy
}

// TarredManifest pairs manifest shard i with tar shard i. Entries are emitted in tar
// member order with the member bytes in Audio; members with no manifest line are skipped.
type TarredManifest struct {
	name      string
	manifests []string
	tars      []string
	opts      TarredOptions
}

// NewTarredManifest expands the manifest pattern and every tar pattern. The tar shards,
// concatenated in order, must match the manifest shards one for one.
func NewTarredManifest(manifestPattern string, tarPatterns []string, opts TarredOptions) (*TarredManifest, error) {
	manifests, err := ExpandPaths(manifestPattern)
	if err != nil {
		return nil, err
	}
	tars, err := ExpandAll(tarPatterns)
	if err != nil {
		return nil, err
	}
	if len(manifests) != len(tars) {
		return nil, fmt.Errorf("tarred manifest %s: %d manifest shards but %d tar shards", manifestPattern, len(manifests), len(tars))
	}
	opts.ManifestOptions = opts.ManifestOptions.withDefaults()
	return &TarredManifest{name: manifestPattern, manifests: manifests, tars: tars, opts: opts}, nil
}

func (t *TarredManifest) Name() string { return t.name }

// NumShards returns the number of (manifest, tar) pairs.
func (t *TarredManifest) NumShards() int { return len(t.tars) }

func (t *TarredManifest) Len(context.Context) (int, error) {
	n, err := countAll(t.manifests)
	if err != nil {
		return 0, fmt.Errorf("tarred manifest %s: %w", t.name, err)
	}
	return n, nil
}

func (t *TarredManifest) Open(ctx context.Context) (stream.Iterator, error) {
	order, err := shardOrder(ctx, len(t.tars), t.opts.Shuffle, t.opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("tarred manifest %s: %w", t.name, err)
	}
	return &tarredIterator{src: t, order: order}, nil
}

// Shards returns one source per (manifest, tar) pair.
func (t *TarredManifest) Shards(context.Context) ([]stream.Source, error) {
	out := make([]stream.Source, 0, len(t.tars))
	for i := range t.tars {
		out = append(out, &TarredManifest{
			name:      t.manifests[i],
			manifests: t.manifests[i : i+1],
			tars:      t.tars[i : i+1],
			opts:      t.opts,
		})
	}
	return out, nil
}

type tarredIterator struct {
	src   *TarredManifest
	order []int
	next  int

	index   map[string][]*stream.Entry
	f       *os.File
	tr      *tar.Reader
	tarPath string
	pending []*stream.Entry
	done    bool
}

func (it *tarredIterator) Next(ctx context.Context) (*stream.Entry, error) {
	for !it.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(it.pending) > 0 {
			e := it.pending[0]
			it.pending = it.pending[1:]
			return e, nil
		}
		if it.tr == nil {
			if it.next >= len(it.order) {
				it.done = true
				break
			}
			shard := it.order[it.next]
			it.next++
			if err := it.openShard(shard); err != nil {
				return nil, err
			}
		}
		hdr, err := it.tr.Next()
		if errors.Is(err, io.EOF) {
			if err := it.closeShard(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("tar %s: %w", it.tarPath, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		entries, ok := it.index[path.Base(hdr.Name)]
		if !ok {
			continue
		}
		payload, err := io.ReadAll(it.tr)
		if err != nil {
			return nil, fmt.Errorf("tar %s: read %s: %w", it.tarPath, hdr.Name, err)
		}
		for _, e := range entries {
			c := e.Clone()
			c.Audio = payload
			it.pending = append(it.pending, c)
		}
	}
	return nil, io.EOF
}

func (it *tarredIterator) openShard(shard int) error {
	manifest := it.src.manifests[shard]
	index, err := loadManifestIndex(manifest, it.src.opts.ManifestOptions)
	if err != nil {
		return fmt.Errorf("tarred manifest %s: %w", it.src.name, err)
	}
	f, err := os.Open(it.src.tars[shard])
	if err != nil {
		return fmt.Errorf("tarred manifest %s: %w", it.src.name, err)
	}
	it.index, it.f, it.tr, it.tarPath = index, f, tar.NewReader(f), it.src.tars[shard]
	return nil
}

func (it *tarredIterator) closeShard() error {
	it.index, it.tr = nil, nil
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	return err
}

func (it *tarredIterator) Close() error {
	it.done = true
	it.pending = nil
	return it.closeShard()
}

// loadManifestIndex reads a manifest shard keyed by the base name of each audio path,
// which is how members are named inside the paired tar.
func loadManifestIndex(file string, opts ManifestOptions) (map[string][]*stream.Entry, error) {
	r, err := openLines(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	index := make(map[string][]*stream.Entry)
	for {
		line, err := r.next()
		if errors.Is(err, io.EOF) {
			return index, nil
		}
		if err != nil {
			return nil, err
		}
		// missing_sampling_rate_ok only applies to untarred manifests.
		o := opts
		o.MissingSamplingRateOK = true
		e, err := parseManifestLine(line, o)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", file, r.line, err)
		}
		key := path.Base(e.AudioPath)
		index[key] = append(index[key], e)
	}
}
