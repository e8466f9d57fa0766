package source

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/dcshock/datamux/stream"
)

var sharCutsName = regexp.MustCompile(`^cuts\.(\d+)\.jsonl(\.gz)?$`)

// SharShard is one numbered shard of a packaged-sharded directory.
type SharShard struct {
	Index     string
	Cuts      string
	Recording string // empty when the shard carries no audio
}

// Shar reads a packaged-sharded directory: cuts.NNNNNN.jsonl[.gz] files with optional
// recording.NNNNNN.tar archives read in lockstep. Shards are always visited in a
// seeded random order that changes on every pass.
type Shar struct {
	dir    string
	shards []SharShard
	seed   stream.SeedPolicy
}

// NewShar scans dir for shards. A directory with no cut shards is an error.
func NewShar(dir string, seed stream.SeedPolicy) (*Shar, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("shar %s: %w", dir, err)
	}
	var shards []SharShard
	for _, de := range ents {
		m := sharCutsName.FindStringSubmatch(de.Name())
		if m == nil || de.IsDir() {
			continue
		}
		sh := SharShard{Index: m[1], Cuts: filepath.Join(dir, de.Name())}
		rec := filepath.Join(dir, "recording."+m[1]+".tar")
		if _, err := os.Stat(rec); err == nil {
			sh.Recording = rec
		}
		shards = append(shards, sh)
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("shar %s: no cuts.*.jsonl shards", dir)
	}
	slices.SortFunc(shards, func(a, b SharShard) int { return strings.Compare(a.Index, b.Index) })
	return &Shar{dir: dir, shards: shards, seed: seed}, nil
}

func (s *Shar) Name() string { return s.dir }

// ShardList returns the discovered shards in index order.
func (s *Shar) ShardList() []SharShard { return slices.Clone(s.shards) }

func (s *Shar) Len(context.Context) (int, error) {
	total := 0
	for _, sh := range s.shards {
		n, err := countLines(sh.Cuts)
		if err != nil {
			return 0, fmt.Errorf("shar %s: %w", s.dir, err)
		}
		total += n
	}
	return total, nil
}

func (s *Shar) Open(ctx context.Context) (stream.Iterator, error) {
	order, err := shardOrder(ctx, len(s.shards), true, s.seed)
	if err != nil {
		return nil, fmt.Errorf("shar %s: %w", s.dir, err)
	}
	return &sharIterator{src: s, order: order}, nil
}

// Shards returns one source per shard index.
func (s *Shar) Shards(context.Context) ([]stream.Source, error) {
	out := make([]stream.Source, 0, len(s.shards))
	for _, sh := range s.shards {
		out = append(out, &Shar{
			dir:    filepath.Join(s.dir, "cuts."+sh.Index),
			shards: []SharShard{sh},
			seed:   s.seed,
		})
	}
	return out, nil
}

type sharIterator struct {
	src   *Shar
	order []int
	next  int

	cuts *lineReader
	f    *os.File
	tr   *tar.Reader
	done bool
}

func (it *sharIterator) Next(ctx context.Context) (*stream.Entry, error) {
	for !it.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.cuts == nil {
			if it.next >= len(it.order) {
				it.done = true
				break
			}
			sh := it.src.shards[it.order[it.next]]
			it.next++
			if err := it.openShard(sh); err != nil {
				return nil, err
			}
		}
		line, err := it.cuts.next()
		if errors.Is(err, io.EOF) {
			if err := it.closeShard(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		e, err := decodeCut(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", it.cuts.path, it.cuts.line, err)
		}
		if it.tr != nil {
			if e.Audio, err = it.nextMember(e.ID); err != nil {
				return nil, err
			}
		}
		return e, nil
	}
	return nil, io.EOF
}

// nextMember returns the payload of the next audio member, which must belong to id.
// Per-member metadata (".json") is skipped.
func (it *sharIterator) nextMember(id string) ([]byte, error) {
	for {
		hdr, err := it.tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("shar %s: recording archive ended before cut %s", it.src.dir, id)
		}
		if err != nil {
			return nil, fmt.Errorf("shar %s: %w", it.src.dir, err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Ext(hdr.Name) == ".json" {
			continue
		}
		base := path.Base(hdr.Name)
		if got := strings.TrimSuffix(base, path.Ext(base)); got != id {
			return nil, fmt.Errorf("shar %s: recording member %s out of step with cut %s", it.src.dir, hdr.Name, id)
		}
		return io.ReadAll(it.tr)
	}
}

func (it *sharIterator) openShard(sh SharShard) error {
	cuts, err := openLines(sh.Cuts)
	if err != nil {
		return fmt.Errorf("shar %s: %w", it.src.dir, err)
	}
	it.cuts = cuts
	if sh.Recording == "" {
		return nil
	}
	f, err := os.Open(sh.Recording)
	if err != nil {
		_ = cuts.Close()
		it.cuts = nil
		return fmt.Errorf("shar %s: %w", it.src.dir, err)
	}
	it.f, it.tr = f, tar.NewReader(f)
	return nil
}

func (it *sharIterator) closeShard() error {
	var errs []error
	if it.cuts != nil {
		errs = append(errs, it.cuts.Close())
		it.cuts = nil
	}
	if it.f != nil {
		errs = append(errs, it.f.Close())
		it.f, it.tr = nil, nil
	}
	return errors.Join(errs...)
}

func (it *sharIterator) Close() error {
	it.done = true
	return it.closeShard()
}
