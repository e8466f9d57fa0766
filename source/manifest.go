package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/dcshock/datamux/stream"
)

// ManifestOptions control how manifest lines are turned into entries.
type ManifestOptions struct {
	// TextField is the JSON key holding the transcript. Defaults to "text".
	TextField string
	// LangField is the JSON key holding the language code. Defaults to "lang".
	LangField string
	// MissingSamplingRateOK allows lines without "sampling_rate". Such entries
	// report a SamplingRate of 0.
	MissingSamplingRateOK bool
}

func (o ManifestOptions) withDefaults() ManifestOptions {
	if o.TextField == "" {
		o.TextField = "text"
	}
	if o.LangField == "" {
		o.LangField = "lang"
	}
	return o
}

// Manifest reads a JSONL manifest with one utterance per line. The path may be a
// shard pattern, in which case every expanded file is read in order.
type Manifest struct {
	name  string
	paths []string
	opts  ManifestOptions
}

// NewManifest expands pattern and returns a source over the resulting files.
func NewManifest(pattern string, opts ManifestOptions) (*Manifest, error) {
	paths, err := ExpandPaths(pattern)
	if err != nil {
		return nil, err
	}
	return &Manifest{name: pattern, paths: paths, opts: opts.withDefaults()}, nil
}

func (m *Manifest) Name() string { return m.name }

func (m *Manifest) Len(context.Context) (int, error) {
	n, err := countAll(m.paths)
	if err != nil {
		return 0, fmt.Errorf("manifest %s: %w", m.name, err)
	}
	return n, nil
}

func (m *Manifest) Open(context.Context) (stream.Iterator, error) {
	return &manifestIterator{src: m}, nil
}

// Shards returns one source per expanded manifest file.
func (m *Manifest) Shards(context.Context) ([]stream.Source, error) {
	out := make([]stream.Source, 0, len(m.paths))
	for _, p := range m.paths {
		out = append(out, &Manifest{name: p, paths: []string{p}, opts: m.opts})
	}
	return out, nil
}

type manifestIterator struct {
	src  *Manifest
	file int
	r    *lineReader
	done bool
}

func (it *manifestIterator) Next(ctx context.Context) (*stream.Entry, error) {
	for !it.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.r == nil {
			if it.file >= len(it.src.paths) {
				it.done = true
				break
			}
			r, err := openLines(it.src.paths[it.file])
			if err != nil {
				return nil, fmt.Errorf("manifest %s: %w", it.src.name, err)
			}
			it.r = r
			it.file++
		}
		line, err := it.r.next()
		if errors.Is(err, io.EOF) {
			if err := it.closeFile(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		e, err := parseManifestLine(line, it.src.opts)
		if err != nil {
			return nil, fmt.Errorf("manifest %s line %d: %w", it.r.path, it.r.line, err)
		}
		return e, nil
	}
	return nil, io.EOF
}

func (it *manifestIterator) closeFile() error {
	if it.r == nil {
		return nil
	}
	err := it.r.Close()
	it.r = nil
	return err
}

func (it *manifestIterator) Close() error {
	it.done = true
	return it.closeFile()
}

// Keys that map onto Entry fields; everything else lands in Metadata.
var manifestFields = map[string]bool{
	"audio_filepath": true,
	"duration":       true,
	"sampling_rate":  true,
	"id":             true,
}

func parseManifestLine(line []byte, opts ManifestOptions) (*stream.Entry, error) {
	var rec map[string]any
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	e := &stream.Entry{}
	e.AudioPath, _ = rec["audio_filepath"].(string)
	if e.AudioPath == "" {
		return nil, errors.New(`missing "audio_filepath"`)
	}
	dur, ok := rec["duration"].(float64)
	if !ok {
		return nil, errors.New(`missing "duration"`)
	}
	e.Duration = dur

	switch sr := rec["sampling_rate"].(type) {
	case float64:
		if sr != math.Trunc(sr) || sr <= 0 {
			return nil, fmt.Errorf("sampling_rate %v is not a positive integer", sr)
		}
		e.SamplingRate = int(sr)
	case nil:
		if !opts.MissingSamplingRateOK {
			return nil, fmt.Errorf(`missing "sampling_rate" for %s (set missing_sampling_rate_ok to allow)`, e.AudioPath)
		}
	default:
		return nil, fmt.Errorf("sampling_rate %v is not a number", sr)
	}

	if id, ok := rec["id"].(string); ok && id != "" {
		e.ID = id
	} else {
		e.ID = strings.TrimSuffix(filepath.Base(e.AudioPath), filepath.Ext(e.AudioPath))
	}
	e.Text, _ = rec[opts.TextField].(string)
	e.Language, _ = rec[opts.LangField].(string)

	for k, v := range rec {
		if manifestFields[k] || k == opts.TextField || k == opts.LangField {
			continue
		}
		e.Set(k, v)
	}
	return e, nil
}
