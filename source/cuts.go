package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dcshock/datamux/stream"
)

// cut is the subset of a packaged cut record this package understands.
type cut struct {
	ID           string         `json:"id"`
	Duration     float64        `json:"duration"`
	SamplingRate int            `json:"sampling_rate"`
	Text         string         `json:"text"`
	Language     string         `json:"language"`
	Recording    *recording     `json:"recording"`
	Supervisions []supervision  `json:"supervisions"`
	Custom       map[string]any `json:"custom"`
}

type recording struct {
	ID           string  `json:"id"`
	SamplingRate int     `json:"sampling_rate"`
	Duration     float64 `json:"duration"`
	Sources      []struct {
		Type   string `json:"type"`
		Source string `json:"source"`
	} `json:"sources"`
}

type supervision struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func decodeCut(line []byte) (*stream.Entry, error) {
	var c cut
	if err := json.Unmarshal(line, &c); err != nil {
		return nil, fmt.Errorf("decode cut: %w", err)
	}
	if c.ID == "" {
		return nil, errors.New(`cut without "id"`)
	}
	e := &stream.Entry{
		ID:           c.ID,
		Duration:     c.Duration,
		SamplingRate: c.SamplingRate,
		Text:         c.Text,
		Language:     c.Language,
	}
	if r := c.Recording; r != nil {
		if e.SamplingRate == 0 {
			e.SamplingRate = r.SamplingRate
		}
		if e.Duration == 0 {
			e.Duration = r.Duration
		}
		if len(r.Sources) > 0 {
			e.AudioPath = r.Sources[0].Source
		}
	}
	if len(c.Supervisions) > 0 {
		if e.Text == "" {
			e.Text = c.Supervisions[0].Text
		}
		if e.Language == "" {
			e.Language = c.Supervisions[0].Language
		}
	}
	for k, v := range c.Custom {
		e.Set(k, v)
	}
	return e, nil
}

// Cuts reads a single packaged cut manifest, plain or gzip-compressed JSONL.
type Cuts struct {
	path string
}

// NewCuts returns a source over the cut manifest at path.
func NewCuts(path string) *Cuts { return &Cuts{path: path} }

func (c *Cuts) Name() string { return c.path }

func (c *Cuts) Len(context.Context) (int, error) {
	n, err := countLines(c.path)
	if err != nil {
		return 0, fmt.Errorf("cuts %s: %w", c.path, err)
	}
	return n, nil
}

func (c *Cuts) Open(context.Context) (stream.Iterator, error) {
	r, err := openLines(c.path)
	if err != nil {
		return nil, fmt.Errorf("cuts %s: %w", c.path, err)
	}
	return &cutsIterator{r: r}, nil
}

type cutsIterator struct {
	r *lineReader
}

func (it *cutsIterator) Next(ctx context.Context) (*stream.Entry, error) {
	if it.r == nil {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	line, err := it.r.next()
	if errors.Is(err, io.EOF) {
		if cerr := it.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	e, err := decodeCut(line)
	if err != nil {
		return nil, fmt.Errorf("%s line %d: %w", it.r.path, it.r.line, err)
	}
	return e, nil
}

func (it *cutsIterator) Close() error {
	if it.r == nil {
		return nil
	}
	err := it.r.Close()
	it.r = nil
	return err
}
