package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

// MuxOptions configures a multiplexer. MaxOpen of 0 selects the unbounded strategy;
// a positive MaxOpen caps how many inputs hold open iterators at any time.
type MuxOptions struct {
	Name     string
	Seed     SeedPolicy
	MaxOpen  int
	Observer Observer
}

// Mux combines streams into one infinite stream. Each pull selects one input at random
// with probability proportional to its weight and yields that input's next entry.
//
// Without MaxOpen every input is made infinite with Repeat and all of them may be open
// at once. With MaxOpen the inputs stay finite: only MaxOpen of them are open, and an
// exhausted input is closed and replaced by a weighted draw among the closed ones.
func Mux(streams []*Stream, weights []float64, opts MuxOptions) (*Stream, error) {
	if err := validateWeights(len(streams), weights); err != nil {
		return nil, err
	}
	if opts.MaxOpen < 0 {
		return nil, fmt.Errorf("mux: max open streams %d: must be positive", opts.MaxOpen)
	}
	if opts.Name == "" {
		opts.Name = "mux"
	}
	weights = slices.Clone(weights)
	if opts.MaxOpen > 0 {
		return infiniteMux(slices.Clone(streams), weights, opts), nil
	}

	inputs := make([]*Stream, len(streams))
	for i, s := range streams {
		inputs[i] = Repeat(s)
	}
	cum := cumulative(weights)
	return &Stream{
		name:     opts.Name,
		kind:     KindMux,
		finite:   false,
		children: inputs,
		weights:  weights,
		open: func(context.Context) (Iterator, error) {
			return &muxIterator{
				name:   opts.Name,
				inputs: inputs,
				cum:    cum,
				seed:   opts.Seed,
				obs:    opts.Observer,
				iters:  make([]Iterator, len(inputs)),
				drawn:  make([]int, len(inputs)),
			}, nil
		},
	}, nil
}

// Weighted pairs a stream with its mixing weight.
type Weighted struct {
	Stream *Stream
	Weight float64
}

// MuxWeighted is Mux over (stream, weight) pairs.
func MuxWeighted(items []Weighted, opts MuxOptions) (*Stream, error) {
	streams := make([]*Stream, len(items))
	weights := make([]float64, len(items))
	for i, it := range items {
		streams[i], weights[i] = it.Stream, it.Weight
	}
	return Mux(streams, weights, opts)
}

func validateWeights(n int, weights []float64) error {
	if n == 0 {
		return fmt.Errorf("mux: no input streams: %w", ErrInvalidWeights)
	}
	if len(weights) != n {
		return fmt.Errorf("mux: %d weights for %d streams: %w", len(weights), n, ErrInvalidWeights)
	}
	var total float64
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("mux: weight %d is %v: %w", i, w, ErrInvalidWeights)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("mux: weights sum to zero: %w", ErrInvalidWeights)
	}
	return nil
}

func cumulative(weights []float64) []float64 {
	cum := make([]float64, len(weights))
	var total float64
	for i, w := range weights {
		total += w
		cum[i] = total
	}
	return cum
}

// pick maps u in [0,1) onto the index whose cumulative weight interval contains it.
// Zero-weight inputs own an empty interval and are never returned.
func pick(cum []float64, u float64) int {
	x := u * cum[len(cum)-1]
	i := sort.Search(len(cum), func(i int) bool { return cum[i] > x })
	if i < len(cum) {
		return i
	}
	// x rounded up to the total; fall back to the last input with weight.
	i = len(cum) - 1
	for i > 0 && cum[i] == cum[i-1] {
		i--
	}
	return i
}

func newRand(ctx context.Context, policy SeedPolicy) (*rand.Rand, error) {
	seed, err := policy.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(seed, DeriveSeed(seed, 1))), nil
}

type muxIterator struct {
	name   string
	inputs []*Stream
	cum    []float64
	seed   SeedPolicy
	obs    Observer
	rng    *rand.Rand
	iters  []Iterator
	drawn  []int
	closed bool
}

func (it *muxIterator) Next(ctx context.Context) (*Entry, error) {
	if it.closed {
		return nil, io.EOF
	}
	if it.rng == nil {
		rng, err := newRand(ctx, it.seed)
		if err != nil {
			return nil, fmt.Errorf("mux %s: %w", it.name, err)
		}
		it.rng = rng
	}

	i := pick(it.cum, it.rng.Float64())

	src := it.inputs[i]
	if it.iters[i] == nil {
		sub, err := src.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("mux %s: %w", it.name, err)
		}
		it.iters[i] = sub
		if it.obs != nil {
			if err := it.obs.StreamOpened(ctx, it.name, src.name); err != nil {
				return nil, fmt.Errorf("mux %s: observer: %w", it.name, err)
			}
		}
	}
	e, err := it.iters[i].Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("mux %s: input %s: %w", it.name, src.name, err)
	}
	it.drawn[i]++
	if it.obs != nil {
		if err := it.obs.EntryDrawn(ctx, it.name, src.name); err != nil {
			return nil, fmt.Errorf("mux %s: observer: %w", it.name, err)
		}
	}
	return e, nil
}

func (it *muxIterator) Close() error {
	it.closed = true
	var errs []error
	for i, sub := range it.iters {
		if sub == nil {
			continue
		}
		errs = append(errs, sub.Close())
		it.iters[i] = nil
		if it.obs != nil {
			if err := it.obs.StreamClosed(context.Background(), it.name, it.inputs[i].name, it.drawn[i]); err != nil {
				errs = append(errs, fmt.Errorf("mux %s: observer: %w", it.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
