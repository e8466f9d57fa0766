package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
)

func infiniteMux(inputs []*Stream, weights []float64, opts MuxOptions) *Stream {
	return &Stream{
		name:     opts.Name,
		kind:     KindInfiniteMux,
		finite:   false,
		children: inputs,
		weights:  weights,
		maxOpen:  opts.MaxOpen,
		open: func(context.Context) (Iterator, error) {
			n := len(inputs)
			return &infiniteMuxIterator{
				name:    opts.Name,
				inputs:  inputs,
				weights: weights,
				maxOpen: opts.MaxOpen,
				seed:    opts.Seed,
				obs:     opts.Observer,
				iters:   make([]Iterator, n),
				drawn:   make([]int, n),
				empty:   make([]bool, n),
			}, nil
		},
	}
}

// infiniteMuxIterator keeps at most maxOpen inputs open. Inputs that end are closed and
// replaced by a weighted draw from every input not currently open, the one that just
// ended included, so the output never ends while any input can produce.
type infiniteMuxIterator struct {
	name    string
	inputs  []*Stream
	weights []float64
	maxOpen int
	seed    SeedPolicy
	obs     Observer

	rng    *rand.Rand
	active []int
	iters  []Iterator
	drawn  []int  // entries drawn from the current pass of each input
	empty  []bool // input yielded nothing on a fresh pass; never reopened
	closed bool
}

func (it *infiniteMuxIterator) Next(ctx context.Context) (*Entry, error) {
	if it.closed {
		return nil, io.EOF
	}
	if it.rng == nil {
		rng, err := newRand(ctx, it.seed)
		if err != nil {
			return nil, fmt.Errorf("mux %s: %w", it.name, err)
		}
		it.rng = rng
		for len(it.active) < it.maxOpen {
			ok, err := it.activate(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}

	for {
		if len(it.active) == 0 {
			return nil, fmt.Errorf("mux %s: %w", it.name, ErrNoData)
		}
		slot := it.pickActive()
		i := it.active[slot]
		e, err := it.iters[i].Next(ctx)
		if err == nil {
			it.drawn[i]++
			if it.obs != nil {
				if err := it.obs.EntryDrawn(ctx, it.name, it.inputs[i].name); err != nil {
					return nil, fmt.Errorf("mux %s: observer: %w", it.name, err)
				}
			}
			return e, nil
		}
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("mux %s: input %s: %w", it.name, it.inputs[i].name, err)
		}
		if err := it.retire(ctx, slot); err != nil {
			return nil, err
		}
		if _, err := it.activate(ctx); err != nil {
			return nil, err
		}
	}
}

// pickActive draws one open input, weighted among the open ones.
func (it *infiniteMuxIterator) pickActive() int {
	var total float64
	for _, i := range it.active {
		total += it.weights[i]
	}
	x := it.rng.Float64() * total
	for slot, i := range it.active {
		x -= it.weights[i]
		if x < 0 {
			return slot
		}
	}
	return len(it.active) - 1
}

// activate opens one closed input chosen by weight. It reports false when no closed
// input is left to open.
func (it *infiniteMuxIterator) activate(ctx context.Context) (bool, error) {
	var total float64
	for i, w := range it.weights {
		if it.available(i) {
			total += w
		}
	}
	if total <= 0 {
		return false, nil
	}
	x := it.rng.Float64() * total
	chosen := -1
	for i, w := range it.weights {
		if !it.available(i) {
			continue
		}
		chosen = i
		x -= w
		if x < 0 {
			break
		}
	}

	src := it.inputs[chosen]
	sub, err := src.Open(ctx)
	if err != nil {
		return false, fmt.Errorf("mux %s: %w", it.name, err)
	}
	it.iters[chosen] = sub
	it.drawn[chosen] = 0
	it.active = append(it.active, chosen)
	if it.obs != nil {
		if err := it.obs.StreamOpened(ctx, it.name, src.name); err != nil {
			return false, fmt.Errorf("mux %s: observer: %w", it.name, err)
		}
	}
	return true, nil
}

func (it *infiniteMuxIterator) available(i int) bool {
	return it.iters[i] == nil && !it.empty[i] && it.weights[i] > 0
}

// retire closes the input in the given active slot after its pass ended.
func (it *infiniteMuxIterator) retire(ctx context.Context, slot int) error {
	i := it.active[slot]
	it.active = append(it.active[:slot], it.active[slot+1:]...)
	err := it.iters[i].Close()
	it.iters[i] = nil
	if err != nil {
		return fmt.Errorf("mux %s: close %s: %w", it.name, it.inputs[i].name, err)
	}
	if it.drawn[i] == 0 {
		it.empty[i] = true
	}
	if it.obs != nil {
		if err := it.obs.StreamExhausted(ctx, it.name, it.inputs[i].name, it.drawn[i]); err != nil {
			return fmt.Errorf("mux %s: observer: %w", it.name, err)
		}
	}
	return nil
}

func (it *infiniteMuxIterator) Close() error {
	it.closed = true
	var errs []error
	for _, i := range it.active {
		errs = append(errs, it.iters[i].Close())
		it.iters[i] = nil
		if it.obs != nil {
			if err := it.obs.StreamClosed(context.Background(), it.name, it.inputs[i].name, it.drawn[i]); err != nil {
				errs = append(errs, fmt.Errorf("mux %s: observer: %w", it.name, err))
			}
		}
	}
	it.active = nil
	return errors.Join(errs...)
}
