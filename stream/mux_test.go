package stream

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func originCounts(entries []*Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Origin]++
	}
	return counts
}

func TestMux_EqualWeightsRatio(t *testing.T) {
	ctx := context.Background()
	s, err := Mux(
		[]*Stream{tracked("a", 100, nil), tracked("b", 37, nil)},
		[]float64{0.5, 0.5},
		MuxOptions{Seed: FixedSeed(1)},
	)
	if err != nil {
		t.Fatal(err)
	}
	if s.Finite() {
		t.Error("mux output should be infinite")
	}

	const n = 10000
	counts := originCounts(pull(t, ctx, s, n))
	ratio := float64(counts["a"]) / n
	if math.Abs(ratio-0.5) > 0.03 {
		t.Errorf("ratio of a: got %.3f, want 0.5±0.03 (counts %v)", ratio, counts)
	}
}

func TestMux_UnequalWeightsRatio(t *testing.T) {
	ctx := context.Background()
	s, err := Mux(
		[]*Stream{tracked("a", 10, nil), tracked("b", 10, nil)},
		[]float64{3, 1},
		MuxOptions{Seed: FixedSeed(7)},
	)
	if err != nil {
		t.Fatal(err)
	}
	const n = 10000
	counts := originCounts(pull(t, ctx, s, n))
	ratio := float64(counts["a"]) / n
	if math.Abs(ratio-0.75) > 0.03 {
		t.Errorf("ratio of a: got %.3f, want 0.75±0.03", ratio)
	}
}

func TestMux_ZeroWeightNeverDrawn(t *testing.T) {
	ctx := context.Background()
	s, err := Mux(
		[]*Stream{tracked("zero", 5, nil), tracked("one", 5, nil), tracked("zero2", 5, nil)},
		[]float64{0, 1, 0},
		MuxOptions{Seed: FixedSeed(3)},
	)
	if err != nil {
		t.Fatal(err)
	}
	counts := originCounts(pull(t, ctx, s, 500))
	if counts["one"] != 500 {
		t.Errorf("counts: %v", counts)
	}
}

func TestMux_InvalidWeights(t *testing.T) {
	a, b := tracked("a", 1, nil), tracked("b", 1, nil)
	cases := []struct {
		name    string
		streams []*Stream
		weights []float64
	}{
		{"no streams", nil, nil},
		{"length mismatch", []*Stream{a, b}, []float64{1}},
		{"negative", []*Stream{a, b}, []float64{1, -1}},
		{"nan", []*Stream{a}, []float64{math.NaN()}},
		{"all zero", []*Stream{a, b}, []float64{0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Mux(tc.streams, tc.weights, MuxOptions{})
			if !errors.Is(err, ErrInvalidWeights) {
				t.Errorf("got %v, want ErrInvalidWeights", err)
			}
		})
	}
}

func TestMux_NegativeMaxOpen(t *testing.T) {
	_, err := Mux([]*Stream{tracked("a", 1, nil)}, []float64{1}, MuxOptions{MaxOpen: -1})
	if err == nil {
		t.Fatal("expected error for negative MaxOpen")
	}
}

func TestMux_FixedSeedReproducible(t *testing.T) {
	ctx := context.Background()
	s, err := Mux(
		[]*Stream{tracked("a", 3, nil), tracked("b", 4, nil), tracked("c", 5, nil)},
		[]float64{1, 1, 1},
		MuxOptions{Seed: FixedSeed(42)},
	)
	if err != nil {
		t.Fatal(err)
	}
	first := strings.Join(ids(pull(t, ctx, s, 200)), ",")
	second := strings.Join(ids(pull(t, WithConsumer(ctx, Consumer{Worker: 3}), s, 200)), ",")
	if first != second {
		t.Error("fixed seed should give the same order in every consumer")
	}
}

func TestMux_RandomizedSeedPerConsumer(t *testing.T) {
	ctx := context.Background()
	s, err := Mux(
		[]*Stream{tracked("a", 3, nil), tracked("b", 4, nil), tracked("c", 5, nil)},
		[]float64{1, 1, 1},
		MuxOptions{Seed: RandomizedSeed(42)},
	)
	if err != nil {
		t.Fatal(err)
	}
	order := func(c Consumer) string {
		return strings.Join(ids(pull(t, WithConsumer(ctx, c), s, 200)), ",")
	}
	w0 := order(Consumer{Worker: 0})
	w1 := order(Consumer{Worker: 1})
	if w0 == w1 {
		t.Error("workers should see different orders")
	}
	if again := order(Consumer{Worker: 1}); again != w1 {
		t.Error("same base seed and consumer should reproduce the order")
	}
}

func TestMux_TRNGSeedDiffers(t *testing.T) {
	ctx := context.Background()
	s, err := Mux(
		[]*Stream{tracked("a", 3, nil), tracked("b", 4, nil)},
		[]float64{1, 1},
		MuxOptions{Seed: TRNGSeed()},
	)
	if err != nil {
		t.Fatal(err)
	}
	first := strings.Join(ids(pull(t, ctx, s, 200)), ",")
	second := strings.Join(ids(pull(t, ctx, s, 200)), ",")
	if first == second {
		t.Error("trng seeds should differ between passes")
	}
}

func TestMux_CloseReleasesInputs(t *testing.T) {
	ctx := context.Background()
	tr := newOpenTracker()
	s, err := Mux(
		[]*Stream{tracked("a", 3, tr), tracked("b", 3, tr)},
		[]float64{1, 1},
		MuxOptions{Seed: FixedSeed(1)},
	)
	if err != nil {
		t.Fatal(err)
	}
	pull(t, ctx, s, 50)
	if tr.current != 0 {
		t.Errorf("open iterators after Close: %d", tr.current)
	}
	if tr.max > 2 {
		t.Errorf("unbounded mux held %d iterators for 2 inputs", tr.max)
	}
}

func TestMux_NestedIsInfinite(t *testing.T) {
	ctx := context.Background()
	inner, err := Mux([]*Stream{tracked("a", 1, nil)}, []float64{1}, MuxOptions{Name: "inner", Seed: FixedSeed(1)})
	if err != nil {
		t.Fatal(err)
	}
	outer, err := Mux([]*Stream{inner, tracked("b", 1, nil)}, []float64{1, 1}, MuxOptions{Name: "outer", Seed: FixedSeed(2)})
	if err != nil {
		t.Fatal(err)
	}
	if len(pull(t, ctx, outer, 1000)) != 1000 {
		t.Error("nested mux should never end")
	}
}

type recordingObserver struct {
	opened    []string
	exhausted []string
	closed    []string
	drawn     map[string]int

	// closedDrawn sums the drawn counts reported by StreamClosed.
	closedDrawn int
}

func (o *recordingObserver) StreamOpened(_ context.Context, mux, source string) error {
	o.opened = append(o.opened, mux+"/"+source)
	return nil
}

func (o *recordingObserver) StreamExhausted(_ context.Context, mux, source string, _ int) error {
	o.exhausted = append(o.exhausted, mux+"/"+source)
	return nil
}

func (o *recordingObserver) StreamClosed(_ context.Context, mux, source string, drawn int) error {
	o.closed = append(o.closed, mux+"/"+source)
	o.closedDrawn += drawn
	return nil
}

func (o *recordingObserver) EntryDrawn(_ context.Context, _, source string) error {
	if o.drawn == nil {
		o.drawn = make(map[string]int)
	}
	o.drawn[source]++
	return nil
}

func TestMux_ObserverHooks(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	s, err := Mux(
		[]*Stream{tracked("a", 2, nil), tracked("b", 2, nil)},
		[]float64{1, 1},
		MuxOptions{Name: "root", Seed: FixedSeed(5), Observer: obs},
	)
	if err != nil {
		t.Fatal(err)
	}
	pull(t, ctx, s, 100)
	if obs.drawn["a"]+obs.drawn["b"] != 100 {
		t.Errorf("drawn: %v", obs.drawn)
	}
	if len(obs.opened) != 2 {
		t.Errorf("opened: %v", obs.opened)
	}
}

func TestMux_CloseReportsOpenInputs(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	s, err := Mux(
		[]*Stream{tracked("a", 2, nil), tracked("b", 2, nil), tracked("never", 2, nil)},
		[]float64{1, 1, 0},
		MuxOptions{Name: "root", Seed: FixedSeed(5), Observer: obs},
	)
	if err != nil {
		t.Fatal(err)
	}
	it, err := s.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if _, err := it.Next(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if len(obs.closed) != 0 {
		t.Fatalf("closed before Close: %v", obs.closed)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if got, want := strings.Join(obs.closed, ","), "root/a,root/b"; got != want {
		t.Errorf("closed: got %s, want %s", got, want)
	}
	if obs.closedDrawn != 100 {
		t.Errorf("closed drawn: got %d, want 100", obs.closedDrawn)
	}
}

func TestMux_CloseJoinsObserverError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	obs := MultiObserver(&recordingObserver{}, closeFailingObserver{boom})
	s, err := Mux([]*Stream{tracked("a", 2, nil)}, []float64{1}, MuxOptions{Seed: FixedSeed(1), Observer: obs})
	if err != nil {
		t.Fatal(err)
	}
	it, err := s.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := it.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if err := it.Close(); !errors.Is(err, boom) {
		t.Errorf("Close: got %v, want %v", err, boom)
	}
}

type closeFailingObserver struct{ err error }

func (closeFailingObserver) StreamOpened(context.Context, string, string) error { return nil }
func (closeFailingObserver) StreamExhausted(context.Context, string, string, int) error {
	return nil
}
func (f closeFailingObserver) StreamClosed(context.Context, string, string, int) error {
	return f.err
}
func (closeFailingObserver) EntryDrawn(context.Context, string, string) error { return nil }

func TestObserver_HookErrorAborts(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s, err := Mux([]*Stream{tracked("a", 2, nil)}, []float64{1}, MuxOptions{Seed: FixedSeed(1), Observer: failingObserver{boom}})
	if err != nil {
		t.Fatal(err)
	}
	it, err := s.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	if _, err := it.Next(ctx); !errors.Is(err, boom) {
		t.Errorf("Next: got %v, want %v", err, boom)
	}
}

type failingObserver struct{ err error }

func (f failingObserver) StreamOpened(context.Context, string, string) error { return f.err }
func (f failingObserver) StreamExhausted(context.Context, string, string, int) error {
	return f.err
}
func (f failingObserver) StreamClosed(context.Context, string, string, int) error {
	return f.err
}
func (f failingObserver) EntryDrawn(context.Context, string, string) error { return f.err }

func TestMultiObserver(t *testing.T) {
	if MultiObserver(nil, nil) != nil {
		t.Error("MultiObserver of nils should be nil")
	}
	a, b := &recordingObserver{}, &recordingObserver{}
	m := MultiObserver(a, nil, b)
	if err := m.EntryDrawn(context.Background(), "m", "s"); err != nil {
		t.Fatal(err)
	}
	if a.drawn["s"] != 1 || b.drawn["s"] != 1 {
		t.Errorf("fan-out: a=%v b=%v", a.drawn, b.drawn)
	}
}
