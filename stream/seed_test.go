package stream

import (
	"context"
	"testing"
)

func TestParseSeed(t *testing.T) {
	cases := []struct {
		in   any
		mode SeedMode
		val  int64
	}{
		{nil, SeedTRNG, 0},
		{42, SeedFixed, 42},
		{int64(-3), SeedFixed, -3},
		{float64(7), SeedFixed, 7},
		{"trng", SeedTRNG, 0},
		{"randomized", SeedRandomized, 99},
		{"RANDOMIZED", SeedRandomized, 99},
		{"13", SeedFixed, 13},
	}
	for _, tc := range cases {
		p, err := ParseSeed(tc.in, 99)
		if err != nil {
			t.Errorf("ParseSeed(%v): err = %v", tc.in, err)
			continue
		}
		if p.Mode() != tc.mode || p.Value() != tc.val {
			t.Errorf("ParseSeed(%v): got %v", tc.in, p)
		}
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	for _, in := range []any{"often", 1.5, []int{1}} {
		if _, err := ParseSeed(in, 0); err == nil {
			t.Errorf("ParseSeed(%v): expected error", in)
		}
	}
}

func TestSeedPolicy_String(t *testing.T) {
	if s := FixedSeed(5).String(); s != "5" {
		t.Errorf("fixed: %q", s)
	}
	if s := RandomizedSeed(5).String(); s != "randomized(5)" {
		t.Errorf("randomized: %q", s)
	}
	if s := (SeedPolicy{}).String(); s != "trng" {
		t.Errorf("zero value: %q", s)
	}
}

func TestSeedPolicy_Resolve(t *testing.T) {
	ctx := context.Background()

	fixed, err := FixedSeed(5).Resolve(WithConsumer(ctx, Consumer{Worker: 2}))
	if err != nil || fixed != 5 {
		t.Errorf("fixed: got %d, %v", fixed, err)
	}

	p := RandomizedSeed(5)
	w0, _ := p.Resolve(WithConsumer(ctx, Consumer{Worker: 0}))
	w1, _ := p.Resolve(WithConsumer(ctx, Consumer{Worker: 1}))
	r1, _ := p.Resolve(WithConsumer(ctx, Consumer{Rank: 1}))
	again, _ := p.Resolve(WithConsumer(ctx, Consumer{Worker: 1}))
	if w0 == w1 || w0 == r1 || w1 == r1 {
		t.Errorf("randomized seeds should differ per consumer: %d %d %d", w0, w1, r1)
	}
	if again != w1 {
		t.Error("randomized seed should be reproducible")
	}

	a, _ := TRNGSeed().Resolve(ctx)
	b, _ := TRNGSeed().Resolve(ctx)
	if a == b {
		t.Error("trng seeds should differ")
	}
}

func TestDeriveSeed_Distinct(t *testing.T) {
	seen := make(map[uint64]bool)
	for rank := uint64(0); rank < 4; rank++ {
		for worker := uint64(0); worker < 8; worker++ {
			s := DeriveSeed(1, rank, worker)
			if seen[s] {
				t.Fatalf("collision at rank %d worker %d", rank, worker)
			}
			seen[s] = true
		}
	}
}
