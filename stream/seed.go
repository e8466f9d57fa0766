package stream

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SeedMode selects how a SeedPolicy turns into a concrete seed.
type SeedMode int

const (
	// SeedTRNG draws an unreproducible seed from the system entropy source at first pull.
	SeedTRNG SeedMode = iota
	// SeedFixed uses the same seed in every consumer.
	SeedFixed
	// SeedRandomized derives a distinct, reproducible seed per consumer from a base seed.
	SeedRandomized
)

// SeedPolicy decides the random draw order of a multiplexer or shard shuffle. It is a
// plain value; the concrete seed is only committed when Resolve is called, which the
// iterators do on their first pull. The zero value is TRNG.
type SeedPolicy struct {
	mode  SeedMode
	value int64
}

// FixedSeed returns a policy that always resolves to seed. Every consumer sees the same
// order, which duplicates data across parallel workers.
func FixedSeed(seed int64) SeedPolicy { return SeedPolicy{mode: SeedFixed, value: seed} }

// RandomizedSeed returns a policy that derives a per-consumer seed from base. Resuming with
// the same base reproduces the same order; bump base to see a different one.
func RandomizedSeed(base int64) SeedPolicy { return SeedPolicy{mode: SeedRandomized, value: base} }

// TRNGSeed returns a policy that draws a fresh seed from crypto/rand per consumer.
func TRNGSeed() SeedPolicy { return SeedPolicy{mode: SeedTRNG} }

// Mode returns the policy's mode.
func (p SeedPolicy) Mode() SeedMode { return p.mode }

// Value returns the fixed seed or the randomized base seed.
func (p SeedPolicy) Value() int64 { return p.value }

func (p SeedPolicy) String() string {
	switch p.mode {
	case SeedFixed:
		return strconv.FormatInt(p.value, 10)
	case SeedRandomized:
		return fmt.Sprintf("randomized(%d)", p.value)
	default:
		return "trng"
	}
}

// ParseSeed converts a configuration value into a policy. Integers give FixedSeed;
// "randomized" gives RandomizedSeed(base); "trng" gives TRNGSeed.
func ParseSeed(v any, base int64) (SeedPolicy, error) {
	switch x := v.(type) {
	case nil:
		return TRNGSeed(), nil
	case SeedPolicy:
		return x, nil
	case int:
		return FixedSeed(int64(x)), nil
	case int64:
		return FixedSeed(x), nil
	case uint64:
		return FixedSeed(int64(x)), nil
	case float64:
		if x != float64(int64(x)) {
			return SeedPolicy{}, fmt.Errorf("seed %v: must be an integer", x)
		}
		return FixedSeed(int64(x)), nil
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		switch s {
		case "trng":
			return TRNGSeed(), nil
		case "randomized":
			return RandomizedSeed(base), nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return SeedPolicy{}, fmt.Errorf("seed %q: want an integer, \"randomized\" or \"trng\"", x)
		}
		return FixedSeed(n), nil
	default:
		return SeedPolicy{}, fmt.Errorf("seed %v: unsupported type %T", v, v)
	}
}

// Resolve commits the policy to a concrete seed for the consumer found in ctx.
func (p SeedPolicy) Resolve(ctx context.Context) (uint64, error) {
	switch p.mode {
	case SeedFixed:
		return uint64(p.value), nil
	case SeedRandomized:
		c := ConsumerFrom(ctx)
		return DeriveSeed(uint64(p.value), uint64(c.Rank), uint64(c.Worker)), nil
	default:
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("seed: read entropy: %w", err)
		}
		return binary.LittleEndian.Uint64(buf[:]), nil
	}
}

// DeriveSeed mixes base with each part so that distinct inputs give well separated seeds.
func DeriveSeed(base uint64, parts ...uint64) uint64 {
	h := splitmix64(base)
	for _, p := range parts {
		h = splitmix64(h ^ splitmix64(p+0x632be59bd9b4e019))
	}
	return h
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Consumer identifies one independent reader of a pipeline, e.g. a data-loading worker
// on a given rank. It feeds the randomized seed derivation.
type Consumer struct {
	Rank       int
	WorldSize  int
	Worker     int
	NumWorkers int
}

type consumerKey struct{}

// WithConsumer returns a context that identifies the consumer opening streams.
func WithConsumer(ctx context.Context, c Consumer) context.Context {
	return context.WithValue(ctx, consumerKey{}, c)
}

// ConsumerFrom returns the consumer stored in ctx, or the zero Consumer.
func ConsumerFrom(ctx context.Context) Consumer {
	c, _ := ctx.Value(consumerKey{}).(Consumer)
	return c
}

type passKey struct{}

// WithPass records which pass over a repeated stream is being opened.
func WithPass(ctx context.Context, pass int) context.Context {
	return context.WithValue(ctx, passKey{}, pass)
}

// PassFrom returns the pass number set by Repeat, or 0 for the first (or only) pass.
// Sources use it to reshuffle shards differently on every pass.
func PassFrom(ctx context.Context) int {
	n, _ := ctx.Value(passKey{}).(int)
	return n
}
