package config

import "github.com/dcshock/datamux/stream"

// Attrs are the attributes a node hands down to its descendants. Nil fields are unset
// and fall through to the inherited value.
type Attrs struct {
	Shuffle               *bool   `yaml:"shuffle,omitempty"`
	ShardSeed             *Seed   `yaml:"shard_seed,omitempty"`
	TextField             *string `yaml:"text_field,omitempty"`
	LangField             *string `yaml:"lang_field,omitempty"`
	MissingSamplingRateOK *bool   `yaml:"missing_sampling_rate_ok,omitempty"`
	MaxOpenStreams        *int    `yaml:"max_open_streams,omitempty"`
}

// Defaults returns the root attribute values.
func Defaults() Attrs {
	return Attrs{
		Shuffle:               ptr(true),
		ShardSeed:             &Seed{stream.TRNGSeed()},
		TextField:             ptr("text"),
		LangField:             ptr("lang"),
		MissingSamplingRateOK: ptr(false),
	}
}

// Inherit returns the attributes a node sees when a holds the inherited values and
// local the values set on the node itself. Local fields win. Neither input is modified.
func (a Attrs) Inherit(local Attrs) Attrs {
	out := a
	if local.Shuffle != nil {
		out.Shuffle = ptr(*local.Shuffle)
	}
	if local.ShardSeed != nil {
		s := *local.ShardSeed
		out.ShardSeed = &s
	}
	if local.TextField != nil {
		out.TextField = ptr(*local.TextField)
	}
	if local.LangField != nil {
		out.LangField = ptr(*local.LangField)
	}
	if local.MissingSamplingRateOK != nil {
		out.MissingSamplingRateOK = ptr(*local.MissingSamplingRateOK)
	}
	if local.MaxOpenStreams != nil {
		out.MaxOpenStreams = ptr(*local.MaxOpenStreams)
	}
	return out
}

// ShuffleOn reports the effective shuffle flag (default true).
func (a Attrs) ShuffleOn() bool { return a.Shuffle == nil || *a.Shuffle }

// SeedPolicy returns the effective shard seed. A "randomized" seed takes base as
// its base value.
func (a Attrs) SeedPolicy(base int64) stream.SeedPolicy {
	if a.ShardSeed == nil {
		return stream.TRNGSeed()
	}
	if a.ShardSeed.Mode() == stream.SeedRandomized {
		return stream.RandomizedSeed(base)
	}
	return a.ShardSeed.SeedPolicy
}

// Text returns the effective transcript field (default "text").
func (a Attrs) Text() string { return deref(a.TextField, "text") }

// Lang returns the effective language field (default "lang").
func (a Attrs) Lang() string { return deref(a.LangField, "lang") }

// MissingSamplingRateAllowed reports the effective missing_sampling_rate_ok flag.
func (a Attrs) MissingSamplingRateAllowed() bool {
	return a.MissingSamplingRateOK != nil && *a.MissingSamplingRateOK
}

// MaxOpen returns the open-stream cap, or 0 when unbounded.
func (a Attrs) MaxOpen() int { return deref(a.MaxOpenStreams, 0) }

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
