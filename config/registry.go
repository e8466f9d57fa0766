package config

import (
	"context"
	"slices"
	"sync"

	"github.com/dcshock/datamux/source"
	"github.com/dcshock/datamux/stream"
)

// SourceSpec is everything a factory needs to open one leaf path, with the
// propagated attributes already resolved.
type SourceSpec struct {
	Kind Kind
	Path string
	// TarPaths are the tar patterns paired with Path; manifest_tarred only.
	TarPaths []string

	Shuffle               bool
	Seed                  stream.SeedPolicy
	TextField             string
	LangField             string
	MissingSamplingRateOK bool
}

// SourceFactory creates the collaborator that reads one leaf path.
type SourceFactory func(ctx context.Context, spec SourceSpec) (stream.Source, error)

// Registry maps leaf kinds to source factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]SourceFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]SourceFactory)}
}

// Register sets the factory for a leaf kind. Overwrites any existing registration.
func (r *Registry) Register(kind Kind, f SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[Kind]SourceFactory)
	}
	r.factories[kind] = f
}

// Get returns the factory for kind, or nil and false if not registered.
func (r *Registry) Get(kind Kind) (SourceFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds in declaration order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// DefaultRegistry returns a registry wired to the readers in package source.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindManifest, func(_ context.Context, spec SourceSpec) (stream.Source, error) {
		m, err := source.NewManifest(spec.Path, manifestOptions(spec))
		if err != nil {
			return nil, err
		}
		return m, nil
	})
	r.Register(KindManifestTarred, func(_ context.Context, spec SourceSpec) (stream.Source, error) {
		t, err := source.NewTarredManifest(spec.Path, spec.TarPaths, source.TarredOptions{
			ManifestOptions: manifestOptions(spec),
			Shuffle:         spec.Shuffle,
			Seed:            spec.Seed,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	})
	r.Register(KindPackaged, func(_ context.Context, spec SourceSpec) (stream.Source, error) {
		return source.NewCuts(spec.Path), nil
	})
	r.Register(KindPackagedSharded, func(_ context.Context, spec SourceSpec) (stream.Source, error) {
		s, err := source.NewShar(spec.Path, spec.Seed)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	return r
}

func manifestOptions(spec SourceSpec) source.ManifestOptions {
	return source.ManifestOptions{
		TextField:             spec.TextField,
		LangField:             spec.LangField,
		MissingSamplingRateOK: spec.MissingSamplingRateOK,
	}
}
