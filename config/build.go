package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dcshock/datamux/logging"
	"github.com/dcshock/datamux/stream"
)

// BuildOptions configures how streams are built from config.
type BuildOptions struct {
	// Registry supplies the source factories. Nil uses DefaultRegistry.
	Registry *Registry

	// Logger receives resolution logs. Nil uses the logger carried by ctx.
	Logger *slog.Logger

	// Observer is attached to every multiplexer in the tree.
	Observer stream.Observer

	// Seed is the base of shard_seed "randomized". Build takes it from DataConfig.Seed.
	Seed int64
}

func (o BuildOptions) withDefaults(ctx context.Context) BuildOptions {
	if o.Registry == nil {
		o.Registry = DefaultRegistry()
	}
	if o.Logger == nil {
		o.Logger = logging.FromContext(ctx)
	}
	o.Logger = logging.NewComponentLogger(o.Logger, "config")
	return o
}

// Build resolves a data config into one stream and reports whether it is tarred.
// With input_config the nested tree is resolved under the top-level attributes;
// otherwise the top-level path fields describe a single leaf.
func Build(ctx context.Context, cfg *DataConfig, opts BuildOptions) (*stream.Stream, bool, error) {
	if cfg == nil {
		return nil, false, errors.New("config is nil")
	}
	if cfg.Seed != 0 {
		opts.Seed = cfg.Seed
	}
	root := Defaults().Inherit(cfg.Attrs)
	if cfg.InputConfig.IsZero() {
		leaf, err := flatLeaf(cfg)
		if err != nil {
			return nil, false, err
		}
		return Resolve(ctx, leaf, root, opts)
	}

	nodes := cfg.InputConfig.Nodes
	if cfg.InputConfig.File != "" {
		loaded, err := LoadNodes(cfg.InputConfig.File)
		if err != nil {
			return nil, false, err
		}
		nodes = loaded
	}
	tarred, err := validateChildren(nodes, "", "input_config")
	if err != nil {
		return nil, false, err
	}
	opts = opts.withDefaults(ctx)
	r := &resolver{opts: opts, log: opts.Logger}
	s, err := r.group(ctx, nodes, root, "", "input_config", "root")
	if err != nil {
		return nil, false, err
	}
	return stream.AttachTags(s, cfg.Tags), tarred, nil
}

// flatLeaf turns the top-level path fields into a leaf node.
func flatLeaf(cfg *DataConfig) (Node, error) {
	n := Node{
		Name:          "root",
		ManifestPaths: cfg.ManifestPaths,
		TarPaths:      cfg.TarPaths,
		SharPaths:     cfg.SharPaths,
		CutsPath:      cfg.CutsPath,
		Tags:          cfg.Tags,
	}
	switch {
	case !cfg.SharPaths.IsZero():
		n.Kind = KindPackagedSharded
	case cfg.CutsPath != "":
		n.Kind = KindPackaged
	case !cfg.ManifestPaths.IsZero() && !cfg.TarPaths.IsZero():
		n.Kind = KindManifestTarred
	case !cfg.ManifestPaths.IsZero():
		n.Kind = KindManifest
	default:
		return Node{}, configErr("", "", nil,
			"you must specify one of input_config, manifest_filepath, cuts_path or shar_path")
	}
	return n, nil
}

// Resolve turns a node into one stream. inherited holds the attributes handed down by
// the node's ancestors; the node's own attributes override them for the node and
// everything below it. The tree is validated before any source is opened.
func Resolve(ctx context.Context, n Node, inherited Attrs, opts BuildOptions) (*stream.Stream, bool, error) {
	tarred, err := validateNode(n, n.Name)
	if err != nil {
		return nil, false, err
	}
	opts = opts.withDefaults(ctx)
	r := &resolver{opts: opts, log: opts.Logger}
	s, err := r.resolve(ctx, n, inherited, n.Name)
	if err != nil {
		return nil, false, err
	}
	return s, tarred, nil
}

// Materialize opens the sources of a leaf and returns one weighted stream per path, or
// per shard when attrs set max_open_streams and the source can be split. Shards carry
// the full weight of their path. Paths without an explicit weight are weighted by
// their record count.
func Materialize(ctx context.Context, leaf Node, attrs Attrs, opts BuildOptions) ([]stream.Weighted, error) {
	if leaf.Kind == KindGroup {
		return nil, configErr(leaf.Name, "type", leaf.Kind, "not a leaf")
	}
	if _, err := validateNode(leaf, leaf.Name); err != nil {
		return nil, err
	}
	opts = opts.withDefaults(ctx)
	r := &resolver{opts: opts, log: opts.Logger}
	return r.materialize(ctx, leaf, attrs.Inherit(leaf.Attrs), leaf.Name)
}

type resolver struct {
	opts BuildOptions
	log  *slog.Logger
}

func (r *resolver) resolve(ctx context.Context, n Node, inherited Attrs, path string) (*stream.Stream, error) {
	attrs := inherited.Inherit(n.Attrs)
	var (
		s   *stream.Stream
		err error
	)
	switch n.Kind {
	case KindManifest, KindManifestTarred, KindPackaged, KindPackagedSharded:
		s, err = r.leaf(ctx, n, attrs, path)
	case KindGroup:
		s, err = r.group(ctx, n.Components, attrs, path, "components", muxName(n, path))
	case KindUnknown:
		err = configErr(path, "type", nil, "missing or unknown type")
	default:
		err = configErr(path, "type", n.Kind, "unknown type")
	}
	if err != nil {
		return nil, err
	}
	return stream.AttachTags(s, n.Tags), nil
}

func (r *resolver) leaf(ctx context.Context, n Node, attrs Attrs, path string) (*stream.Stream, error) {
	items, err := r.materialize(ctx, n, attrs, path)
	if err != nil {
		return nil, err
	}
	if len(items) == 1 {
		s := items[0].Stream
		if n.Name != "" {
			s = s.Named(n.Name)
		}
		return s, nil
	}
	return r.mux(items, attrs, path, muxName(n, path))
}

func (r *resolver) group(ctx context.Context, children []Node, attrs Attrs, path, key, name string) (*stream.Stream, error) {
	items := make([]stream.Weighted, 0, len(children))
	for i, c := range children {
		s, err := r.resolve(ctx, c, attrs, childPath(path, key, i))
		if err != nil {
			return nil, err
		}
		w := 1.0
		if c.Weight != nil {
			w = *c.Weight
		}
		items = append(items, stream.Weighted{Stream: s, Weight: w})
	}
	return r.mux(items, attrs, path, name)
}

// mux combines weighted streams. Under max_open_streams only finite inputs take part in
// the bounded strategy: an infinite input never ends, so it would hold its slot for
// good. Infinite inputs are mixed unbounded next to one bounded multiplexer that carries
// the summed weight of the finite inputs.
func (r *resolver) mux(items []stream.Weighted, attrs Attrs, path, name string) (*stream.Stream, error) {
	opts := r.muxOptions(name, attrs)
	var finite, infinite []stream.Weighted
	if opts.MaxOpen > 0 {
		for _, it := range items {
			if it.Stream.Finite() {
				finite = append(finite, it)
			} else {
				infinite = append(infinite, it)
			}
		}
	}
	if len(infinite) == 0 {
		return r.muxWeighted(items, opts, path)
	}

	unbounded := opts
	unbounded.MaxOpen = 0
	var total float64
	for _, it := range finite {
		total += it.Weight
	}
	if len(finite) > 0 && total > 0 {
		bounded := opts
		bounded.Name = name + "[bounded]"
		inner, err := r.muxWeighted(finite, bounded, path)
		if err != nil {
			return nil, err
		}
		infinite = append(infinite, stream.Weighted{Stream: inner, Weight: total})
	}
	r.log.Info("infinite inputs mixed without max_open_streams", logging.FieldPath, displayPath(path),
		logging.FieldMux, name, "infinite", len(items)-len(finite), "bounded", len(finite))
	return r.muxWeighted(infinite, unbounded, path)
}

func (r *resolver) muxWeighted(items []stream.Weighted, opts stream.MuxOptions, path string) (*stream.Stream, error) {
	s, err := stream.MuxWeighted(items, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayPath(path), err)
	}
	return s, nil
}

func (r *resolver) muxOptions(name string, attrs Attrs) stream.MuxOptions {
	return stream.MuxOptions{
		Name:     name,
		Seed:     attrs.SeedPolicy(r.opts.Seed),
		MaxOpen:  attrs.MaxOpen(),
		Observer: r.opts.Observer,
	}
}

func (r *resolver) materialize(ctx context.Context, n Node, attrs Attrs, path string) ([]stream.Weighted, error) {
	factory, ok := r.opts.Registry.Get(n.Kind)
	if !ok {
		return nil, configErr(path, "type", n.Kind, "no source registered for type (registered: %v)", r.opts.Registry.Kinds())
	}
	paths, tars := leafPaths(n)
	if n.Kind == KindPackagedSharded && n.CutsPath != "" {
		r.log.Warn("cuts_path is ignored because shar_path was provided",
			logging.FieldPath, displayPath(path), "cuts_path", n.CutsPath)
	}

	split := attrs.MaxOpen() > 0
	var out []stream.Weighted
	for i, wp := range paths {
		spec := SourceSpec{
			Kind:                  n.Kind,
			Path:                  wp.Path,
			Shuffle:               attrs.ShuffleOn(),
			Seed:                  attrs.SeedPolicy(r.opts.Seed),
			TextField:             attrs.Text(),
			LangField:             attrs.Lang(),
			MissingSamplingRateOK: attrs.MissingSamplingRateAllowed(),
		}
		if tars != nil {
			spec.TarPaths = tars[i]
		}
		src, err := factory(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", displayPath(path), wp.Path, err)
		}

		var weight float64
		size, sized := 0, false
		if wp.Weight != nil {
			weight = *wp.Weight
		} else {
			if size, err = src.Len(ctx); err != nil {
				return nil, fmt.Errorf("%s: %s: %w", displayPath(path), wp.Path, err)
			}
			weight, sized = float64(size), true
		}

		var shards []stream.Source
		if sharder, ok := src.(stream.Sharder); ok && split {
			shards, err = sharder.Shards(ctx)
			if err != nil && !errors.Is(err, stream.ErrNotShardable) {
				return nil, fmt.Errorf("%s: %s: split into shards: %w", displayPath(path), wp.Path, err)
			}
		}
		if len(shards) == 0 {
			s := leafStream(n.Kind, src, split)
			if sized {
				s = s.WithSizeHint(size)
			}
			out = append(out, stream.Weighted{Stream: s, Weight: weight})
			r.log.Info("data source", logging.FieldPath, displayPath(path), "type", n.Kind.String(),
				logging.FieldSource, wp.Path, "weight", weight)
			continue
		}
		for _, sh := range shards {
			out = append(out, stream.Weighted{Stream: leafStream(n.Kind, sh, split), Weight: weight})
		}
		r.log.Info("data source", logging.FieldPath, displayPath(path), "type", n.Kind.String(),
			logging.FieldSource, wp.Path, "weight", weight, "shards", len(shards))
	}
	return out, nil
}

// leafStream wraps a source. Packaged-sharded sources repeat forever, reshuffling their
// shards on every pass, unless a bounded multiplexer will reopen them itself.
func leafStream(kind Kind, src stream.Source, bounded bool) *stream.Stream {
	s := stream.FromSource(src)
	if kind == KindPackagedSharded && !bounded {
		s = stream.Repeat(s)
	}
	return s
}

// leafPaths returns the source paths of a leaf and, for manifest_tarred, the tar
// patterns paired with each of them. A single manifest pattern takes every tar pattern.
func leafPaths(n Node) ([]WeightedPath, [][]string) {
	switch n.Kind {
	case KindManifest:
		return n.ManifestPaths.Items, nil
	case KindManifestTarred:
		if n.ManifestPaths.Single() {
			all := make([]string, len(n.TarPaths.Items))
			for i, t := range n.TarPaths.Items {
				all[i] = t.Path
			}
			return n.ManifestPaths.Items, [][]string{all}
		}
		tars := make([][]string, len(n.TarPaths.Items))
		for i, t := range n.TarPaths.Items {
			tars[i] = []string{t.Path}
		}
		return n.ManifestPaths.Items, tars
	case KindPackaged:
		return []WeightedPath{{Path: n.CutsPath}}, nil
	case KindPackagedSharded:
		return n.SharPaths.Items, nil
	case KindGroup, KindUnknown:
		return nil, nil
	}
	return nil, nil
}

func muxName(n Node, path string) string {
	switch {
	case n.Name != "":
		return n.Name
	case path != "":
		return path
	}
	return n.Kind.String()
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
