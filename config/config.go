package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dcshock/datamux/stream"
)

// Kind is the closed set of node types.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindManifest
	KindManifestTarred
	KindPackaged
	KindPackagedSharded
	KindGroup
)

var kindNames = map[string]Kind{
	"manifest":         KindManifest,
	"manifest_tarred":  KindManifestTarred,
	"packaged":         KindPackaged,
	"packaged_sharded": KindPackagedSharded,
	"group":            KindGroup,
	// Names used by existing NeMo/Lhotse configs.
	"nemo":        KindManifest,
	"nemo_tarred": KindManifestTarred,
	"lhotse":      KindPackaged,
	"lhotse_shar": KindPackagedSharded,
}

// ParseKind returns the Kind for a type name or one of its aliases.
func ParseKind(s string) (Kind, bool) {
	k, ok := kindNames[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

func (k Kind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindManifestTarred:
		return "manifest_tarred"
	case KindPackaged:
		return "packaged"
	case KindPackagedSharded:
		return "packaged_sharded"
	case KindGroup:
		return "group"
	case KindUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Tarred reports whether a leaf kind reads payloads from archive shards.
// Groups take the tarred status of their children.
func (k Kind) Tarred() bool {
	switch k {
	case KindManifestTarred, KindPackagedSharded:
		return true
	}
	return false
}

// Leaf reports whether k describes a data source rather than a group.
func (k Kind) Leaf() bool {
	switch k {
	case KindManifest, KindManifestTarred, KindPackaged, KindPackagedSharded:
		return true
	}
	return false
}

// UnmarshalYAML accepts any type name or alias; anything else is a ConfigError naming the value.
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return configErr(fmt.Sprintf("line %d", value.Line), "type", value.Value, "type must be a string")
	}
	parsed, ok := ParseKind(s)
	if !ok {
		return configErr(fmt.Sprintf("line %d", value.Line), "type", s, "unknown type")
	}
	*k = parsed
	return nil
}

func (k Kind) MarshalYAML() (any, error) { return k.String(), nil }

// WeightedPath is one source path with an optional explicit mixing weight.
type WeightedPath struct {
	Path   string
	Weight *float64
}

// WeightedPaths is a path field in any of its accepted shapes:
//
//	manifest_filepath: a.json
//	manifest_filepath: [a.json, b.json]
//	manifest_filepath: [[a.json], [b.json]]
//	manifest_filepath: [[a.json, 0.3], [b.json, 2]]
type WeightedPaths struct {
	Items []WeightedPath
	// Scalar is true when the field was a single string.
	Scalar bool
}

// Paths builds a WeightedPaths from plain paths.
func Paths(paths ...string) WeightedPaths {
	var w WeightedPaths
	for _, p := range paths {
		w.Items = append(w.Items, WeightedPath{Path: p})
	}
	return w
}

// SinglePath builds the scalar form.
func SinglePath(path string) WeightedPaths {
	return WeightedPaths{Items: []WeightedPath{{Path: path}}, Scalar: true}
}

// Len returns the number of paths.
func (w WeightedPaths) Len() int { return len(w.Items) }

// IsZero reports whether the field was absent.
func (w WeightedPaths) IsZero() bool { return len(w.Items) == 0 }

// Single reports whether the field was a scalar path.
func (w WeightedPaths) Single() bool { return w.Scalar }

// UnmarshalYAML decodes the accepted shapes; wrong arity or types are a ConfigError
// echoing the offending value.
func (w *WeightedPaths) UnmarshalYAML(value *yaml.Node) error {
	at := fmt.Sprintf("line %d", value.Line)
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil || s == "" {
			return configErr(at, "", value.Value, "path must be a non-empty string")
		}
		*w = SinglePath(s)
		return nil
	case yaml.SequenceNode:
		out := WeightedPaths{}
		for _, item := range value.Content {
			wp, err := decodeWeightedPath(item)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, wp)
		}
		*w = out
		return nil
	}
	var raw any
	_ = value.Decode(&raw)
	return configErr(at, "", raw, "expected a path or a list of paths")
}

func decodeWeightedPath(item *yaml.Node) (WeightedPath, error) {
	var raw any
	_ = item.Decode(&raw)
	bad := func() (WeightedPath, error) {
		return WeightedPath{}, configErr(fmt.Sprintf("line %d", item.Line), "", raw,
			"weighted path must be a path, [path] or [path, weight]")
	}
	switch item.Kind {
	case yaml.ScalarNode:
		s, ok := raw.(string)
		if !ok || s == "" {
			return bad()
		}
		return WeightedPath{Path: s}, nil
	case yaml.SequenceNode:
		if n := len(item.Content); n < 1 || n > 2 {
			return bad()
		}
		parts := raw.([]any)
		p, ok := parts[0].(string)
		if !ok || p == "" {
			return bad()
		}
		wp := WeightedPath{Path: p}
		if len(parts) == 2 {
			w, ok := number(parts[1])
			if !ok {
				return bad()
			}
			wp.Weight = &w
		}
		return wp, nil
	}
	return bad()
}

func (w WeightedPaths) MarshalYAML() (any, error) {
	if w.Scalar && len(w.Items) == 1 {
		return w.Items[0].Path, nil
	}
	out := make([]any, 0, len(w.Items))
	for _, it := range w.Items {
		if it.Weight != nil {
			out = append(out, []any{it.Path, *it.Weight})
		} else {
			out = append(out, []any{it.Path})
		}
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	}
	return 0, false
}

// Seed is a shard_seed value: an integer, "trng" or "randomized".
type Seed struct {
	stream.SeedPolicy
}

// UnmarshalYAML parses the seed with ParseSeed. The base of "randomized" is taken
// from the top-level seed when the tree is resolved.
func (s *Seed) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	p, err := stream.ParseSeed(raw, 0)
	if err != nil {
		return configErr(fmt.Sprintf("line %d", value.Line), "shard_seed", raw, "%v", err)
	}
	s.SeedPolicy = p
	return nil
}

func (s Seed) MarshalYAML() (any, error) {
	switch s.Mode() {
	case stream.SeedFixed:
		return s.Value(), nil
	case stream.SeedRandomized:
		return "randomized", nil
	}
	return "trng", nil
}

// Node is one entry of input_config: a leaf data source or a group of nodes.
type Node struct {
	Name   string         `yaml:"name,omitempty"`
	Kind   Kind           `yaml:"type"`
	Weight *float64       `yaml:"weight,omitempty"`
	Tags   map[string]any `yaml:"tags,omitempty"`

	ManifestPaths WeightedPaths `yaml:"manifest_filepath,omitempty"`
	TarPaths      WeightedPaths `yaml:"tarred_audio_filepaths,omitempty"`
	SharPaths     WeightedPaths `yaml:"shar_path,omitempty"`
	CutsPath      string        `yaml:"cuts_path,omitempty"`

	Components []Node `yaml:"components,omitempty"`

	// Attrs holds the propagated attributes set on this node.
	Attrs Attrs `yaml:",inline"`
}

// InputConfig is the nested tree: either inline nodes or the path of a file holding them.
type InputConfig struct {
	Nodes []Node
	File  string
}

// IsZero reports whether input_config was absent.
func (c InputConfig) IsZero() bool { return c.Nodes == nil && c.File == "" }

func (c *InputConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&c.File)
	}
	if c.Nodes == nil {
		c.Nodes = []Node{}
	}
	return value.Decode(&c.Nodes)
}

func (c InputConfig) MarshalYAML() (any, error) {
	if c.File != "" {
		return c.File, nil
	}
	return c.Nodes, nil
}

// DataConfig is the root of a data configuration. When InputConfig is set the nested
// tree is used; otherwise the top-level path fields describe a single leaf.
type DataConfig struct {
	InputConfig InputConfig `yaml:"input_config,omitempty"`

	ManifestPaths WeightedPaths `yaml:"manifest_filepath,omitempty"`
	TarPaths      WeightedPaths `yaml:"tarred_audio_filepaths,omitempty"`
	SharPaths     WeightedPaths `yaml:"shar_path,omitempty"`
	CutsPath      string        `yaml:"cuts_path,omitempty"`

	// Seed is the base for shard_seed "randomized".
	Seed int64          `yaml:"seed,omitempty"`
	Tags map[string]any `yaml:"tags,omitempty"`

	// Attrs are the root values of the propagated attributes.
	Attrs Attrs `yaml:",inline"`
}

// Format selects the document syntax.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// FormatFor picks the format from a file extension. JSON is read as YAML.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return 0, fmt.Errorf("config %s: unsupported extension (want .yaml, .yml, .json or .toml)", path)
}

// Parse decodes and schema-validates a data config document.
func Parse(data []byte, format Format) (*DataConfig, error) {
	doc, err := decodeGeneric(data, format)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}
	if format == FormatTOML {
		// Re-encode so the YAML unmarshalers handle both syntaxes.
		if data, err = yaml.Marshal(doc); err != nil {
			return nil, err
		}
	}
	var cfg DataConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a data config file.
func LoadFile(path string) (*DataConfig, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadNodes reads a file holding an input_config list.
func LoadNodes(path string) ([]Node, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list any
	if format == FormatTOML {
		// TOML has no top-level arrays; the list lives under input_config.
		var wrapped map[string]any
		if err := toml.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		list = wrapped["input_config"]
	} else if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := validateSchema(map[string]any{"input_config": list}); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	raw, err := yaml.Marshal(list)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	if err := yaml.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nodes, nil
}

func decodeGeneric(data []byte, format Format) (map[string]any, error) {
	doc := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %d", format)
	}
	return doc, nil
}
