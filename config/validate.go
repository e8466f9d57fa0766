package config

import "math"

// Validate checks the shape of a node tree without touching the filesystem and
// reports whether it is tarred. Every class of ConfigError is found here, so a tree
// that validates only fails later on collaborator errors.
func Validate(n Node) (bool, error) {
	return validateNode(n, "")
}

func validateNode(n Node, path string) (bool, error) {
	if n.Weight != nil && !validWeight(*n.Weight) {
		return false, configErr(path, "weight", *n.Weight, "weight must be a non-negative number")
	}
	switch n.Kind {
	case KindManifest:
		if err := requirePaths(path, "manifest_filepath", n.ManifestPaths); err != nil {
			return false, err
		}
	case KindManifestTarred:
		if err := requirePaths(path, "manifest_filepath", n.ManifestPaths); err != nil {
			return false, err
		}
		if err := requirePaths(path, "tarred_audio_filepaths", n.TarPaths); err != nil {
			return false, err
		}
		// A single manifest pattern is paired with all tar patterns once both are expanded.
		if !n.ManifestPaths.Single() && n.ManifestPaths.Len() != n.TarPaths.Len() {
			return false, configErr(path, "tarred_audio_filepaths", n.TarPaths.Len(),
				"%d tar paths for %d manifest paths; list one tar path per manifest path",
				n.TarPaths.Len(), n.ManifestPaths.Len())
		}
		for i, tp := range n.TarPaths.Items {
			if tp.Weight != nil {
				return false, configErr(path, "tarred_audio_filepaths", tp.Path,
					"item %d: weights belong on manifest_filepath", i)
			}
		}
	case KindPackaged:
		if n.CutsPath == "" {
			return false, configErr(path, "cuts_path", nil, "required for type %s", n.Kind)
		}
	case KindPackagedSharded:
		if err := requirePaths(path, "shar_path", n.SharPaths); err != nil {
			return false, err
		}
	case KindGroup:
		return validateChildren(n.Components, path, "components")
	case KindUnknown:
		return false, configErr(path, "type", nil, "missing or unknown type")
	default:
		return false, configErr(path, "type", n.Kind, "unknown type")
	}
	return n.Kind.Tarred(), nil
}

// validateChildren checks the members of one multiplexed group.
func validateChildren(children []Node, path, key string) (bool, error) {
	if len(children) == 0 {
		return false, configErr(path, key, nil, "empty group")
	}
	var tarred bool
	weighted := 0
	for i, c := range children {
		cp := childPath(path, key, i)
		t, err := validateNode(c, cp)
		if err != nil {
			return false, err
		}
		if i == 0 {
			tarred = t
		} else if t != tarred {
			return false, configErr(cp, "type", c.Kind,
				"mixing tarred and non-tarred datasets is not supported (first sibling tarred=%t)", tarred)
		}
		if c.Weight != nil {
			weighted++
		}
	}
	if weighted > 0 && weighted < len(children) {
		return false, configErr(path, key, weighted,
			"missing weight: when weighting, every one of the %d members needs a weight", len(children))
	}
	return tarred, nil
}

func requirePaths(path, field string, w WeightedPaths) error {
	if w.IsZero() {
		return configErr(path, field, nil, "required")
	}
	for i, it := range w.Items {
		if it.Path == "" {
			return configErr(path, field, i, "empty path")
		}
		if it.Weight != nil && !validWeight(*it.Weight) {
			return configErr(path, field, *it.Weight, "weight must be a non-negative number")
		}
	}
	return nil
}

func validWeight(w float64) bool {
	return w >= 0 && !math.IsNaN(w) && !math.IsInf(w, 0)
}
