package stream

// WalkFunc is called for every stream in a tree. depth counts multiplexer levels above
// s and share is the fraction of the root's output that flows through s.
type WalkFunc func(s *Stream, depth int, share float64) error

// Walk visits s and its descendants depth first. Wrappers (repeat, map, take) pass
// their share through unchanged; a multiplexer splits its share among its inputs in
// proportion to their weights. Shares therefore multiply across nesting levels.
func Walk(s *Stream, fn WalkFunc) error {
	return walk(s, 0, 1, fn)
}

func walk(s *Stream, depth int, share float64, fn WalkFunc) error {
	if err := fn(s, depth, share); err != nil {
		return err
	}
	switch s.kind {
	case KindMux, KindInfiniteMux:
		var total float64
		for _, w := range s.weights {
			total += w
		}
		for i, child := range s.children {
			if err := walk(child, depth+1, share*s.weights[i]/total, fn); err != nil {
				return err
			}
		}
	default:
		for _, child := range s.children {
			if err := walk(child, depth, share, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Share is the fraction of a stream tree's output expected from one source.
type Share struct {
	Name  string
	Share float64
}

// EffectiveShares returns, for every source stream in the tree, the product of the
// normalized weights on its path from the root. With the bounded strategy this is the
// long-run target, not an exact figure.
func EffectiveShares(s *Stream) []Share {
	var out []Share
	_ = Walk(s, func(s *Stream, _ int, share float64) error {
		if s.kind == KindSource {
			out = append(out, Share{Name: s.name, Share: share})
		}
		return nil
	})
	return out
}
