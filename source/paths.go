package source

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxExpandedPaths bounds how many paths one pattern may expand to.
const MaxExpandedPaths = 1 << 20

// ExpandPaths expands shard range patterns in a path. Both brace ranges
// ("audio_{0..3}.tar") and the shell-safe spelling used in manifests
// ("audio__OP_0..3_CL_.tar") are accepted. Zero-padded bounds keep their width
// ("{000..002}" gives 000, 001, 002). Several ranges in one path expand as a product.
// A path without ranges is returned as is.
func ExpandPaths(pattern string) ([]string, error) {
	p := strings.ReplaceAll(strings.ReplaceAll(pattern, "_OP_", "{"), "_CL_", "}")
	open := strings.IndexByte(p, '{')
	if open < 0 {
		if strings.IndexByte(p, '}') >= 0 {
			return nil, fmt.Errorf("expand %q: unbalanced brace", pattern)
		}
		return []string{pattern}, nil
	}
	closeIdx := strings.IndexByte(p[open:], '}')
	if closeIdx < 0 {
		return nil, fmt.Errorf("expand %q: unbalanced brace", pattern)
	}
	closeIdx += open

	values, err := expandRange(p[open+1 : closeIdx])
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", pattern, err)
	}
	rest, err := ExpandPaths(p[closeIdx+1:])
	if err != nil {
		return nil, err
	}
	if len(values)*len(rest) > MaxExpandedPaths {
		return nil, fmt.Errorf("expand %q: more than %d paths", pattern, MaxExpandedPaths)
	}
	prefix := p[:open]
	out := make([]string, 0, len(values)*len(rest))
	for _, v := range values {
		for _, r := range rest {
			out = append(out, prefix+v+r)
		}
	}
	return out, nil
}

func expandRange(body string) ([]string, error) {
	lo, hi, ok := strings.Cut(body, "..")
	if !ok {
		return nil, fmt.Errorf("range %q: want {a..b}", body)
	}
	start, err := strconv.Atoi(lo)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", body, err)
	}
	end, err := strconv.Atoi(hi)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", body, err)
	}
	if end < start {
		return nil, fmt.Errorf("range %q: end before start", body)
	}
	if end-start >= MaxExpandedPaths {
		return nil, fmt.Errorf("range %q: more than %d values", body, MaxExpandedPaths)
	}
	width := 0
	if len(lo) > 1 && lo[0] == '0' {
		width = len(lo)
	}
	out := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, fmt.Sprintf("%0*d", width, i))
	}
	return out, nil
}

// ExpandAll expands every pattern and concatenates the results in order.
func ExpandAll(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		expanded, err := ExpandPaths(p)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}
