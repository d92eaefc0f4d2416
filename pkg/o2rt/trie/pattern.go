package trie

import "strings"

// Pattern is a compiled OSC-style address segment pattern:
// '*' matches any run of non-'/' characters, '?' matches a single
// non-'/' character, '[set]' matches a character set (optionally negated
// by a leading '!'), and '{a,b}' is a comma-separated alternation. A
// segment with none of these is a literal label and matches only itself.
//
// Compilation expands the (at most one expected) brace alternation into a
// small set of character-level variants once, at dispatch time for the
// segment being matched, so every child label at a given trie level is
// tested against the same compiled variants instead of re-parsing the
// pattern per child.
type Pattern struct {
	literal  bool
	variants []string
}

// Compile builds a Pattern from a single path segment.
func Compile(segment string) *Pattern {
	if !hasMeta(segment) {
		return &Pattern{literal: true, variants: []string{segment}}
	}
	return &Pattern{variants: expandBraces(segment)}
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[]{}")
}

// Match reports whether label satisfies the pattern.
func (p *Pattern) Match(label string) bool {
	if p.literal {
		return p.variants[0] == label
	}
	for _, v := range p.variants {
		if matchCharLevel(v, label) {
			return true
		}
	}
	return false
}

// expandBraces expands the first (only) "{a,b,c}" group in pattern into
// one variant per alternative, leaving everything else untouched. Nested
// braces are not supported.
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[start:], '}')
	if end < 0 {
		return []string{pattern}
	}
	end += start
	prefix := pattern[:start]
	suffix := pattern[end+1:]
	alts := strings.Split(pattern[start+1:end], ",")
	variants := make([]string, 0, len(alts))
	for _, a := range alts {
		variants = append(variants, prefix+a+suffix)
	}
	return variants
}

// matchCharLevel matches a pattern (with '*', '?', '[set]' but no braces,
// already expanded) against label using a small recursive matcher.
func matchCharLevel(pattern, label string) bool {
	return matchAt(pattern, label, 0, 0)
}

func matchAt(pattern, label string, pi, li int) bool {
	for pi < len(pattern) {
		switch pattern[pi] {
		case '*':
			// Try consuming 0..rest of label; '*' never crosses '/', and
			// labels themselves never contain '/', so any suffix qualifies.
			for l := li; l <= len(label); l++ {
				if matchAt(pattern, label, pi+1, l) {
					return true
				}
			}
			return false
		case '?':
			if li >= len(label) {
				return false
			}
			pi++
			li++
		case '[':
			close := strings.IndexByte(pattern[pi:], ']')
			if close < 0 {
				return false
			}
			close += pi
			if li >= len(label) {
				return false
			}
			if !matchSet(pattern[pi+1:close], label[li]) {
				return false
			}
			pi = close + 1
			li++
		default:
			if li >= len(label) || pattern[pi] != label[li] {
				return false
			}
			pi++
			li++
		}
	}
	return li == len(label)
}

func matchSet(set string, c byte) bool {
	negate := false
	if len(set) > 0 && set[0] == '!' {
		negate = true
		set = set[1:]
	}
	matched := false
	for i := 0; i < len(set); i++ {
		if i+2 < len(set) && set[i+1] == '-' {
			if set[i] <= c && c <= set[i+2] {
				matched = true
			}
			i += 2
		} else if set[i] == c {
			matched = true
		}
	}
	if negate {
		return !matched
	}
	return matched
}
