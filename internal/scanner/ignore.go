package scanner

import (
	"path"
	"strings"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	pattern     string // Original pattern
	isNegation  bool   // Pattern starts with !
	isDirectory bool   // Pattern ends with /
	isAnchored  bool   // Pattern starts with / or contains an inner /
	segments    []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAnchored = true
		pattern = pattern[1:]
	} else if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		p.isAnchored = true
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// IsNegation returns true if this pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// Match reports whether the slash-separated relative path is matched by
// the pattern. Directory patterns match every path below the directory.
func (p IgnorePattern) Match(rel string) bool {
	segs := strings.Split(strings.Trim(rel, "/"), "/")

	if p.isDirectory {
		// The last segment is a file; only its parents can match.
		for end := len(segs) - 1; end > 0; end-- {
			if p.matchFrom(segs[:end], true) {
				return true
			}
		}
		return false
	}
	return p.matchFrom(segs, false)
}

// matchFrom matches the pattern against a suffix of segs, or against all of
// segs when the pattern is anchored. A prefix match is enough when the
// pattern names a directory containing the path.
func (p IgnorePattern) matchFrom(segs []string, exact bool) bool {
	if p.isAnchored {
		return globSegments(p.segments, segs, exact)
	}
	for start := 0; start < len(segs); start++ {
		if globSegments(p.segments, segs[start:], exact) {
			return true
		}
	}
	return false
}

// globSegments matches pattern segments against path segments. "**"
// matches any number of segments. Unless exact, trailing path segments
// may remain, so that a pattern naming a directory matches its contents.
func globSegments(pattern, segs []string, exact bool) bool {
	if len(pattern) == 0 {
		return len(segs) == 0 || !exact
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if globSegments(pattern[1:], segs[i:], exact) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
		return false
	}
	return globSegments(pattern[1:], segs[1:], exact)
}

// ignored applies patterns in order; later negations override earlier
// matches.
func ignored(rel string, patterns []IgnorePattern) bool {
	out := false
	for _, p := range patterns {
		if p.Match(rel) {
			out = !p.IsNegation()
		}
	}
	return out
}
