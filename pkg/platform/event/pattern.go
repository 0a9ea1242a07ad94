package event

import "strings"

// MatchPattern reports whether pattern matches eventType. A bare "*"
// matches every type. Otherwise the pattern is matched segment by
// segment against the dot-separated type: a trailing "*" segment
// matches exactly one remaining segment, so "a.*" matches "a.b" but
// neither "a" nor "a.b.c".
func MatchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	patternSegs := strings.Split(pattern, ".")
	typeSegs := strings.Split(eventType, ".")
	if len(patternSegs) != len(typeSegs) {
		return false
	}
	for i, seg := range patternSegs {
		if seg == "*" {
			continue
		}
		if seg != typeSegs[i] {
			return false
		}
	}
	return true
}
