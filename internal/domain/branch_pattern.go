package domain

import "github.com/bmatcuk/doublestar/v4"

// BranchMatchesPattern reports whether branch matches any of patterns.
// A bare "*" matches every branch; other patterns are slash-aware globs, so
// "feature/*" matches one level and "feature/**" matches any depth.
func BranchMatchesPattern(branch string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "*" {
			return true
		}
		if ok, err := doublestar.Match(pattern, branch); err == nil && ok {
			return true
		}
	}
	return false
}
