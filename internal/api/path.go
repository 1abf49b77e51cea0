package api

import "strings"

// RootContext is the universal fallback context, matched after every other API
const RootContext = "/"

// MatchAPIPath reports whether path falls under context. The path may carry a
// query string. The root context matches every path.
func MatchAPIPath(path, context string) bool {
	if context == RootContext || path == context {
		return true
	}
	return strings.HasPrefix(path, context+"/") || strings.HasPrefix(path, context+"?")
}

// SegmentCount returns the number of non-empty path segments in context
func SegmentCount(context string) int {
	count := 0
	for _, segment := range strings.Split(context, "/") {
		if segment != "" {
			count++
		}
	}
	return count
}

// JoinPath appends segment to base with exactly one separating slash
func JoinPath(base, segment string) string {
	return TrimTrailingSlashes(base) + "/" + TrimSlashes(segment)
}

// TrimSlashes removes leading and trailing slashes
func TrimSlashes(s string) string {
	return strings.Trim(s, "/")
}

// TrimTrailingSlashes removes every trailing slash
func TrimTrailingSlashes(s string) string {
	return strings.TrimRight(s, "/")
}

// stripQuery returns the part of path before '?'
func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
