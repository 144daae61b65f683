package util

import "strings"

// PathHasPrefix reports whether path equals prefix or lies below it on a
// segment boundary: "/api/users" covers "/api/users" and "/api/users/1"
// but not "/api/usersx". A trailing slash on prefix is ignored.
func PathHasPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// PrefixesOverlap reports whether either prefix covers the other.
func PrefixesOverlap(a, b string) bool {
	return PathHasPrefix(a, b) || PathHasPrefix(b, a)
}

// HasDotSegment reports whether path contains a "." or ".." segment. Slash
// and backslash both separate segments.
func HasDotSegment(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}
