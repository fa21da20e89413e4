package query

import "strings"

// Key identifies a cached resource. Related resources share a leading
// segment so they can be invalidated together.
type Key []string

// String renders the key for logs and metric labels.
func (k Key) String() string {
	return strings.Join(k, ".")
}

// HasPrefix reports whether every segment of prefix leads k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, seg := range prefix {
		if k[i] != seg {
			return false
		}
	}
	return true
}

func (k Key) id() string {
	return strings.Join(k, "\x00")
}
