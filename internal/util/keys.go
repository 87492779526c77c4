package util

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the namespace token from id fragments and the
// components of composite ids.
const Delimiter = ":"

var (
	errEmpty     = errors.New("empty")
	errDelimiter = fmt.Errorf("contains reserved delimiter %q", Delimiter)
	errGlob      = errors.New("contains glob metacharacter")
)

// Join builds namespace or namespace:f1:f2...
func Join(namespace string, fragments ...string) string {
	if len(fragments) == 0 {
		return namespace
	}
	n := len(namespace)
	for _, f := range fragments {
		n += len(Delimiter) + len(f)
	}
	var b strings.Builder
	b.Grow(n)
	b.WriteString(namespace)
	for _, f := range fragments {
		b.WriteString(Delimiter)
		b.WriteString(f)
	}
	return b.String()
}

// Pattern is the scan glob matching every keyed entry of a namespace.
func Pattern(namespace string) string {
	return namespace + Delimiter + "*"
}

// RegionSeparator separates a region name from its keys. Repository keys
// never contain it right after the namespace because fragments can't be
// empty, so region entries and repository entries never collide.
const RegionSeparator = Delimiter + Delimiter

// RegionKey is the remote key of key in region name: name::key.
func RegionKey(name, key string) string {
	return name + RegionSeparator + key
}

// RegionPattern is the scan glob matching every entry of a region.
func RegionPattern(name string) string {
	return name + RegionSeparator + "*"
}

// IsRegionKey reports whether key belongs to the region space of namespace.
func IsRegionKey(namespace, key string) bool {
	return strings.HasPrefix(key, namespace+RegionSeparator)
}

// Namespace returns the token in front of the first delimiter.
func Namespace(key string) string {
	if i := strings.Index(key, Delimiter); i >= 0 {
		return key[:i]
	}
	return key
}

// ValidateToken checks a namespace token. Tokens end up inside SCAN
// patterns, so glob metacharacters are rejected along with the delimiter.
func ValidateToken(s string) error {
	if s == "" {
		return errEmpty
	}
	if strings.Contains(s, Delimiter) {
		return errDelimiter
	}
	if strings.ContainsAny(s, `*?[]\`) {
		return errGlob
	}
	return nil
}

// ValidateFragment checks a single id component.
func ValidateFragment(s string) error {
	if s == "" {
		return errEmpty
	}
	if strings.Contains(s, Delimiter) {
		return errDelimiter
	}
	return nil
}
