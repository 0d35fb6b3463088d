package reroute

import (
	"strings"

	radix "github.com/armon/go-radix"
)

// DefaultExclude lists path prefixes that never reach the resolver: API
// routes, framework static output, image optimizer, favicon.
var DefaultExclude = []string{"/api", "/_next/static", "/_next/image", "/favicon.ico"}

type excludeMatcher struct {
	tree *radix.Tree
}

func newExcludeMatcher(prefixes []string) *excludeMatcher {
	t := radix.New()
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t.Insert(p, struct{}{})
	}
	return &excludeMatcher{tree: t}
}

// Match reports the longest configured prefix of path, if any.
func (m *excludeMatcher) Match(path string) (string, bool) {
	if m.tree.Len() == 0 {
		return "", false
	}
	prefix, _, ok := m.tree.LongestPrefix(path)
	return prefix, ok
}
