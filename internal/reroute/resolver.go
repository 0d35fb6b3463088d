package reroute

import "time"

// Resolver decides, per request path, whether to redirect.
type Resolver struct {
	cache *Cache
}

func NewResolver(cache *Cache) *Resolver {
	return &Resolver{cache: cache}
}

// Resolve answers from the resident rule set. A stale cache triggers a
// background refresh that this call does not wait for, so only later
// requests see its result.
func (r *Resolver) Resolve(path string, now time.Time) Outcome {
	if r.cache.IsStale(now) {
		r.cache.RefreshAsync()
	}

	rule, ok := r.cache.Current().Lookup(path)
	if !ok {
		return Outcome{Kind: PassThrough}
	}
	return Outcome{
		Kind:        Redirect,
		Destination: rule.Destination,
		StatusCode:  rule.HTTPStatus(),
	}
}
