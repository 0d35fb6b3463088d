package reroute

import (
	"net/http"
	"time"
)

// Rule is an admin-authored redirect from an exact source path.
type Rule struct {
	ID          string `yaml:"id,omitempty"`
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	// StatusCode is stored as "301" or "302".
	StatusCode string `yaml:"statusCode"`
	// OpenInNewTab is a client hint only. It never changes resolution.
	OpenInNewTab bool `yaml:"openInNewTab,omitempty"`
}

// HTTPStatus maps the stored status code. Anything but "301" is temporary.
func (r Rule) HTTPStatus() int {
	if r.StatusCode == "301" {
		return http.StatusMovedPermanently
	}
	return http.StatusFound
}

// RuleSet is an immutable snapshot of every rule, in stored order.
type RuleSet struct {
	Rules []Rule

	// FetchedAt is zero until the first successful fetch.
	FetchedAt time.Time

	// Fingerprint is a blake3 digest over the rules, used to tell
	// whether a refresh changed anything.
	Fingerprint [32]byte
}

func (rs RuleSet) Len() int { return len(rs.Rules) }

// Lookup returns the first rule whose source equals path exactly.
func (rs RuleSet) Lookup(path string) (Rule, bool) {
	for _, r := range rs.Rules {
		if r.Source == path {
			return r, true
		}
	}
	return Rule{}, false
}

type OutcomeKind int

const (
	PassThrough OutcomeKind = iota
	Redirect
)

func (k OutcomeKind) String() string {
	switch k {
	case Redirect:
		return "redirect"
	default:
		return "pass"
	}
}

// Outcome is what the resolver decided for one request path.
type Outcome struct {
	Kind        OutcomeKind
	Destination string
	StatusCode  int
}

func (o Outcome) IsRedirect() bool { return o.Kind == Redirect }
