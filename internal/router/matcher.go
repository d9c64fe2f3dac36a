// Package router resolves an inbound request path to a target group
// and rewrite via longest-prefix-first matching over a declared list
// of rules.
package router

import (
	"errors"
	"sort"
	"strings"
)

// ErrNoRule is returned when no configured rule matches a path. It
// surfaces to callers as a client-visible 404.
var ErrNoRule = errors.New("router: no rule matches path")

// Rule is a single (prefix, rewrite, group) triple as declared in the
// listener-rule configuration. Declared is the rule's position in the
// original configuration order, set by NewMatcher; length ties keep
// that order because NewMatcher sorts stably.
type Rule struct {
	Prefix   string
	Rewrite  string
	Group    string
	Declared int
}

// Matcher holds a precomputed length-descending rule list and resolves
// each request path against it.
type Matcher struct {
	rules []Rule
}

// NewMatcher builds a Matcher from rules in declaration order. Rules
// are sorted by prefix length descending; ties keep declaration order.
func NewMatcher(rules []Rule) *Matcher {
	sorted := make([]Rule, len(rules))
	for i, r := range rules {
		r.Declared = i
		sorted[i] = r
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Matcher{rules: sorted}
}

// Match returns the first rule (in length-descending, declaration-tied
// order) whose prefix matches path, where a match is an exact prefix
// equality or a proper prefix followed by '/' or end-of-string.
func (m *Matcher) Match(path string) (Rule, error) {
	for _, r := range m.rules {
		if prefixMatches(r.Prefix, path) {
			return r, nil
		}
	}
	return Rule{}, ErrNoRule
}

func prefixMatches(prefix, path string) bool {
	if prefix == path {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	// prefix is a proper prefix of path; it must be followed by '/' to
	// count as a match (so "/api" doesn't match "/apiary").
	if prefix == "/" {
		return true
	}
	return len(path) > len(prefix) && path[len(prefix)] == '/'
}

// Rewrite computes the forwarded path: strip rule.Rewrite from path
// (if it is a prefix of path), then join the remainder onto baseURI.
// An empty remainder forwards baseURI (or "/" if baseURI is also
// empty).
func Rewrite(path string, rule Rule, baseURI string) string {
	remainder := path
	if rule.Rewrite != "" && strings.HasPrefix(path, rule.Rewrite) {
		remainder = strings.TrimPrefix(path, rule.Rewrite)
	}
	if remainder == "" {
		if baseURI == "" {
			return "/"
		}
		return baseURI
	}
	if !strings.HasPrefix(remainder, "/") {
		remainder = "/" + remainder
	}
	if baseURI == "" {
		return remainder
	}
	return strings.TrimSuffix(baseURI, "/") + remainder
}
