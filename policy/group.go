// Package policy maps request paths to named route groups, each carrying
// the rate limit, timeout and authentication rules for its routes.
package policy

import (
	"regexp"
	"time"
)

// RateLimitRule allows Rate requests per client within Window.
type RateLimitRule struct {
	Rate   int
	Window time.Duration
	// Bucket names the counter the rule draws from. Groups sharing a
	// Bucket share a limit; empty means the group's own name.
	Bucket string
}

// Policy holds the rules that apply to a matched route group.
type Policy struct {
	RateLimit    *RateLimitRule
	Timeout      time.Duration
	AuthRequired bool
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindRegex                   // lowest priority
)

// rule is a single matching rule inside a group.
type rule struct {
	kind    matchKind
	pattern string         // exact and prefix
	re      *regexp.Regexp // regex
}

// GroupBuilder constructs a route group from matching rules and a policy.
type GroupBuilder struct {
	name   string
	rules  []rule
	policy *Policy
}

// Group starts building a route group.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Name returns the group name.
func (g *GroupBuilder) Name() string { return g.name }

// Exact matches one path.
func (g *GroupBuilder) Exact(paths ...string) *GroupBuilder {
	for _, p := range paths {
		g.rules = append(g.rules, rule{kind: kindExact, pattern: p})
	}
	return g
}

// Prefix matches every path starting with prefix.
func (g *GroupBuilder) Prefix(prefix string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: prefix})
	return g
}

// Regex matches paths against pattern. An invalid pattern panics.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: regexp.MustCompile(pattern)})
	return g
}

// Policy attaches p to the group.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	g.policy = &p
	return g
}
