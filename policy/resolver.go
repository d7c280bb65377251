package policy

import "time"

// Resolver picks the best-matching route group for a request path.
type Resolver struct {
	groups []*GroupBuilder
}

// NewResolver creates a Resolver over groups.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	return &Resolver{groups: groups}
}

// Resolve finds the group for path.
//
// Exact rules beat prefix rules, which beat regex rules. Among rules of the
// same kind the longer match wins, and on a full tie the group registered
// first wins. ok is false when nothing matches.
func (res *Resolver) Resolve(path string) (group string, pol *Policy, ok bool) {
	if res == nil {
		return "", nil, false
	}
	bestKind := matchKind(-1)
	bestLen := -1

	for _, g := range res.groups {
		for _, r := range g.rules {
			matched, n := r.match(path)
			if !matched {
				continue
			}
			if bestKind < 0 || r.kind < bestKind || (r.kind == bestKind && n > bestLen) {
				bestKind, bestLen = r.kind, n
				group, pol, ok = g.name, g.policy, true
			}
		}
	}
	return group, pol, ok
}

// Default returns the groups the API is served with. Sign-in routes share a
// tight per-client limit; everything else under /api gets the general one.
func Default(general, authLimit RateLimitRule, storeTimeout time.Duration) *Resolver {
	authLimit.Bucket = "auth"
	general.Bucket = "general"
	return NewResolver(
		Group("auth-public").
			Exact("/api/auth/generate-url", "/api/auth/callback").
			Policy(Policy{RateLimit: &authLimit}),
		Group("auth").
			Prefix("/api/auth/").
			Policy(Policy{RateLimit: &authLimit, AuthRequired: true}),
		Group("store").
			Prefix("/api/store/").
			Policy(Policy{RateLimit: &general, AuthRequired: true, Timeout: storeTimeout}),
		Group("game-data").
			Prefix("/api/game-data/").
			Policy(Policy{RateLimit: &general}),
		Group("api").
			Prefix("/api/").
			Policy(Policy{RateLimit: &general}),
	)
}
