package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/daffatgi02/valo-apps-backend/api/respond"
	"github.com/daffatgi02/valo-apps-backend/policy"
	"github.com/daffatgi02/valo-apps-backend/ratelimit"
	"github.com/daffatgi02/valo-apps-backend/security"
)

// RateLimitObserver is told about every rejected request.
type RateLimitObserver interface {
	RateLimited(group string)
}

// rateLimitState holds one per-client limiter for every bucket, created
// lazily from the resolved policies.
type rateLimitState struct {
	resolver *policy.Resolver
	clients  *security.ClientResolver
	obs      RateLimitObserver

	mu      sync.Mutex
	buckets map[string]*ratelimit.Keyed
}

func (s *rateLimitState) limiterFor(path string) (string, *policy.RateLimitRule, *ratelimit.Keyed) {
	name, pol, ok := s.resolver.Resolve(path)
	if !ok || pol == nil || pol.RateLimit == nil || pol.RateLimit.Rate <= 0 {
		return "", nil, nil
	}
	rl := pol.RateLimit
	bucket := rl.Bucket
	if bucket == "" {
		bucket = name
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.buckets[bucket]; ok {
		return bucket, rl, k
	}
	k := ratelimit.NewKeyed("ratelimit_"+bucket, rl.Rate, rl.Window)
	s.buckets[bucket] = k
	return bucket, rl, k
}

// RateLimit rejects a client that exceeded the rate limit of the route
// group it is calling with 429. Routes without a RateLimit policy are not
// limited. obs may be nil.
func RateLimit(res *policy.Resolver, clients *security.ClientResolver, obs RateLimitObserver) Middleware {
	st := &rateLimitState{resolver: res, clients: clients, obs: obs, buckets: make(map[string]*ratelimit.Keyed)}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket, rule, lim := st.limiterFor(r.URL.Path)
			if lim != nil && !lim.Allow(clients.Key(r)) {
				if st.obs != nil {
					st.obs.RateLimited(bucket)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(rule.Window.Seconds())))
				msg := "Too many requests from this IP, please try again later."
				if bucket == "auth" {
					msg = "Too many authentication attempts, please try again later."
				}
				respond.Fail(w, http.StatusTooManyRequests, "RATE_LIMITED", msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
