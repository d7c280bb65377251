package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// defaultHeaderPriority is the ordered list of headers inspected when the
// caller does not provide an explicit HeaderPriority.
var defaultHeaderPriority = []string{"X-Real-IP", "X-Forwarded-For"}

// ClientResolver works out the address of the client behind a request.
type ClientResolver struct {
	trustedProxies []netip.Prefix
	headerPriority []string
}

// NewClientResolver parses the trusted proxy list. headerPriority defaults
// to X-Real-IP then X-Forwarded-For.
func NewClientResolver(trustedProxies, headerPriority []string) (*ClientResolver, error) {
	proxies, err := parsePrefixes(trustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxy: %w", err)
	}
	if len(headerPriority) == 0 {
		headerPriority = defaultHeaderPriority
	}
	return &ClientResolver{trustedProxies: proxies, headerPriority: headerPriority}, nil
}

// ClientIP returns the effective client address of r.
//
// The connection's remote address is used unless it belongs to a trusted
// proxy, in which case the first valid IP among the priority headers wins.
func (c *ClientResolver) ClientIP(r *http.Request) (netip.Addr, bool) {
	remote, ok := parseHostPort(r.RemoteAddr)
	if !ok {
		return netip.Addr{}, false
	}
	if c != nil && matchesAny(remote, c.trustedProxies) {
		if addr, found := addrFromHeaders(r.Header, c.headerPriority); found {
			return addr, true
		}
	}
	return remote, true
}

// Key returns the client address as a string, or "unknown".
func (c *ClientResolver) Key(r *http.Request) string {
	if addr, ok := c.ClientIP(r); ok {
		return addr.String()
	}
	return "unknown"
}

// parseHostPort parses "host:port" or a bare host into an address.
func parseHostPort(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// addrFromHeaders walks the headers in priority order and returns the first
// valid IP. For X-Forwarded-For the left-most entry is the client.
func addrFromHeaders(h http.Header, priority []string) (netip.Addr, bool) {
	for _, key := range priority {
		for _, v := range h.Values(key) {
			for part := range strings.SplitSeq(v, ",") {
				trimmed := strings.TrimSpace(part)
				if trimmed == "" {
					continue
				}
				if ip, err := netip.ParseAddr(trimmed); err == nil {
					return ip.Unmap(), true
				}
			}
		}
	}
	return netip.Addr{}, false
}
