// Package security holds the network-level request filters: client address
// resolution behind trusted proxies and CIDR allow/deny lists.
package security

import (
	"fmt"
	"net/http"
	"net/netip"
)

// Mode controls how the CIDR list is interpreted.
type Mode int

const (
	// AllowList only permits IPs that match at least one CIDR.
	AllowList Mode = iota
	// DenyList blocks IPs that match any CIDR and allows all others.
	DenyList
)

// Config holds the configuration for an IPBlocker.
type Config struct {
	Mode           Mode
	CIDRs          []string
	TrustedProxies []string
	HeaderPriority []string
}

// IPBlocker decides whether a client may reach the API.
type IPBlocker struct {
	mode    Mode
	cidrs   []netip.Prefix
	clients *ClientResolver
}

// NewIPBlocker parses cfg up front and fails on any invalid entry.
func NewIPBlocker(cfg Config) (*IPBlocker, error) {
	cidrs, err := parsePrefixes(cfg.CIDRs)
	if err != nil {
		return nil, fmt.Errorf("ipblock: invalid CIDR: %w", err)
	}
	clients, err := NewClientResolver(cfg.TrustedProxies, cfg.HeaderPriority)
	if err != nil {
		return nil, fmt.Errorf("ipblock: %w", err)
	}
	return &IPBlocker{mode: cfg.Mode, cidrs: cidrs, clients: clients}, nil
}

// Clients returns the resolver used to identify callers.
func (b *IPBlocker) Clients() *ClientResolver { return b.clients }

// Allow reports whether r may proceed. A request whose client address
// cannot be determined is denied.
func (b *IPBlocker) Allow(r *http.Request) bool {
	addr, ok := b.clients.ClientIP(r)
	if !ok {
		return false
	}
	matched := matchesAny(addr, b.cidrs)
	switch b.mode {
	case AllowList:
		return matched
	case DenyList:
		return !matched
	default:
		return false
	}
}

func matchesAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parsePrefixes parses CIDR strings. A bare address is a single-host prefix.
func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("%q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p)
	}
	return out, nil
}
