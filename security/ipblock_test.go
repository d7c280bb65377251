package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRequest(remote string, headers ...string) *http.Request {
	r := httptest.NewRequest("GET", "/api/health", nil)
	r.RemoteAddr = remote
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Add(headers[i], headers[i+1])
	}
	return r
}

func mustBlocker(t *testing.T, cfg Config) *IPBlocker {
	t.Helper()
	b, err := NewIPBlocker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDenyList_BlocksMatchingIP(t *testing.T) {
	b := mustBlocker(t, Config{Mode: DenyList, CIDRs: []string{"10.0.0.0/8"}})
	if b.Allow(newRequest("10.1.2.3:5000")) {
		t.Fatal("expected 10.1.2.3 to be blocked by deny list")
	}
}

func TestDenyList_AllowsNonMatchingIP(t *testing.T) {
	b := mustBlocker(t, Config{Mode: DenyList, CIDRs: []string{"10.0.0.0/8"}})
	if !b.Allow(newRequest("192.168.1.1:5000")) {
		t.Fatal("expected 192.168.1.1 to be allowed by deny list")
	}
}

func TestAllowList(t *testing.T) {
	b := mustBlocker(t, Config{Mode: AllowList, CIDRs: []string{"192.168.0.0/16", "203.0.113.7"}})
	if !b.Allow(newRequest("192.168.4.4:1234")) {
		t.Fatal("expected 192.168.4.4 to be allowed")
	}
	if !b.Allow(newRequest("203.0.113.7:1234")) {
		t.Fatal("bare address should act as a /32")
	}
	if b.Allow(newRequest("8.8.8.8:1234")) {
		t.Fatal("expected 8.8.8.8 to be blocked by allow list")
	}
}

func TestTrustedProxy_UsesHeader(t *testing.T) {
	b := mustBlocker(t, Config{
		Mode:           DenyList,
		CIDRs:          []string{"198.51.100.0/24"},
		TrustedProxies: []string{"10.0.0.0/8"},
	})
	if b.Allow(newRequest("10.0.0.1:443", "X-Forwarded-For", "198.51.100.9")) {
		t.Fatal("header IP behind a trusted proxy should be evaluated")
	}
}

func TestUntrustedProxy_IgnoresHeader(t *testing.T) {
	b := mustBlocker(t, Config{
		Mode:  DenyList,
		CIDRs: []string{"198.51.100.0/24"},
	})
	if !b.Allow(newRequest("172.16.0.1:443", "X-Forwarded-For", "198.51.100.9")) {
		t.Fatal("headers from an untrusted peer must be ignored")
	}
}

func TestUnparseableRemote_Denied(t *testing.T) {
	b := mustBlocker(t, Config{Mode: DenyList})
	if b.Allow(newRequest("pipe")) {
		t.Fatal("unknown client must be denied")
	}
}

func TestNewIPBlocker_InvalidEntries(t *testing.T) {
	if _, err := NewIPBlocker(Config{CIDRs: []string{"not-a-cidr"}}); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
	if _, err := NewIPBlocker(Config{TrustedProxies: []string{"nope"}}); err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}

func TestClientResolver(t *testing.T) {
	c, err := NewClientResolver([]string{"127.0.0.1"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"remote only", newRequest("203.0.113.5:9000"), "203.0.113.5"},
		{"x-real-ip first", newRequest("127.0.0.1:9000", "X-Forwarded-For", "198.51.100.1", "X-Real-IP", "198.51.100.2"), "198.51.100.2"},
		{"left-most forwarded", newRequest("127.0.0.1:9000", "X-Forwarded-For", " , 198.51.100.3, 10.0.0.1"), "198.51.100.3"},
		{"garbage header falls back", newRequest("127.0.0.1:9000", "X-Forwarded-For", "junk"), "127.0.0.1"},
		{"ipv6", newRequest("[2001:db8::1]:443"), "2001:db8::1"},
		{"mapped ipv4", newRequest("[::ffff:192.0.2.1]:443"), "192.0.2.1"},
	}
	for _, tt := range tests {
		if got := c.Key(tt.req); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}

	if got := c.Key(newRequest("")); got != "unknown" {
		t.Fatalf("got %q, want %q", got, "unknown")
	}
}

func TestCustomHeaderPriority(t *testing.T) {
	c, err := NewClientResolver([]string{"10.0.0.0/8"}, []string{"CF-Connecting-IP"})
	if err != nil {
		t.Fatal(err)
	}
	r := newRequest("10.0.0.2:80", "X-Real-IP", "198.51.100.1", "CF-Connecting-IP", "198.51.100.7")
	if got := c.Key(r); got != "198.51.100.7" {
		t.Fatalf("got %q, want %q", got, "198.51.100.7")
	}
}
