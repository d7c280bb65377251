package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

type fakeSource struct {
	fail         atomic.Bool
	skinCalls    atomic.Int32
	bundleCalls  atomic.Int32
	versionCalls atomic.Int32
}

func (f *fakeSource) Skins(context.Context) ([]Skin, error) {
	f.skinCalls.Add(1)
	if f.fail.Load() {
		return nil, errUpstream
	}
	return []Skin{{UUID: "s1", DisplayName: "Prime Vandal", Levels: []Level{{UUID: "L1"}}}}, nil
}

func (f *fakeSource) Bundles(context.Context) ([]Bundle, error) {
	f.bundleCalls.Add(1)
	if f.fail.Load() {
		return nil, errUpstream
	}
	return []Bundle{{UUID: "b1", DisplayName: "Prime", Description: "Prime collection"}}, nil
}

func (f *fakeSource) Version(context.Context) (Version, error) {
	f.versionCalls.Add(1)
	if f.fail.Load() {
		return Version{}, errUpstream
	}
	return Version{Version: "release-09.00-shipping-1-123", RiotClientBuild: "99.0"}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

type manualTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	chans chan chan time.Time
}

func newManualTimer() *manualTimer {
	return &manualTimer{chans: make(chan chan time.Time, 16)}
}

func (m *manualTimer) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	m.waits = append(m.waits, d)
	m.mu.Unlock()
	m.chans <- ch
	return ch
}

func (m *manualTimer) fire(t *testing.T) {
	t.Helper()
	select {
	case ch := <-m.chans:
		ch <- time.Now()
	case <-time.After(time.Second):
		t.Fatal("loader never armed its timer")
	}
}

func (m *manualTimer) recorded() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.waits...)
}

// stateRecorder collects state transitions and lets tests wait for one.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
	ch     chan State
}

func record(c *Cache) *stateRecorder {
	r := &stateRecorder{ch: make(chan State, 16)}
	c.OnStateChange(func(s State) {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.mu.Unlock()
		r.ch <- s
	})
	return r
}

func (r *stateRecorder) waitFor(t *testing.T, want State) {
	t.Helper()
	for {
		select {
		case s := <-r.ch:
			if s == want {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("state %s never reached", want)
		}
	}
}

func TestSkins_FreshThenCached(t *testing.T) {
	src := &fakeSource{}
	c := New(src)

	skins, f, err := c.Skins(t.Context())
	if err != nil {
		t.Fatalf("Skins: %v", err)
	}
	if f != Fetched || len(skins) != 1 {
		t.Fatalf("got (%d skins, %s), want (1, fetched)", len(skins), f)
	}
	if _, f, _ = c.Skins(t.Context()); f != Fresh {
		t.Fatalf("second read freshness = %s, want fresh", f)
	}
	if n := src.skinCalls.Load(); n != 1 {
		t.Fatalf("upstream called %d times, want 1", n)
	}
}

func TestSkins_StaleOnUpstreamFailure(t *testing.T) {
	clk := newClock()
	src := &fakeSource{}
	c := New(src, WithClock(clk.Now), WithTTL(time.Hour))

	if _, _, err := c.Skins(t.Context()); err != nil {
		t.Fatalf("Skins: %v", err)
	}
	if _, _, err := c.Bundles(t.Context()); err != nil {
		t.Fatalf("Bundles: %v", err)
	}
	clk.Advance(2 * time.Hour)
	src.fail.Store(true)

	skins, f, err := c.Skins(t.Context())
	if err != nil {
		t.Fatalf("Skins: %v", err)
	}
	if f != Stale || !f.Degraded() {
		t.Fatalf("freshness = %s, want stale", f)
	}
	if len(skins) != 1 || skins[0].DisplayName != "Prime Vandal" {
		t.Fatalf("unexpected stale skins %+v", skins)
	}
	bundles, f, err := c.Bundles(t.Context())
	if err != nil || f != Stale || len(bundles) != 1 {
		t.Fatalf("got (%d, %s, %v), want stale bundles", len(bundles), f, err)
	}
	if h := c.Health(); h.Datasets.Skins {
		t.Fatal("expired skins must not count as present")
	}
}

func TestSkins_ErrorWhenNothingCached(t *testing.T) {
	src := &fakeSource{}
	src.fail.Store(true)
	c := New(src)

	if _, _, err := c.Skins(t.Context()); !errors.Is(err, errUpstream) {
		t.Fatalf("got %v, want %v", err, errUpstream)
	}
	if _, _, err := c.Bundles(t.Context()); !errors.Is(err, errUpstream) {
		t.Fatalf("got %v, want %v", err, errUpstream)
	}
}

func TestVersion_FallbackWhenNothingCached(t *testing.T) {
	src := &fakeSource{}
	src.fail.Store(true)
	c := New(src)

	v, f := c.Version(t.Context())
	if v.Version != FallbackVersion {
		t.Fatalf("got %q, want %q", v.Version, FallbackVersion)
	}
	if f != Fallback {
		t.Fatalf("freshness = %s, want fallback", f)
	}
	if c.Health().Datasets.Version {
		t.Fatal("fallback must not count as a cached version")
	}
}

func TestVersion_StalePreferredOverFallback(t *testing.T) {
	clk := newClock()
	src := &fakeSource{}
	c := New(src, WithClock(clk.Now), WithVersionTTL(time.Minute))

	c.Version(t.Context())
	clk.Advance(time.Hour)
	src.fail.Store(true)

	v, f := c.Version(t.Context())
	if v.Version != "release-09.00-shipping-1-123" || f != Stale {
		t.Fatalf("got (%q, %s), want the stale upstream version", v.Version, f)
	}
}

func TestLoad_ReadyAndSnapshot(t *testing.T) {
	c := New(&fakeSource{})
	if c.Snapshot(t.Context()) != nil {
		t.Fatal("Snapshot must be nil before the catalog is ready")
	}
	if err := c.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.State() != Ready {
		t.Fatalf("state = %s, want ready", c.State())
	}
	snap := c.Snapshot(t.Context())
	if snap == nil || len(snap.Skins) != 1 || len(snap.Bundles) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	h := c.Health()
	if !h.Initialized || !h.Datasets.Skins || !h.Datasets.Bundles || !h.Datasets.Version {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestLoader_DegradedThenReadyAfterRetry(t *testing.T) {
	src := &fakeSource{}
	src.fail.Store(true)
	timer := newManualTimer()
	c := New(src,
		WithStartDelay(time.Second),
		WithRetryInterval(30*time.Second),
		WithTimer(timer.After),
	)
	rec := record(c)

	if c.State() != Uninitialized {
		t.Fatalf("state = %s, want uninitialized", c.State())
	}
	c.Start(t.Context())
	t.Cleanup(c.Stop)

	timer.fire(t)
	rec.waitFor(t, Degraded)
	if c.Health().Initialized {
		t.Fatal("degraded catalog must not report initialized")
	}

	src.fail.Store(false)
	timer.fire(t)
	rec.waitFor(t, Ready)

	c.Stop()
	waits := timer.recorded()
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 30*time.Second {
		t.Fatalf("waits = %v, want [1s 30s]", waits)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []State{Loading, Degraded, Loading, Ready}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("states = %v, want %v", rec.states, want)
		}
	}
}

func TestLoad_VersionFailureAloneStillReady(t *testing.T) {
	src := &versionDown{}
	c := New(src)
	if err := c.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.State() != Ready {
		t.Fatalf("state = %s, want ready", c.State())
	}
}

type versionDown struct{ fakeSource }

func (*versionDown) Version(context.Context) (Version, error) {
	return Version{}, errUpstream
}

func TestFreshnessAndStateText(t *testing.T) {
	b, _ := Stale.MarshalText()
	if string(b) != "stale" {
		t.Fatalf("got %q, want %q", b, "stale")
	}
	b, _ = Degraded.MarshalText()
	if string(b) != "degraded" {
		t.Fatalf("got %q, want %q", b, "degraded")
	}
	if Fresh.Degraded() || Fetched.Degraded() || !Fallback.Degraded() {
		t.Fatal("unexpected Degraded classification")
	}
}
