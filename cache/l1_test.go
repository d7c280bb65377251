package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func mustNewL1(t *testing.T, opts ...L1Option) *L1 {
	t.Helper()
	c, err := NewL1("test", 1000, opts...)
	if err != nil {
		t.Fatalf("NewL1: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

type countingStats struct {
	hits, misses atomic.Int32
}

func (s *countingStats) Hit(string)  { s.hits.Add(1) }
func (s *countingStats) Miss(string) { s.misses.Add(1) }

func TestL1_GetSetDelete(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()

	// Miss returns false.
	_, ok, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}

	if err := c.Set(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	val, ok, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(val) != "v1" {
		t.Fatalf("got %q, want %q", val, "v1")
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Fatal("expected miss after Delete")
	}
}

func TestL1_GetOrSet_LoaderCalledOnce(t *testing.T) {
	stats := &countingStats{}
	c := mustNewL1(t, WithL1Stats(stats))
	ctx := t.Context()

	var calls atomic.Int32
	loader := func(_ context.Context) ([]byte, time.Duration, error) {
		calls.Add(1)
		return []byte("loaded"), time.Minute, nil
	}

	for i := range 2 {
		v, err := c.GetOrSet(ctx, "k", loader)
		if err != nil {
			t.Fatalf("GetOrSet %d: %v", i, err)
		}
		if string(v) != "loaded" {
			t.Fatalf("got %q, want %q", v, "loaded")
		}
	}

	if n := calls.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
	if stats.hits.Load() != 1 || stats.misses.Load() != 1 {
		t.Fatalf("stats: hits=%d misses=%d, want 1/1", stats.hits.Load(), stats.misses.Load())
	}
}

func TestL1_GetOrSet_ConcurrentCallersShareLoad(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()

	release := make(chan struct{})
	var calls atomic.Int32
	loader := func(_ context.Context) ([]byte, time.Duration, error) {
		calls.Add(1)
		<-release
		return []byte("v"), time.Minute, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrSet(ctx, "shared", loader); err != nil {
				t.Errorf("GetOrSet: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 8 {
		t.Fatalf("unexpected loader calls %d", n)
	}
	if _, ok, _ := c.Get(ctx, "shared"); !ok {
		t.Fatal("expected value cached after concurrent load")
	}
}

func TestL1_GetOrSet_DeleteDuringLoadSkipsStore(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan []byte, 1)
	go func() {
		v, err := c.GetOrSet(ctx, "store:p1", func(context.Context) ([]byte, time.Duration, error) {
			close(started)
			<-release
			return []byte("offer"), time.Minute, nil
		})
		if err != nil {
			t.Errorf("GetOrSet: %v", err)
		}
		done <- v
	}()

	<-started
	if err := c.Delete(ctx, "store:p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(release)

	if v := <-done; string(v) != "offer" {
		t.Fatalf("got %q, want %q", v, "offer")
	}
	if _, ok, _ := c.Get(ctx, "store:p1"); ok {
		t.Fatal("load started before Delete was stored after it")
	}
}

func TestL1_GetOrSet_ErrorNotCached(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()
	boom := errors.New("boom")

	_, err := c.GetOrSet(ctx, "k", func(context.Context) ([]byte, time.Duration, error) {
		return nil, 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("failed load must not be cached")
	}
}

func TestL1_TTLExpires(t *testing.T) {
	c := mustNewL1(t)
	ctx := t.Context()

	if err := c.Set(ctx, "ttl", []byte("temp"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// Should be present immediately.
	_, ok, _ := c.Get(ctx, "ttl")
	if !ok {
		t.Fatal("expected hit before TTL")
	}

	// Wait for expiration. Ristretto cleanup may need a bit of extra time.
	time.Sleep(200 * time.Millisecond)

	_, ok, _ = c.Get(ctx, "ttl")
	if ok {
		t.Fatal("expected miss after TTL")
	}
}
