package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCapacityEviction(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	var evicted []string
	c.OnEvict(func(k string, _ int) { evicted = append(evicted, k) })

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatal("recently read entry was evicted")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("unexpected evictions %v", evicted)
	}
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
}

func TestLRUSlidingExpiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	clock.Advance(40 * time.Second)
	c.Get("a")
	clock.Advance(40 * time.Second)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("read should have extended the entry")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("idle entry should have expired")
	}
}

func TestLRUCleanExpired(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	var evicted int
	c.OnEvict(func(string, int) { evicted++ })
	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(2 * time.Minute)
	c.Set("c", 3)

	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if evicted != 2 {
		t.Fatalf("expected 2 eviction callbacks, got %d", evicted)
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "c" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestLRUGetOrCreate(t *testing.T) {
	c := NewLRUCache[*int](4, time.Hour)
	var builds int32

	var wg sync.WaitGroup
	results := make([]*int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCreate("owner", func() (*int, error) {
				atomic.AddInt32(&builds, 1)
				n := 7
				return &n, nil
			})
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	if builds != 1 {
		t.Fatalf("expected one build, got %d", builds)
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatal("callers received different values")
		}
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("broken", func() (*int, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := c.Get("broken"); ok {
		t.Fatal("failed build must not be cached")
	}
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", 1)
	clock.Advance(time.Hour)

	m := NewManager()
	m.Register(c)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
}
