package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"goflare.io/hearth/internal/cache"
	"goflare.io/hearth/internal/pool"
	"goflare.io/hearth/internal/store"
)

// fakeBackend is a map-backed stand-in for the durable store, shared
// by every connection the fake dialer hands out. It counts calls and
// injects failures per operation.
type fakeBackend struct {
	mu   sync.Mutex
	data map[string][]byte

	getCalls, putCalls, deleteCalls int
	failGet, failPut, failDelete    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string][]byte)}
}

func (b *fakeBackend) set(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = []byte(value)
}

func (b *fakeBackend) gets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getCalls
}

type fakeConn struct {
	backend *fakeBackend
}

func (c *fakeConn) Get(ctx context.Context, key string) ([]byte, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getCalls++
	if b.failGet != nil {
		return nil, b.failGet
	}
	value, ok := b.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (c *fakeConn) Put(ctx context.Context, key string, value []byte) error {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putCalls++
	if b.failPut != nil {
		return b.failPut
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	b.data[key] = stored
	return nil
}

func (c *fakeConn) Delete(ctx context.Context, key string) error {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteCalls++
	if b.failDelete != nil {
		return b.failDelete
	}
	if _, ok := b.data[key]; !ok {
		return store.ErrNotFound
	}
	delete(b.data, key)
	return nil
}

func (c *fakeConn) Close() error { return nil }

type fakeDialer struct {
	backend *fakeBackend
}

func (d *fakeDialer) Dial(ctx context.Context) (store.Conn, error) {
	return &fakeConn{backend: d.backend}, nil
}

func newTestCoordinator(t *testing.T, capacity, poolSize int) (*Coordinator, *fakeBackend) {
	t.Helper()

	backend := newFakeBackend()
	c, err := cache.New(capacity)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	p, err := pool.New(context.Background(), &fakeDialer{backend: backend}, poolSize, nil, nil)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	return New(c, p, nil, nil), backend
}

func TestReadThroughIdempotence(t *testing.T) {
	coord, backend := newTestCoordinator(t, 4, 2)
	backend.set("k", "v")
	ctx := context.Background()

	first := coord.Get(ctx, "k")
	if first.Outcome != GetHit || first.Source != SourceStore {
		t.Fatalf("first get = %+v, want store hit", first)
	}
	if string(first.Value) != "v" {
		t.Fatalf("first get value = %q, want v", first.Value)
	}

	second := coord.Get(ctx, "k")
	if second.Outcome != GetHit || second.Source != SourceCache {
		t.Fatalf("second get = %+v, want cache hit", second)
	}
	if string(second.Value) != "v" {
		t.Fatalf("second get value = %q, want v", second.Value)
	}
	if n := backend.gets(); n != 1 {
		t.Fatalf("store reads = %d, want 1", n)
	}

	s := coord.Stats(ctx)
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("stats = %+v, want exactly one hit and one miss", s)
	}
}

func TestGetMissCreatesNothing(t *testing.T) {
	coord, backend := newTestCoordinator(t, 4, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res := coord.Get(ctx, "absent"); res.Outcome != GetMiss {
			t.Fatalf("get %d = %+v, want miss", i, res)
		}
	}
	// No negative caching: both misses must reach the store.
	if n := backend.gets(); n != 2 {
		t.Fatalf("store reads = %d, want 2", n)
	}
	if s := coord.Stats(ctx); s.Items != 0 {
		t.Fatalf("items = %d after misses, want 0", s.Items)
	}
}

func TestWriteThenReadConsistency(t *testing.T) {
	coord, backend := newTestCoordinator(t, 4, 2)
	ctx := context.Background()

	if res := coord.Put(ctx, "k", []byte("v")); res.Outcome != PutOK {
		t.Fatalf("put = %+v, want ok", res)
	}

	res := coord.Get(ctx, "k")
	if res.Outcome != GetHit || res.Source != SourceCache {
		t.Fatalf("get after put = %+v, want cache hit", res)
	}
	if string(res.Value) != "v" {
		t.Fatalf("get value = %q, want v", res.Value)
	}
	if n := backend.gets(); n != 0 {
		t.Fatalf("store reads = %d, want 0", n)
	}
}

func TestWriteFailureIsolation(t *testing.T) {
	coord, backend := newTestCoordinator(t, 4, 2)
	backend.failPut = errors.New("disk full")
	ctx := context.Background()

	res := coord.Put(ctx, "k", []byte("v"))
	if res.Outcome != PutStoreError {
		t.Fatalf("put = %+v, want store error", res)
	}
	if !errors.Is(res.Err, backend.failPut) {
		t.Fatalf("put err = %v, want the store error surfaced verbatim", res.Err)
	}

	// The failed value must not be served from the cache.
	if got := coord.Get(ctx, "k"); got.Outcome != GetMiss {
		t.Fatalf("get after failed put = %+v, want miss", got)
	}
}

func TestDeleteInvalidatesOnStoreError(t *testing.T) {
	coord, backend := newTestCoordinator(t, 4, 2)
	ctx := context.Background()

	coord.Put(ctx, "k", []byte("v"))

	backend.failDelete = errors.New("timeout")
	res := coord.Delete(ctx, "k")
	if res.Outcome != DeleteStoreError {
		t.Fatalf("delete = %+v, want store error", res)
	}

	// The cache entry is purged even though the store delete failed, so
	// the next read goes to the (still populated) store and repopulates.
	reads := backend.gets()
	got := coord.Get(ctx, "k")
	if got.Outcome != GetHit || got.Source != SourceStore {
		t.Fatalf("get after failed delete = %+v, want store hit", got)
	}
	if backend.gets() != reads+1 {
		t.Fatal("get after failed delete did not reach the store")
	}
	if string(got.Value) != "v" {
		t.Fatalf("value = %q, want v (a cache-cold read, not data loss)", got.Value)
	}
}

func TestDeleteNotFoundStillInvalidates(t *testing.T) {
	coord, backend := newTestCoordinator(t, 4, 2)
	ctx := context.Background()

	coord.Put(ctx, "k", []byte("v1"))

	backend.failDelete = store.ErrNotFound
	if res := coord.Delete(ctx, "k"); res.Outcome != DeleteNotFound {
		t.Fatalf("delete = %+v, want not found", res)
	}

	// Never an immediate cache hit after a delete.
	reads := backend.gets()
	coord.Get(ctx, "k")
	if backend.gets() != reads+1 {
		t.Fatal("get after delete was served from the cache")
	}
}

func TestDeleteOK(t *testing.T) {
	coord, _ := newTestCoordinator(t, 4, 2)
	ctx := context.Background()

	coord.Put(ctx, "k", []byte("v"))
	if res := coord.Delete(ctx, "k"); res.Outcome != DeleteOK {
		t.Fatalf("delete = %+v, want ok", res)
	}
	if res := coord.Get(ctx, "k"); res.Outcome != GetMiss {
		t.Fatalf("get after delete = %+v, want miss", res)
	}
}

func TestGetStoreErrorLeavesCacheUntouched(t *testing.T) {
	coord, backend := newTestCoordinator(t, 4, 2)
	backend.set("k", "v")
	backend.failGet = errors.New("connection reset")
	ctx := context.Background()

	res := coord.Get(ctx, "k")
	if res.Outcome != GetStoreError {
		t.Fatalf("get = %+v, want store error", res)
	}
	if !errors.Is(res.Err, backend.failGet) {
		t.Fatalf("get err = %v, want the store error surfaced verbatim", res.Err)
	}
	if s := coord.Stats(ctx); s.Items != 0 {
		t.Fatalf("items = %d after store error, want 0", s.Items)
	}

	// A failed request must not poison later ones.
	backend.failGet = nil
	if res := coord.Get(ctx, "k"); res.Outcome != GetHit {
		t.Fatalf("get after recovery = %+v, want hit", res)
	}
}

func TestEvictionFlowsThroughCoordinator(t *testing.T) {
	// capacity=2; put a, b, c => a evicted; get(a) misses the cache and
	// read-throughs from the store.
	coord, backend := newTestCoordinator(t, 2, 2)
	ctx := context.Background()

	coord.Put(ctx, "a", []byte("1"))
	coord.Put(ctx, "b", []byte("2"))
	coord.Put(ctx, "c", []byte("3"))

	got := coord.Get(ctx, "a")
	if got.Outcome != GetHit || got.Source != SourceStore {
		t.Fatalf("get a = %+v, want store hit after eviction", got)
	}
	if n := backend.gets(); n != 1 {
		t.Fatalf("store reads = %d, want 1", n)
	}
	for key, want := range map[string]string{"b": "2", "c": "3"} {
		res := coord.Get(ctx, key)
		if res.Outcome != GetHit || string(res.Value) != want {
			t.Fatalf("get %s = %+v, want cache hit %q", key, res, want)
		}
	}
}

func TestConcurrentOperations(t *testing.T) {
	const (
		capacity   = 16
		goroutines = 8
		opsPerG    = 500
	)

	coord, _ := newTestCoordinator(t, capacity, 4)
	ctx := context.Background()

	// Values are a pure function of the key, so any served hit has
	// exactly one correct answer regardless of interleaving.
	valueFor := func(key string) string { return "val-" + key }

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < opsPerG; i++ {
				key := fmt.Sprintf("key-%d", (g*opsPerG+i)%32)
				switch i % 5 {
				case 0:
					coord.Put(ctx, key, []byte(valueFor(key)))
				case 1:
					coord.Delete(ctx, key)
				default:
					res := coord.Get(ctx, key)
					if res.Outcome == GetHit && string(res.Value) != valueFor(key) {
						panic(fmt.Sprintf("got %q for %q", res.Value, key))
					}
				}
			}
		}(g)
	}
	wg.Wait()

	if s := coord.Stats(ctx); s.Items > capacity {
		t.Fatalf("items = %d exceeds capacity %d", s.Items, capacity)
	}
}
