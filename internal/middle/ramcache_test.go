package middle

import "testing"

func TestRAMCacheSetGetDense(t *testing.T) {
	opts := Options{CacheMB: 64, AllocStrategy: AllocChunkwise}
	c := NewRAMCache(opts)
	c.Set(1, 52.5, 13.4, nil)
	lat, lon, ok := c.Get(1)
	if !ok || lat != 52.5 || lon != 13.4 {
		t.Fatalf("expected hit (52.5,13.4), got (%v,%v,%v)", lat, lon, ok)
	}
	if _, _, ok := c.Get(2); ok {
		t.Fatalf("expected miss for unset id")
	}
}

func TestRAMCacheSetGetSparse(t *testing.T) {
	opts := Options{CacheMB: 64, AllocStrategy: AllocSparse}
	c := NewRAMCache(opts)
	c.Set(1<<40, 1, 2, nil)
	lat, lon, ok := c.Get(1 << 40)
	if !ok || lat != 1 || lon != 2 {
		t.Fatalf("expected hit, got (%v,%v,%v)", lat, lon, ok)
	}
}

func TestRAMCacheLossyEvictsUnderPressure(t *testing.T) {
	opts := Options{CacheMB: 0, AllocStrategy: AllocChunkwise, AllocLossy: true}
	c := NewRAMCache(opts)
	// capacityBytes degrades to 1 byte when CacheMB<=0, so every chunk
	// insert should trigger eviction of the previous one.
	c.Set(1, 1, 1, nil)
	c.Set(1<<20, 2, 2, nil)
	if _, _, ok := c.Get(1); ok {
		t.Fatalf("expected id 1's chunk to have been evicted")
	}
	if lat, lon, ok := c.Get(1 << 20); !ok || lat != 2 || lon != 2 {
		t.Fatalf("expected most recent insert to survive, got (%v,%v,%v)", lat, lon, ok)
	}
}

func TestRAMCacheNonLossyFailsOverCapacity(t *testing.T) {
	opts := Options{CacheMB: 0, AllocStrategy: AllocChunkwise}
	c := NewRAMCache(opts)
	// capacityBytes degrades to 1 byte when CacheMB<=0; a non-lossy cache
	// must refuse the allocation rather than silently growing past it.
	if err := c.Set(1, 1, 1, nil); err == nil {
		t.Fatalf("expected error when non-lossy cache is set over capacity")
	}
	if _, _, ok := c.Get(1); ok {
		t.Fatalf("expected no chunk to have been allocated after a refused Set")
	}
}

func TestRAMCacheNonLossyOverwriteNeverFails(t *testing.T) {
	opts := Options{CacheMB: 64, AllocStrategy: AllocChunkwise}
	c := NewRAMCache(opts)
	if err := c.Set(1, 1, 1, nil); err != nil {
		t.Fatalf("unexpected error on first set: %v", err)
	}
	if err := c.Set(1, 2, 2, nil); err != nil {
		t.Fatalf("unexpected error overwriting an id already held by the cache: %v", err)
	}
}

func TestRAMCacheLastWriteWins(t *testing.T) {
	opts := Options{CacheMB: 64, AllocStrategy: AllocChunkwise}
	c := NewRAMCache(opts)
	c.Set(1, 1, 1, nil)
	c.Set(1, 2, 2, nil)
	lat, lon, _ := c.Get(1)
	if lat != 2 || lon != 2 {
		t.Fatalf("expected last write to win, got (%v,%v)", lat, lon)
	}
}
