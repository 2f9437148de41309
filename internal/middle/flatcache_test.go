package middle

import (
	"path/filepath"
	"testing"
)

func TestFlatNodeCacheSetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")
	c, err := NewFlatNodeCache(path)
	if err != nil {
		t.Fatalf("NewFlatNodeCache: %v", err)
	}
	defer c.Close()

	c.Set(42, 52.5200, 13.4050)
	lat, lon, ok := c.Get(42)
	if !ok {
		t.Fatalf("expected hit for id 42")
	}
	if diff := lat - 52.5200; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("lat mismatch: got %v", lat)
	}
	if diff := lon - 13.4050; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("lon mismatch: got %v", lon)
	}

	if _, _, ok := c.Get(43); ok {
		t.Fatalf("expected miss for never-written id")
	}
}

func TestFlatNodeCacheDeleteWritesSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")
	c, err := NewFlatNodeCache(path)
	if err != nil {
		t.Fatalf("NewFlatNodeCache: %v", err)
	}
	defer c.Close()

	c.Set(1, 1.0, 1.0)
	c.Delete(1)
	if _, _, ok := c.Get(1); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestFlatNodeCacheGetListPartialMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")
	c, err := NewFlatNodeCache(path)
	if err != nil {
		t.Fatalf("NewFlatNodeCache: %v", err)
	}
	defer c.Close()

	c.Set(1, 10, 20)
	c.Set(3, 30, 40)

	ids := []int64{1, 2, 3}
	out := make([]NodeCoord, len(ids))
	n := c.GetList(out, ids)
	if n != 2 {
		t.Fatalf("expected 2 hits, got %d", n)
	}
	if out[0].ID != 1 || out[0].Lat != 10 {
		t.Fatalf("unexpected out[0]: %+v", out[0])
	}
	if out[1] != (NodeCoord{}) {
		t.Fatalf("expected zero-value placeholder for missing id 2, got %+v", out[1])
	}
	if out[2].ID != 3 || out[2].Lat != 30 {
		t.Fatalf("unexpected out[2]: %+v", out[2])
	}
}

func TestFlatNodeCacheReopenInAppendModePreservesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.cache")
	c, err := NewFlatNodeCache(path)
	if err != nil {
		t.Fatalf("NewFlatNodeCache: %v", err)
	}
	c.Set(7, 1.5, 2.5)
	if err := c.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenFlatNodeCache(path)
	if err != nil {
		t.Fatalf("OpenFlatNodeCache: %v", err)
	}
	defer reopened.Close()

	if !reopened.Appending() {
		t.Fatalf("expected Appending() to report true for a reopened cache")
	}
	lat, lon, ok := reopened.Get(7)
	if !ok || lat != 1.5 || lon != 2.5 {
		t.Fatalf("expected prior write to survive reopen, got (%v,%v,%v)", lat, lon, ok)
	}

	reopened.Set(8, 3.5, 4.5)
	lat, lon, ok = reopened.Get(7)
	if !ok || lat != 1.5 {
		t.Fatalf("expected original write still present after new write, got (%v,%v,%v)", lat, lon, ok)
	}
}
