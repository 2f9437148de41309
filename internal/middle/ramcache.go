package middle

// chunkBits controls the size of a dense-strategy chunk: each chunk holds
// coordinates for 2^chunkBits consecutive ids. OSM ids within a continent
// extract arrive in near-contiguous blocks, so a chunk-of-slices layout
// amortizes the per-entry overhead a plain map would pay for every node.
const chunkBits = 13
const chunkSize = 1 << chunkBits
const chunkMask = chunkSize - 1

type coord struct {
	lat, lon float64
	set      bool
}

// RAMCache is the bounded in-memory node coordinate cache (C3, spec.md
// 4.3). Get is a pure hit/miss lookup that never touches disk; Set always
// succeeds in Lossy mode (oldest chunk is evicted), and returns an error
// instead of growing past budget once Strategy is not Lossy and the
// capacity is already spent — per spec.md 4.3, "eviction is disallowed and
// overflow fails the call" for non-lossy strategies.
type RAMCache struct {
	strategy AllocStrategy
	lossy    bool

	capacityBytes int64
	usedBytes     int64

	// Dense/chunkwise storage: chunk id -> coordinate slice.
	chunks   map[int64][]coord
	chunkLRU []int64 // chunk ids in insertion order, used for lossy eviction

	// Sparse storage: id -> coordinate, used verbatim when Strategy is
	// AllocSparse.
	sparse map[int64]coord
}

// NewRAMCache builds a cache honoring the capacity (in MB) and strategy
// from Options.
func NewRAMCache(opts Options) *RAMCache {
	c := &RAMCache{
		strategy:      opts.AllocStrategy,
		lossy:         opts.AllocLossy,
		capacityBytes: int64(opts.CacheMB) * 1024 * 1024,
	}
	if opts.CacheMB <= 0 {
		c.capacityBytes = 1 // degrade to always-over-capacity, effectively disabled
	}
	switch opts.AllocStrategy {
	case AllocSparse:
		c.sparse = make(map[int64]coord)
	default:
		c.chunks = make(map[int64][]coord)
	}
	return c
}

func chunkKey(id int64) (chunkID int64, offset int) {
	return id >> chunkBits, int(id & chunkMask)
}

// Set stores id's coordinates. tags are accepted for interface symmetry
// with the store-level Set but are ignored at this level (spec.md 4.3).
// Overwriting an id already held by the cache never fails, since it does
// not grow memory use; allocating new storage past capacity fails unless
// the cache is Lossy, in which case the oldest chunk is evicted instead.
func (c *RAMCache) Set(id int64, lat, lon float64, _ Tags) error {
	if c.strategy == AllocSparse {
		if _, exists := c.sparse[id]; !exists {
			if !c.lossy && c.usedBytes+sizeOfCoordEntry > c.capacityBytes {
				return newError(StoreError, "ram cache capacity exceeded", nil)
			}
			c.usedBytes += int64(sizeOfCoordEntry)
		}
		c.sparse[id] = coord{lat: lat, lon: lon, set: true}
		c.evictIfNeeded()
		return nil
	}

	chunkID, offset := chunkKey(id)
	chunk, ok := c.chunks[chunkID]
	if !ok {
		if !c.lossy && c.usedBytes+int64(chunkSize*sizeOfCoordEntry) > c.capacityBytes {
			return newError(StoreError, "ram cache capacity exceeded", nil)
		}
		chunk = make([]coord, chunkSize)
		c.chunks[chunkID] = chunk
		c.chunkLRU = append(c.chunkLRU, chunkID)
		c.usedBytes += int64(chunkSize * sizeOfCoordEntry)
	}
	chunk[offset] = coord{lat: lat, lon: lon, set: true}
	c.evictIfNeeded()
	return nil
}

// Get returns id's coordinates and true on a cache hit; false on a miss.
// Get never blocks on I/O.
func (c *RAMCache) Get(id int64) (lat, lon float64, ok bool) {
	if c.strategy == AllocSparse {
		v, found := c.sparse[id]
		if !found || !v.set {
			return 0, 0, false
		}
		return v.lat, v.lon, true
	}

	chunkID, offset := chunkKey(id)
	chunk, found := c.chunks[chunkID]
	if !found || !chunk[offset].set {
		return 0, 0, false
	}
	return chunk[offset].lat, chunk[offset].lon, true
}

// sizeOfCoordEntry approximates per-entry cost for capacity accounting
// (two float64s plus bookkeeping).
const sizeOfCoordEntry = 24

// evictIfNeeded frees memory when over budget and the cache is Lossy. In
// chunk mode it drops the oldest chunks, always keeping the newest one; in
// sparse mode it deletes entries in map iteration order, which is arbitrary
// and may include the entry just set. Non-lossy overflow is refused
// earlier, in Set, so this is only ever a no-op for non-lossy caches.
func (c *RAMCache) evictIfNeeded() {
	if !c.lossy || c.usedBytes <= c.capacityBytes {
		return
	}
	if c.strategy == AllocSparse {
		for id := range c.sparse {
			delete(c.sparse, id)
			c.usedBytes -= sizeOfCoordEntry
			if c.usedBytes <= c.capacityBytes {
				return
			}
		}
		return
	}
	for len(c.chunkLRU) > 1 && c.usedBytes > c.capacityBytes {
		oldest := c.chunkLRU[0]
		c.chunkLRU = c.chunkLRU[1:]
		delete(c.chunks, oldest)
		c.usedBytes -= int64(chunkSize * sizeOfCoordEntry)
	}
}
