package middle

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
)

// FlatNodeCache is the persistent node coordinate cache (C4, spec.md 4.4):
// a flat file, memory-mapped via mmap-go, holding one fixed-point coordinate
// pair per node id at offset id*entrySize. It is the teacher's
// internal/nodeindex.MmapIndex reworked onto the edsrzf/mmap-go library
// (declared in the teacher's go.mod but never actually imported there) in
// place of raw syscall.Mmap/Munmap/Msync calls.
const (
	entrySize = 8
	// maxNodeID bounds the sparse file's virtual address space. OSM ids
	// comfortably fit under 10 billion as of this writing.
	maxNodeID = 10_000_000_000

	fixedScale = 1e7
	// sentinelCoord marks an entry as never-written or deleted. A real
	// fixed-point coordinate fits in int32 range; this value sits just
	// outside any value lat*1e7 or lon*1e7 can legitimately take on, and
	// doubles as the "NaN sentinel" spec.md 4.4 calls for on an
	// integer-only wire format.
	sentinelCoord = math.MinInt32
	// storedBias is XORed into every stored coordinate, so a zero-filled
	// (never-written) entry decodes to sentinelCoord and reads as a miss.
	storedBias = 0x80000000
)

// FlatNodeCache wraps a memory-mapped sparse file of fixed-point node
// coordinates. It is not safe for concurrent use without external
// synchronization (spec.md 5).
type FlatNodeCache struct {
	file   *os.File
	data   mmap.MMap
	size   int64
	append bool
}

// NewFlatNodeCache creates (or truncates) path and maps it for read/write.
func NewFlatNodeCache(path string) (*FlatNodeCache, error) {
	size := int64(maxNodeID) * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("middle: create flat node cache: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("middle: truncate flat node cache: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("middle: mmap flat node cache: %w", err)
	}

	return &FlatNodeCache{file: f, data: data, size: size}, nil
}

// OpenFlatNodeCache reopens an existing flat node cache without truncating
// it, so prior writes survive — required when a bulk-load run is resumed in
// append mode or when the second pass (spec.md 4.6 step 2) reopens the
// cache a prior phase produced.
func OpenFlatNodeCache(path string) (*FlatNodeCache, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("middle: open flat node cache: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("middle: stat flat node cache: %w", err)
	}
	size := info.Size()
	want := int64(maxNodeID) * entrySize
	if size < want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, fmt.Errorf("middle: extend flat node cache: %w", err)
		}
		size = want
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("middle: mmap flat node cache: %w", err)
	}

	return &FlatNodeCache{file: f, data: data, size: size, append: true}, nil
}

// Set writes id's coordinates, write-through (spec.md 4.4). Ids outside the
// supported range are silently ignored, matching the teacher's bounds
// handling for a cache whose whole point is O(1) offset arithmetic rather
// than a growable structure.
func (c *FlatNodeCache) Set(id int64, lat, lon float64) {
	if id < 0 || id >= maxNodeID {
		return
	}
	offset := id * entrySize
	latInt := int32(lat * fixedScale)
	lonInt := int32(lon * fixedScale)
	binary.LittleEndian.PutUint32(c.data[offset:], uint32(latInt)^storedBias)
	binary.LittleEndian.PutUint32(c.data[offset+4:], uint32(lonInt)^storedBias)
}

// Delete marks id as absent by writing the sentinel pair, rather than
// leaving stale coordinates behind for a node the caller has removed.
func (c *FlatNodeCache) Delete(id int64) {
	if id < 0 || id >= maxNodeID {
		return
	}
	offset := id * entrySize
	sentinel := int32(sentinelCoord)
	binary.LittleEndian.PutUint32(c.data[offset:], uint32(sentinel)^storedBias)
	binary.LittleEndian.PutUint32(c.data[offset+4:], uint32(sentinel)^storedBias)
}

// Get returns id's coordinates and true on a hit; false if id was never
// written, was deleted, or falls outside the supported range.
func (c *FlatNodeCache) Get(id int64) (lat, lon float64, ok bool) {
	if id < 0 || id >= maxNodeID {
		return 0, 0, false
	}
	offset := id * entrySize
	if offset+entrySize > c.size {
		return 0, 0, false
	}
	latInt := int32(binary.LittleEndian.Uint32(c.data[offset:]) ^ storedBias)
	lonInt := int32(binary.LittleEndian.Uint32(c.data[offset+4:]) ^ storedBias)
	if latInt == sentinelCoord || lonInt == sentinelCoord {
		return 0, 0, false
	}
	return float64(latInt) / fixedScale, float64(lonInt) / fixedScale, true
}

// GetList hydrates coordinates for ids into out, in order, returning the
// number of entries actually found. Missing entries are left as their zero
// NodeCoord; compaction (dropping vs. keeping a placeholder for a missing
// way member) is the caller's decision, per spec.md 4.6.
func (c *FlatNodeCache) GetList(out []NodeCoord, ids []int64) int {
	n := 0
	for i, id := range ids {
		lat, lon, ok := c.Get(id)
		if !ok {
			continue
		}
		out[i] = NodeCoord{ID: id, Lat: lat, Lon: lon}
		n++
	}
	return n
}

// Sync flushes mapped pages to disk.
func (c *FlatNodeCache) Sync() error {
	return c.data.Flush()
}

// Close unmaps and closes the backing file.
func (c *FlatNodeCache) Close() error {
	if err := c.data.Unmap(); err != nil {
		c.file.Close()
		return fmt.Errorf("middle: unmap flat node cache: %w", err)
	}
	return c.file.Close()
}

// Appending reports whether this handle was opened via OpenFlatNodeCache
// (preserving prior content) rather than NewFlatNodeCache (fresh/truncated).
func (c *FlatNodeCache) Appending() bool {
	return c.append
}
