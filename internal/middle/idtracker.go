package middle

import (
	"github.com/RoaringBitmap/roaring/roaring64"
)

// IDTracker is a mutable set of entity ids used to record secondary work
// discovered by change events (spec.md 4.1, C1). It is backed by a
// compressed 64-bit bitmap rather than a Go map: pending sets in a full
// planet import can run into the hundreds of millions of way ids, and a
// roaring bitmap keeps that resident in a few MB instead of a map's
// per-entry bucket overhead.
//
// IDTracker is not goroutine-safe; the controller serializes access to it
// (spec.md 5).
type IDTracker struct {
	bits *roaring64.Bitmap
}

// NewIDTracker returns an empty tracker.
func NewIDTracker() *IDTracker {
	return &IDTracker{bits: roaring64.New()}
}

// Mark inserts id. Marking an already-pending id is a no-op (I4).
func (t *IDTracker) Mark(id int64) {
	t.bits.Add(uint64(id))
}

// IsMarked reports whether id is currently pending.
func (t *IDTracker) IsMarked(id int64) bool {
	return t.bits.Contains(uint64(id))
}

// PopMark removes and returns an arbitrary pending id, or IDNone if the
// tracker is empty. Each id is yielded at most once per cycle.
func (t *IDTracker) PopMark() int64 {
	if t.bits.IsEmpty() {
		return IDNone
	}
	id := t.bits.Minimum()
	t.bits.Remove(id)
	return int64(id)
}

// Size returns the number of pending ids.
func (t *IDTracker) Size() uint64 {
	return t.bits.GetCardinality()
}
