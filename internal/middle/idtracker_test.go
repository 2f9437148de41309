package middle

import "testing"

func TestIDTrackerMarkIdempotent(t *testing.T) {
	tr := NewIDTracker()
	tr.Mark(5)
	tr.Mark(5)
	if tr.Size() != 1 {
		t.Fatalf("expected size 1, got %d", tr.Size())
	}
	if !tr.IsMarked(5) {
		t.Fatalf("expected 5 to be marked")
	}
}

func TestIDTrackerPopMarkEmpty(t *testing.T) {
	tr := NewIDTracker()
	if got := tr.PopMark(); got != IDNone {
		t.Fatalf("expected IDNone, got %d", got)
	}
}

func TestIDTrackerDrainsEachIDOnce(t *testing.T) {
	tr := NewIDTracker()
	want := map[int64]bool{1: true, 2: true, 3: true, 1000000000: true}
	for id := range want {
		tr.Mark(id)
	}

	got := map[int64]bool{}
	for {
		id := tr.PopMark()
		if id == IDNone {
			break
		}
		if got[id] {
			t.Fatalf("id %d drained twice", id)
		}
		got[id] = true
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d drained ids, got %d", len(want), len(got))
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("id %d never drained", id)
		}
	}
	if tr.PopMark() != IDNone {
		t.Fatalf("expected empty tracker after full drain")
	}
}
