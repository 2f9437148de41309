package middle

import (
	"context"
	"testing"
)

// memBackend is a RAM-only Backend used only by tests, the kind of
// alternative backend spec.md 9 calls for ("no-op, RAM-only, file-only")
// so Controller's orchestration logic can be exercised without a running
// database.
type memBackend struct {
	nodes map[int64]Node
	ways  map[int64]Way
	rels  map[int64]Relation
}

func newMemBackend() *memBackend {
	return &memBackend{
		nodes: map[int64]Node{},
		ways:  map[int64]Way{},
		rels:  map[int64]Relation{},
	}
}

func (b *memBackend) Start(context.Context, Options) error { return nil }
func (b *memBackend) Commit(context.Context) error         { return nil }
func (b *memBackend) Analyze(context.Context) error        { return nil }
func (b *memBackend) Stop(context.Context) error           { return nil }

func (b *memBackend) BeginBulkLoad(context.Context) error { return nil }
func (b *memBackend) EndBulkLoad(context.Context) error   { return nil }

func (b *memBackend) InsertNode(_ context.Context, n Node) error { b.nodes[n.ID] = n; return nil }
func (b *memBackend) GetNode(_ context.Context, id int64) (Node, bool, error) {
	n, ok := b.nodes[id]
	return n, ok, nil
}
func (b *memBackend) GetNodeList(_ context.Context, ids []int64) ([]NodeCoord, error) {
	var out []NodeCoord
	for _, id := range ids {
		if n, ok := b.nodes[id]; ok {
			out = append(out, NodeCoord{ID: n.ID, Lat: n.Lat, Lon: n.Lon})
		}
	}
	return out, nil
}
func (b *memBackend) DeleteNode(_ context.Context, id int64) error { delete(b.nodes, id); return nil }

func (b *memBackend) InsertWay(_ context.Context, w Way) error { b.ways[w.ID] = w; return nil }
func (b *memBackend) GetWay(_ context.Context, id int64) (Way, bool, error) {
	w, ok := b.ways[id]
	return w, ok, nil
}
func (b *memBackend) GetWayList(_ context.Context, ids []int64) ([]Way, error) {
	var out []Way
	for _, id := range ids {
		if w, ok := b.ways[id]; ok {
			out = append(out, w)
		}
	}
	return out, nil
}
func (b *memBackend) DeleteWay(_ context.Context, id int64) error { delete(b.ways, id); return nil }
func (b *memBackend) MarkWaysByNode(_ context.Context, id int64) ([]int64, error) {
	var out []int64
	for _, w := range b.ways {
		for _, nd := range w.Nodes {
			if nd == id {
				out = append(out, w.ID)
				break
			}
		}
	}
	return out, nil
}
func (b *memBackend) MarkWaysByRel(_ context.Context, relID int64) ([]int64, error) {
	rel, ok := b.rels[relID]
	if !ok {
		return nil, nil
	}
	var out []int64
	for _, m := range rel.Members {
		if m.Type == MemberWay {
			out = append(out, m.Ref)
		}
	}
	return out, nil
}

func (b *memBackend) InsertRelation(_ context.Context, r Relation) error { b.rels[r.ID] = r; return nil }
func (b *memBackend) GetRelation(_ context.Context, id int64) (Relation, bool, error) {
	r, ok := b.rels[id]
	return r, ok, nil
}
func (b *memBackend) DeleteRelation(_ context.Context, id int64) error { delete(b.rels, id); return nil }
func (b *memBackend) RelsUsingWay(_ context.Context, wayID int64) ([]int64, error) {
	var out []int64
	for _, r := range b.rels {
		for _, m := range r.Members {
			if m.Type == MemberWay && m.Ref == wayID {
				out = append(out, r.ID)
			}
		}
	}
	return out, nil
}
func (b *memBackend) MarkRelsByNode(_ context.Context, id int64) ([]int64, error) {
	var out []int64
	for _, r := range b.rels {
		for _, m := range r.Members {
			if m.Type == MemberNode && m.Ref == id {
				out = append(out, r.ID)
			}
		}
	}
	return out, nil
}
func (b *memBackend) MarkRelsByWay(_ context.Context, wayID int64) ([]int64, error) {
	return b.RelsUsingWay(context.Background(), wayID)
}
func (b *memBackend) MarkRels(_ context.Context, id int64) ([]int64, error) {
	var out []int64
	for _, r := range b.rels {
		for _, m := range r.Members {
			if m.Type == MemberRel && m.Ref == id {
				out = append(out, r.ID)
			}
		}
	}
	return out, nil
}

var _ Backend = (*memBackend)(nil)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c := NewController(newMemBackend())
	if err := c.Start(context.Background(), Options{CacheMB: 64}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c
}

// Scenario 1: round-trip a single node.
func TestScenarioRoundTripSingleNode(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	if err := c.NodeAdd(ctx, 1, 52.5, 13.4, Tags{{Key: "name", Value: "X"}}); err != nil {
		t.Fatalf("NodeAdd: %v", err)
	}
	lat, lon, ok, err := c.NodeGet(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("NodeGet: ok=%v err=%v", ok, err)
	}
	if diff := lat - 52.5; diff > 1e-7 || diff < -1e-7 {
		t.Fatalf("lat mismatch: %v", lat)
	}
	if diff := lon - 13.4; diff > 1e-7 || diff < -1e-7 {
		t.Fatalf("lon mismatch: %v", lon)
	}
}

// Scenario 2: way resolves coordinates.
func TestScenarioWayResolvesCoordinates(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	for i := int64(1); i <= 5; i++ {
		if err := c.NodeAdd(ctx, i, float64(i), float64(i), nil); err != nil {
			t.Fatalf("NodeAdd(%d): %v", i, err)
		}
	}
	if err := c.WayAdd(ctx, 100, []int64{1, 2, 3, 4, 5}, Tags{{Key: "highway", Value: "residential"}}); err != nil {
		t.Fatalf("WayAdd: %v", err)
	}

	rw, found, err := c.WayGet(ctx, 100)
	if err != nil || !found {
		t.Fatalf("WayGet: found=%v err=%v", found, err)
	}
	if rw.Count != 5 {
		t.Fatalf("expected count 5, got %d", rw.Count)
	}
	for i, coord := range rw.Coords {
		want := int64(i + 1)
		if coord.ID != want || coord.Lat != float64(want) {
			t.Fatalf("coord[%d] = %+v, want id %d", i, coord, want)
		}
	}
}

// Scenario 3: way with a missing node compacts.
func TestScenarioWayWithMissingNodeCompacts(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	for _, id := range []int64{1, 2, 4, 5} {
		if err := c.NodeAdd(ctx, id, float64(id), float64(id), nil); err != nil {
			t.Fatalf("NodeAdd(%d): %v", id, err)
		}
	}
	if err := c.WayAdd(ctx, 200, []int64{1, 2, 3, 4, 5}, nil); err != nil {
		t.Fatalf("WayAdd: %v", err)
	}

	rw, found, err := c.WayGet(ctx, 200)
	if err != nil || !found {
		t.Fatalf("WayGet: found=%v err=%v", found, err)
	}
	if rw.Count != 4 {
		t.Fatalf("expected count 4, got %d", rw.Count)
	}
	wantIDs := []int64{1, 2, 4, 5}
	for i, coord := range rw.Coords {
		if coord.ID != wantIDs[i] {
			t.Fatalf("coord[%d].ID = %d, want %d", i, coord.ID, wantIDs[i])
		}
	}
}

// Scenario 4: relation offsets.
func TestScenarioRelationOffsets(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	members := []Member{
		{Type: MemberNode, Ref: 1, Role: "a"},
		{Type: MemberWay, Ref: 10, Role: "b"},
		{Type: MemberNode, Ref: 2, Role: "c"},
		{Type: MemberRel, Ref: 20, Role: "d"},
	}
	if err := c.RelationAdd(ctx, 300, members, nil); err != nil {
		t.Fatalf("RelationAdd: %v", err)
	}

	r, found, err := c.RelationGet(ctx, 300)
	if err != nil || !found {
		t.Fatalf("RelationGet: found=%v err=%v", found, err)
	}
	parts, wayOff, relOff := partitionMembers(r.Members)
	if wayOff != 2 || relOff != 3 {
		t.Fatalf("way_off=%d rel_off=%d, want 2,3", wayOff, relOff)
	}
	wantParts := []int64{1, 2, 10, 20}
	for i, p := range parts {
		if p != wantParts[i] {
			t.Fatalf("parts[%d]=%d, want %d (parts=%v)", i, p, wantParts[i], parts)
		}
	}
	wantRoles := map[int64]string{1: "a", 2: "c", 10: "b", 20: "d"}
	for _, m := range r.Members {
		if wantRoles[m.Ref] != m.Role {
			t.Fatalf("member %+v lost its role", m)
		}
	}
}

// Scenario 5: node_changed marks ways and relations.
func TestScenarioNodeChangedMarksWaysAndRels(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	if err := c.NodeAdd(ctx, 1, 1, 1, nil); err != nil {
		t.Fatalf("NodeAdd: %v", err)
	}
	if err := c.WayAdd(ctx, 1, []int64{1, 2}, nil); err != nil {
		t.Fatalf("WayAdd: %v", err)
	}
	if err := c.RelationAdd(ctx, 1, []Member{{Type: MemberNode, Ref: 1, Role: ""}}, nil); err != nil {
		t.Fatalf("RelationAdd: %v", err)
	}

	if err := c.NodeChanged(ctx, 1); err != nil {
		t.Fatalf("NodeChanged: %v", err)
	}
	if !c.pendingWays.IsMarked(1) {
		t.Fatalf("expected way 1 pending")
	}
	if !c.pendingRels.IsMarked(1) {
		t.Fatalf("expected relation 1 pending")
	}
}

// Scenario 6: second pass drains exactly once.
type recordingCallback struct {
	wayIDs []int64
}

func (r *recordingCallback) WayCallback(_ context.Context, w ResolvedWay, exists bool) error {
	if !exists {
		panic("second pass must set exists=true")
	}
	r.wayIDs = append(r.wayIDs, w.ID)
	return nil
}
func (r *recordingCallback) RelationCallback(context.Context, Relation, bool) error { return nil }

func TestScenarioSecondPassDrainsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	for _, id := range []int64{1, 2, 3} {
		if err := c.WayAdd(ctx, id, []int64{}, nil); err != nil {
			t.Fatalf("WayAdd(%d): %v", id, err)
		}
		c.pendingWays.Mark(id)
	}

	cb := &recordingCallback{}
	count, err := c.IterateWays(ctx, cb)
	if err != nil {
		t.Fatalf("IterateWays: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 drained, got %d", count)
	}
	seen := map[int64]bool{}
	for _, id := range cb.wayIDs {
		if seen[id] {
			t.Fatalf("way %d drained twice", id)
		}
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct way ids, got %d", len(seen))
	}
	if c.pendingWays.PopMark() != IDNone {
		t.Fatalf("expected pending ways empty after drain")
	}
}

func TestRelationDeleteMarksContainedWaysPending(t *testing.T) {
	ctx := context.Background()
	c := newTestController(t)

	if err := c.WayAdd(ctx, 5, []int64{1, 2}, nil); err != nil {
		t.Fatalf("WayAdd: %v", err)
	}
	if err := c.RelationAdd(ctx, 9, []Member{{Type: MemberWay, Ref: 5, Role: ""}}, nil); err != nil {
		t.Fatalf("RelationAdd: %v", err)
	}

	if err := c.RelationDelete(ctx, 9); err != nil {
		t.Fatalf("RelationDelete: %v", err)
	}
	if !c.pendingWays.IsMarked(5) {
		t.Fatalf("expected way 5 pending after owning relation deleted")
	}
	if _, found, _ := c.RelationGet(ctx, 9); found {
		t.Fatalf("expected relation 9 to be gone")
	}
}
