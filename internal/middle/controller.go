package middle

import (
	"context"
	"fmt"
)

// OutputCallback is the downstream collaborator (spec.md 6): the output
// stage consumes the second pass through these two methods. exists tells
// the callback whether the row may already be present downstream and
// should be handled as an upsert rather than a bare insert.
type OutputCallback interface {
	WayCallback(ctx context.Context, w ResolvedWay, exists bool) error
	RelationCallback(ctx context.Context, r Relation, exists bool) error
}

// Controller is the public middle interface (C6, spec.md 4.6): it
// orchestrates C1-C5 and implements the change-propagation rules and the
// pending-iteration second pass. It owns the RAM cache and, optionally, the
// persistent flat cache; it is not concurrency-safe (spec.md 5).
type Controller struct {
	opts    Options
	backend Backend

	ram  *RAMCache
	flat *FlatNodeCache

	pendingWays *IDTracker
	pendingRels *IDTracker
}

// NewController wires a Backend (a real *Store in production, NullBackend
// or any other capability-set implementation in tests) into a fresh
// Controller. The persistent flat cache, if enabled, is opened by Start.
func NewController(backend Backend) *Controller {
	return &Controller{
		backend:     backend,
		pendingWays: NewIDTracker(),
		pendingRels: NewIDTracker(),
	}
}

// Start copies opts into the controller and every leaf component (Design
// Note "process-wide option pointers": nothing downstream holds a pointer
// back into a shared mutable config), opens the RAM cache, opens the
// persistent flat cache if enabled, and starts the backend.
func (c *Controller) Start(ctx context.Context, opts Options) error {
	c.opts = opts
	c.ram = NewRAMCache(opts)

	if opts.FlatNodeCacheEnabled {
		var err error
		if opts.Append {
			c.flat, err = OpenFlatNodeCache(opts.FlatNodePath)
		} else {
			c.flat, err = NewFlatNodeCache(opts.FlatNodePath)
		}
		if err != nil {
			return newError(ConnectError, "open flat node cache", err)
		}
	}

	return c.backend.Start(ctx, opts)
}

func (c *Controller) Commit(ctx context.Context) error  { return c.backend.Commit(ctx) }
func (c *Controller) Analyze(ctx context.Context) error { return c.backend.Analyze(ctx) }

// BeginBulkLoad and EndBulkLoad bracket a seed import, pushing every
// staging table into streaming-insert mode for the duration (spec.md 1,
// 4.6's write path "via copy_row while the table is streaming, else
// exec_prepared"). A caller applying OSC diffs one change at a time should
// never call these — that traffic belongs on the prepared-statement path.
func (c *Controller) BeginBulkLoad(ctx context.Context) error {
	return c.backend.BeginBulkLoad(ctx)
}

func (c *Controller) EndBulkLoad(ctx context.Context) error {
	return c.backend.EndBulkLoad(ctx)
}

// Stop closes the flat cache (if open) and finalizes the backend.
func (c *Controller) Stop(ctx context.Context) error {
	if c.flat != nil {
		if err := c.flat.Sync(); err != nil {
			return newError(StoreError, "sync flat node cache", err)
		}
		if err := c.flat.Close(); err != nil {
			return newError(StoreError, "close flat node cache", err)
		}
	}
	return c.backend.Stop(ctx)
}

// --- Write path (spec.md 4.6) ---

// NodeAdd and NodeModify are semantically identical: last-write-wins, no
// propagation. Propagation on modify is triggered separately by the
// upstream diff applier calling NodeChanged (spec.md 6).
func (c *Controller) NodeAdd(ctx context.Context, id int64, lat, lon float64, tags Tags) error {
	return c.nodeSet(ctx, id, lat, lon, tags)
}

func (c *Controller) NodeModify(ctx context.Context, id int64, lat, lon float64, tags Tags) error {
	return c.nodeSet(ctx, id, lat, lon, tags)
}

func (c *Controller) nodeSet(ctx context.Context, id int64, lat, lon float64, tags Tags) error {
	if err := c.ram.Set(id, lat, lon, tags); err != nil {
		return err
	}
	if c.opts.FlatNodeCacheEnabled {
		c.flat.Set(id, lat, lon)
		return nil
	}
	return c.backend.InsertNode(ctx, Node{ID: id, Lat: lat, Lon: lon, Tags: tags})
}

func (c *Controller) WayAdd(ctx context.Context, id int64, nds []int64, tags Tags) error {
	return c.backend.InsertWay(ctx, Way{ID: id, Nodes: nds, Tags: tags})
}

func (c *Controller) WayModify(ctx context.Context, id int64, nds []int64, tags Tags) error {
	return c.backend.InsertWay(ctx, Way{ID: id, Nodes: nds, Tags: tags})
}

func (c *Controller) RelationAdd(ctx context.Context, id int64, members []Member, tags Tags) error {
	return c.backend.InsertRelation(ctx, Relation{ID: id, Members: members, Tags: tags})
}

func (c *Controller) RelationModify(ctx context.Context, id int64, members []Member, tags Tags) error {
	return c.backend.InsertRelation(ctx, Relation{ID: id, Members: members, Tags: tags})
}

// --- Delete path ---

func (c *Controller) NodeDelete(ctx context.Context, id int64) error {
	if c.opts.FlatNodeCacheEnabled {
		c.flat.Delete(id)
		return nil
	}
	return c.backend.DeleteNode(ctx, id)
}

func (c *Controller) WayDelete(ctx context.Context, id int64) error {
	return c.backend.DeleteWay(ctx, id)
}

// RelationDelete deletes a relation and marks every way it contained as
// pending, because those ways may have lost their enclosing relation and
// need re-rendering (spec.md 4.6).
func (c *Controller) RelationDelete(ctx context.Context, id int64) error {
	waysToMark, err := c.backend.MarkWaysByRel(ctx, id)
	if err != nil {
		return err
	}
	if err := c.backend.DeleteRelation(ctx, id); err != nil {
		return err
	}
	for _, wayID := range waysToMark {
		c.pendingWays.Mark(wayID)
	}
	return nil
}

// --- Change propagation (mark rules, spec.md 4.6 table) ---

// NodeChanged marks every way containing id, and every relation directly
// referencing id, as pending.
func (c *Controller) NodeChanged(ctx context.Context, id int64) error {
	ways, err := c.backend.MarkWaysByNode(ctx, id)
	if err != nil {
		return err
	}
	for _, w := range ways {
		c.pendingWays.Mark(w)
	}
	rels, err := c.backend.MarkRelsByNode(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range rels {
		c.pendingRels.Mark(r)
	}
	return nil
}

// WayChanged marks every relation whose way-range contains id as pending.
func (c *Controller) WayChanged(ctx context.Context, id int64) error {
	rels, err := c.backend.MarkRelsByWay(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range rels {
		c.pendingRels.Mark(r)
	}
	return nil
}

// RelationChanged marks every relation whose relation-range contains id as
// pending.
func (c *Controller) RelationChanged(ctx context.Context, id int64) error {
	rels, err := c.backend.MarkRels(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range rels {
		c.pendingRels.Mark(r)
	}
	return nil
}

// --- Read path ---

// NodeGet resolves a single node's coordinates: RAM cache first, then the
// persistent cache if enabled, else a prepared lookup.
func (c *Controller) NodeGet(ctx context.Context, id int64) (lat, lon float64, ok bool, err error) {
	if lat, lon, ok = c.ram.Get(id); ok {
		return lat, lon, true, nil
	}
	if c.opts.FlatNodeCacheEnabled {
		lat, lon, ok = c.flat.Get(id)
		return lat, lon, ok, nil
	}
	n, found, err := c.backend.GetNode(ctx, id)
	if err != nil {
		return 0, 0, false, err
	}
	if !found {
		return 0, 0, false, nil
	}
	return n.Lat, n.Lon, true, nil
}

// NodesGetList hydrates coordinates for ids, RAM-cache first, then
// persistent cache or a single batched store lookup for the remaining
// misses, then compacts the result (spec.md 4.6 step 5): found entries are
// left-packed into a contiguous prefix and the count returned; callers may
// not rely on a 1:1 positional mapping between ids and out.
func (c *Controller) NodesGetList(ctx context.Context, ids []int64) ([]NodeCoord, int, error) {
	out := make([]NodeCoord, len(ids))
	found := make([]bool, len(ids))
	n := 0

	var misses []int64
	missIdx := make([]int, 0, len(ids))
	for i, id := range ids {
		if lat, lon, ok := c.ram.Get(id); ok {
			out[i] = NodeCoord{ID: id, Lat: lat, Lon: lon}
			found[i] = true
			n++
			continue
		}
		misses = append(misses, id)
		missIdx = append(missIdx, i)
	}

	if len(misses) > 0 {
		if c.opts.FlatNodeCacheEnabled {
			resolved := make([]NodeCoord, len(misses))
			c.flat.GetList(resolved, misses)
			for j, id := range misses {
				if resolved[j].ID == id {
					i := missIdx[j]
					out[i] = resolved[j]
					found[i] = true
					n++
				}
			}
		} else {
			rows, err := c.backend.GetNodeList(ctx, misses)
			if err != nil {
				return nil, 0, err
			}
			byID := make(map[int64]NodeCoord, len(rows))
			for _, r := range rows {
				byID[r.ID] = r
			}
			for j, id := range misses {
				if coord, ok := byID[id]; ok {
					i := missIdx[j]
					out[i] = coord
					found[i] = true
					n++
				}
			}
		}
	}

	compacted := make([]NodeCoord, 0, n)
	for i, ok := range found {
		if ok {
			compacted = append(compacted, out[i])
		}
	}
	return compacted, n, nil
}

// WayGet fetches a way by id and immediately resolves its node ids into
// coordinates so callers receive a ResolvedWay.
func (c *Controller) WayGet(ctx context.Context, id int64) (ResolvedWay, bool, error) {
	w, found, err := c.backend.GetWay(ctx, id)
	if err != nil {
		return ResolvedWay{}, false, err
	}
	if !found {
		return ResolvedWay{}, false, nil
	}
	return c.resolveWay(ctx, w)
}

func (c *Controller) resolveWay(ctx context.Context, w Way) (ResolvedWay, bool, error) {
	coords, count, err := c.NodesGetList(ctx, w.Nodes)
	if err != nil {
		return ResolvedWay{}, false, err
	}
	return ResolvedWay{ID: w.ID, Coords: coords, Count: count, Tags: w.Tags}, true, nil
}

// WaysGetList fetches a batch of ways in one round trip and resolves each
// one's coordinates. Results follow the order of ids, found by a linear
// scan of the returned rows per id; ids with no stored way are skipped.
func (c *Controller) WaysGetList(ctx context.Context, ids []int64) ([]ResolvedWay, error) {
	ways, err := c.backend.GetWayList(ctx, ids)
	if err != nil {
		return nil, err
	}
	resolved := make([]ResolvedWay, 0, len(ways))
	for _, id := range ids {
		for _, w := range ways {
			if w.ID != id {
				continue
			}
			rw, _, err := c.resolveWay(ctx, w)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, rw)
			break
		}
	}
	return resolved, nil
}

func (c *Controller) RelationGet(ctx context.Context, id int64) (Relation, bool, error) {
	return c.backend.GetRelation(ctx, id)
}

// --- Second pass (pending iteration, spec.md 4.6) ---

// IterateWays drains the pending-ways tracker to completion, fetching each
// way, resolving its coordinates, and invoking cb with exists=true (the row
// may already be present downstream and must be upserted).
func (c *Controller) IterateWays(ctx context.Context, cb OutputCallback) (int, error) {
	count := 0
	for {
		id := c.pendingWays.PopMark()
		if id == IDNone {
			break
		}
		rw, found, err := c.WayGet(ctx, id)
		if err != nil {
			return count, err
		}
		if !found {
			continue
		}
		if err := cb.WayCallback(ctx, rw, true); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// IterateRelations drains the pending-relations tracker to completion.
func (c *Controller) IterateRelations(ctx context.Context, cb OutputCallback) (int, error) {
	count := 0
	for {
		id := c.pendingRels.PopMark()
		if id == IDNone {
			break
		}
		r, found, err := c.RelationGet(ctx, id)
		if err != nil {
			return count, err
		}
		if !found {
			continue
		}
		if err := cb.RelationCallback(ctx, r, true); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// BeginSecondPass implements step 2 of spec.md 4.6: the flat node cache, if
// enabled, must not be recreated from scratch going into the second pass —
// it is dropped and reopened in append mode, preserving every prior write.
func (c *Controller) BeginSecondPass() error {
	if !c.opts.FlatNodeCacheEnabled {
		return nil
	}
	if err := c.flat.Close(); err != nil {
		return newError(StoreError, "close flat node cache before second pass", err)
	}
	reopened, err := OpenFlatNodeCache(c.opts.FlatNodePath)
	if err != nil {
		return newError(ConnectError, "reopen flat node cache for second pass", err)
	}
	c.flat = reopened
	return nil
}

// PendingWaysCount and PendingRelsCount expose progress counters for the
// CLI's second-pass progress reporting (spec.md 4.6 step 4).
func (c *Controller) PendingWaysCount() uint64 { return c.pendingWays.Size() }
func (c *Controller) PendingRelsCount() uint64 { return c.pendingRels.Size() }

func (c *Controller) String() string {
	return fmt.Sprintf("Controller(pending_ways=%d, pending_rels=%d)", c.pendingWays.Size(), c.pendingRels.Size())
}
