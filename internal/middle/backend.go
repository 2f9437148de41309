package middle

import "context"

// Backend is the capability set C5 (the staging store adapter) exposes to
// the Controller: set/get/delete per entity type, the mark-propagation
// queries, and the lifecycle operations start/stop/commit/analyze. Keeping
// this as an interface — rather than the Controller reaching into a
// concrete *Store directly — is the "polymorphism of middle backends" the
// original called out as missing: a test can substitute NullBackend (below)
// or a RAM-only/file-only stand-in without dragging in a real connection.
type Backend interface {
	Start(ctx context.Context, opts Options) error
	Commit(ctx context.Context) error
	Analyze(ctx context.Context) error
	Stop(ctx context.Context) error

	// BeginBulkLoad/EndBulkLoad bracket a high-throughput seed import: every
	// table is pushed into streaming-insert mode for the duration and back
	// to idle at the end, per spec.md 1's bulk-load protocol. Diff-apply
	// traffic (OSC changes) never calls these — one-row-at-a-time edits use
	// the prepared-statement path instead.
	BeginBulkLoad(ctx context.Context) error
	EndBulkLoad(ctx context.Context) error

	InsertNode(ctx context.Context, n Node) error
	GetNode(ctx context.Context, id int64) (Node, bool, error)
	GetNodeList(ctx context.Context, ids []int64) ([]NodeCoord, error)
	DeleteNode(ctx context.Context, id int64) error

	InsertWay(ctx context.Context, w Way) error
	GetWay(ctx context.Context, id int64) (Way, bool, error)
	GetWayList(ctx context.Context, ids []int64) ([]Way, error)
	DeleteWay(ctx context.Context, id int64) error
	MarkWaysByNode(ctx context.Context, id int64) ([]int64, error)
	MarkWaysByRel(ctx context.Context, id int64) ([]int64, error)

	InsertRelation(ctx context.Context, r Relation) error
	GetRelation(ctx context.Context, id int64) (Relation, bool, error)
	DeleteRelation(ctx context.Context, id int64) error
	RelsUsingWay(ctx context.Context, id int64) ([]int64, error)
	MarkRelsByNode(ctx context.Context, id int64) ([]int64, error)
	MarkRelsByWay(ctx context.Context, id int64) ([]int64, error)
	MarkRels(ctx context.Context, id int64) ([]int64, error)
}

// NullBackend discards every write and reports every read as a miss. It is
// the Go analogue of output-null.hpp: a backend whose only job is to let
// the rest of the pipeline (here, Controller and its change-propagation
// rules) be exercised in tests without a running database.
type NullBackend struct{}

func NewNullBackend() *NullBackend { return &NullBackend{} }

func (NullBackend) Start(context.Context, Options) error { return nil }
func (NullBackend) Commit(context.Context) error         { return nil }
func (NullBackend) Analyze(context.Context) error        { return nil }
func (NullBackend) Stop(context.Context) error           { return nil }

func (NullBackend) BeginBulkLoad(context.Context) error { return nil }
func (NullBackend) EndBulkLoad(context.Context) error   { return nil }

func (NullBackend) InsertNode(context.Context, Node) error { return nil }
func (NullBackend) GetNode(context.Context, int64) (Node, bool, error) {
	return Node{}, false, nil
}
func (NullBackend) GetNodeList(context.Context, []int64) ([]NodeCoord, error) {
	return nil, nil
}
func (NullBackend) DeleteNode(context.Context, int64) error { return nil }

func (NullBackend) InsertWay(context.Context, Way) error { return nil }
func (NullBackend) GetWay(context.Context, int64) (Way, bool, error) {
	return Way{}, false, nil
}
func (NullBackend) GetWayList(context.Context, []int64) ([]Way, error) {
	return nil, nil
}
func (NullBackend) DeleteWay(context.Context, int64) error              { return nil }
func (NullBackend) MarkWaysByNode(context.Context, int64) ([]int64, error) { return nil, nil }
func (NullBackend) MarkWaysByRel(context.Context, int64) ([]int64, error)  { return nil, nil }

func (NullBackend) InsertRelation(context.Context, Relation) error { return nil }
func (NullBackend) GetRelation(context.Context, int64) (Relation, bool, error) {
	return Relation{}, false, nil
}
func (NullBackend) DeleteRelation(context.Context, int64) error           { return nil }
func (NullBackend) RelsUsingWay(context.Context, int64) ([]int64, error)  { return nil, nil }
func (NullBackend) MarkRelsByNode(context.Context, int64) ([]int64, error) { return nil, nil }
func (NullBackend) MarkRelsByWay(context.Context, int64) ([]int64, error)  { return nil, nil }
func (NullBackend) MarkRels(context.Context, int64) ([]int64, error)       { return nil, nil }

var _ Backend = (*NullBackend)(nil)
