package middle

// IDNone is the sentinel returned by PopMark when the pending tracker is
// empty, and is never a legitimate entity id.
const IDNone int64 = 1<<63 - 1

// CoordEncoding selects how lat/lon values round-trip through the caches
// and the staging store. This used to be a compile-time choice in the
// original implementation; here it's a runtime enum copied into every
// component at Start.
type CoordEncoding int

const (
	// CoordDouble stores coordinates as IEEE double precision floats.
	CoordDouble CoordEncoding = iota
	// CoordFixedPoint stores coordinates as int32s scaled by Options.Scale.
	CoordFixedPoint
)

// Tag is a single key/value pair. Node/way/relation tags are an ordered
// sequence of these, not a map: the canonical producer emits unique keys,
// but nothing downstream may rely on that.
type Tag struct {
	Key   string
	Value string
}

// Tags is an ordered sequence of key/value pairs.
type Tags []Tag

// Get returns the first value for key, if present.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// MemberType identifies which OSM primitive a relation member refers to.
type MemberType byte

const (
	MemberNode MemberType = 'n'
	MemberWay  MemberType = 'w'
	MemberRel  MemberType = 'r'
)

// Member is one element of a relation's ordered member list.
type Member struct {
	Type MemberType
	Ref  int64
	Role string
}

// Node is an OSM node: an id, a coordinate, and tags.
type Node struct {
	ID   int64
	Lat  float64
	Lon  float64
	Tags Tags
}

// Way is an OSM way: an id, an ordered (possibly repeating) list of node
// ids, and tags.
type Way struct {
	ID    int64
	Nodes []int64
	Tags  Tags
}

// ResolvedWay is a Way with its node ids hydrated into coordinates. Count
// may be less than len(Nodes) when some member nodes were not resolvable;
// Coords is left-packed to Count entries (see nodes_get_list compaction,
// spec.md 4.6).
type ResolvedWay struct {
	ID     int64
	Coords []NodeCoord
	Count  int
	Tags   Tags
}

// NodeCoord is a resolved node reference: id plus coordinate.
type NodeCoord struct {
	ID  int64
	Lat float64
	Lon float64
}

// Relation is an OSM relation: an id, an ordered member list, and tags.
type Relation struct {
	ID      int64
	Members []Member
	Tags    Tags
}

// partitionMembers splits members into (nodes, ways, rels) preserving
// within-type order, and returns the flattened parts array plus the two
// offsets used by the persisted form (spec.md I2).
func partitionMembers(members []Member) (parts []int64, wayOff, relOff int) {
	parts = make([]int64, 0, len(members))
	var ways, rels []int64
	for _, m := range members {
		switch m.Type {
		case MemberNode:
			parts = append(parts, m.Ref)
		case MemberWay:
			ways = append(ways, m.Ref)
		case MemberRel:
			rels = append(rels, m.Ref)
		}
	}
	wayOff = len(parts)
	parts = append(parts, ways...)
	relOff = len(parts)
	parts = append(parts, rels...)
	return parts, wayOff, relOff
}

// orderMembersByPartition returns members regrouped into node/way/relation
// order, preserving each group's original relative order — the same
// grouping partitionMembers uses to build parts[], but carrying the full
// Member (including Role) rather than just the ref id.
func orderMembersByPartition(members []Member) []Member {
	ordered := make([]Member, 0, len(members))
	var ways, rels []Member
	for _, m := range members {
		switch m.Type {
		case MemberNode:
			ordered = append(ordered, m)
		case MemberWay:
			ways = append(ways, m)
		case MemberRel:
			rels = append(rels, m)
		}
	}
	ordered = append(ordered, ways...)
	ordered = append(ordered, rels...)
	return ordered
}

// AllocStrategy selects the Node RAM Cache's eviction/layout behavior
// (spec.md 4.3).
type AllocStrategy int

const (
	AllocChunkwise AllocStrategy = iota
	AllocSparse
	AllocDense
)

// Options is the configuration value copied once into the controller and
// its leaf components at Start, per Design Note "process-wide option
// pointers" — nothing below this point holds a pointer back into
// config.Config.
type Options struct {
	Append     bool
	Prefix     string
	Tablespace struct {
		Data  string
		Index string
	}
	Unlogged             bool
	CacheMB              int
	Scale                int
	CoordEncoding        CoordEncoding
	FlatNodeCacheEnabled bool
	FlatNodePath         string
	DropTemp             bool
	ConnInfo             string
	AllocStrategy        AllocStrategy
	AllocLossy           bool
}
