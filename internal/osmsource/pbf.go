// Package osmsource adapts upstream OSM data sources into middle.Controller
// calls. It is a thin scanner, not a geometry builder: way and relation
// coordinate resolution is the middle layer's job (spec.md 4.6), not this
// package's.
package osmsource

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-middle/internal/middle"
)

// Stats holds seed-load counters for a single PBF import.
type Stats struct {
	Nodes     int64
	Ways      int64
	Relations int64
}

// PBFLoader scans a .osm.pbf file and feeds every primitive into a
// Controller's bulk-load path, in file order (nodes before ways before
// relations, the PBF container's own invariant).
type PBFLoader struct {
	ctrl   *middle.Controller
	logger *zap.Logger
	stats  Stats
}

// NewPBFLoader creates a loader that drives ctrl.
func NewPBFLoader(ctrl *middle.Controller, logger *zap.Logger) *PBFLoader {
	return &PBFLoader{ctrl: ctrl, logger: logger}
}

// Stats returns the counts seen so far.
func (l *PBFLoader) Stats() Stats { return l.stats }

// Load streams filename through the scanner, calling NodeAdd/WayAdd/
// RelationAdd for every object. It does not call Start/Stop on the
// controller — the caller owns that lifecycle.
func (l *PBFLoader) Load(ctx context.Context, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("osmsource: open %s: %w", filename, err)
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()

	lastLog := time.Now()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch obj := scanner.Object().(type) {
		case *osm.Node:
			if err := l.ctrl.NodeAdd(ctx, int64(obj.ID), obj.Lat, obj.Lon, convertTags(obj.Tags)); err != nil {
				return fmt.Errorf("osmsource: node %d: %w", obj.ID, err)
			}
			l.stats.Nodes++
		case *osm.Way:
			if err := l.ctrl.WayAdd(ctx, int64(obj.ID), convertWayNodes(obj.Nodes), convertTags(obj.Tags)); err != nil {
				return fmt.Errorf("osmsource: way %d: %w", obj.ID, err)
			}
			l.stats.Ways++
		case *osm.Relation:
			if err := l.ctrl.RelationAdd(ctx, int64(obj.ID), convertMembers(obj.Members), convertTags(obj.Tags)); err != nil {
				return fmt.Errorf("osmsource: relation %d: %w", obj.ID, err)
			}
			l.stats.Relations++
		}

		if l.logger != nil && time.Since(lastLog) > 2*time.Second {
			l.logger.Info("pbf load progress",
				zap.Int64("nodes", l.stats.Nodes),
				zap.Int64("ways", l.stats.Ways),
				zap.Int64("relations", l.stats.Relations))
			lastLog = time.Now()
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("osmsource: scan %s: %w", filename, err)
	}

	return nil
}

func convertTags(t osm.Tags) middle.Tags {
	if len(t) == 0 {
		return nil
	}
	tags := make(middle.Tags, len(t))
	for i, kv := range t {
		tags[i] = middle.Tag{Key: kv.Key, Value: kv.Value}
	}
	return tags
}

func convertWayNodes(nodes osm.WayNodes) []int64 {
	if len(nodes) == 0 {
		return nil
	}
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = int64(n.ID)
	}
	return ids
}

func convertMembers(members osm.Members) []middle.Member {
	if len(members) == 0 {
		return nil
	}
	out := make([]middle.Member, len(members))
	for i, m := range members {
		var t middle.MemberType
		switch m.Type {
		case osm.TypeNode:
			t = middle.MemberNode
		case osm.TypeWay:
			t = middle.MemberWay
		case osm.TypeRelation:
			t = middle.MemberRel
		}
		out[i] = middle.Member{Type: t, Ref: int64(m.Ref), Role: m.Role}
	}
	return out
}
