package osc

import (
	"context"

	"github.com/wegman-software/osm-middle/internal/middle"
)

// Action represents the type of change in an OSC file.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Change represents a single OSM change from an OSC file, carrying exactly
// one of Node/Way/Relation depending on Type.
type Change struct {
	Action   Action
	Type     string // "node", "way", "relation"
	Node     *middle.Node
	Way      *middle.Way
	Relation *middle.Relation
}

// Apply drives a single Change into a Controller, dispatching to the
// matching add/modify/delete method and, on a modify, the matching
// change-propagation mark rule (spec.md 4.6 and 6: "modify is semantically
// identical to add plus mark rules").
func (c Change) Apply(ctx context.Context, ctrl *middle.Controller) error {
	switch c.Type {
	case "node":
		return c.applyNode(ctx, ctrl)
	case "way":
		return c.applyWay(ctx, ctrl)
	case "relation":
		return c.applyRelation(ctx, ctrl)
	default:
		return nil
	}
}

func (c Change) applyNode(ctx context.Context, ctrl *middle.Controller) error {
	switch c.Action {
	case ActionCreate:
		return ctrl.NodeAdd(ctx, c.Node.ID, c.Node.Lat, c.Node.Lon, c.Node.Tags)
	case ActionModify:
		if err := ctrl.NodeModify(ctx, c.Node.ID, c.Node.Lat, c.Node.Lon, c.Node.Tags); err != nil {
			return err
		}
		return ctrl.NodeChanged(ctx, c.Node.ID)
	case ActionDelete:
		return ctrl.NodeDelete(ctx, c.Node.ID)
	}
	return nil
}

func (c Change) applyWay(ctx context.Context, ctrl *middle.Controller) error {
	switch c.Action {
	case ActionCreate:
		return ctrl.WayAdd(ctx, c.Way.ID, c.Way.Nodes, c.Way.Tags)
	case ActionModify:
		if err := ctrl.WayModify(ctx, c.Way.ID, c.Way.Nodes, c.Way.Tags); err != nil {
			return err
		}
		return ctrl.WayChanged(ctx, c.Way.ID)
	case ActionDelete:
		return ctrl.WayDelete(ctx, c.Way.ID)
	}
	return nil
}

func (c Change) applyRelation(ctx context.Context, ctrl *middle.Controller) error {
	switch c.Action {
	case ActionCreate:
		return ctrl.RelationAdd(ctx, c.Relation.ID, c.Relation.Members, c.Relation.Tags)
	case ActionModify:
		if err := ctrl.RelationModify(ctx, c.Relation.ID, c.Relation.Members, c.Relation.Tags); err != nil {
			return err
		}
		return ctrl.RelationChanged(ctx, c.Relation.ID)
	case ActionDelete:
		return ctrl.RelationDelete(ctx, c.Relation.ID)
	}
	return nil
}

// Stats tracks OSC parsing statistics.
type Stats struct {
	NodesCreated      int64
	NodesModified     int64
	NodesDeleted      int64
	WaysCreated       int64
	WaysModified      int64
	WaysDeleted       int64
	RelationsCreated  int64
	RelationsModified int64
	RelationsDeleted  int64
}

// Total returns the total number of changes.
func (s *Stats) Total() int64 {
	return s.NodesCreated + s.NodesModified + s.NodesDeleted +
		s.WaysCreated + s.WaysModified + s.WaysDeleted +
		s.RelationsCreated + s.RelationsModified + s.RelationsDeleted
}
