package osc

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wegman-software/osm-middle/internal/middle"
)

// Parser parses OSC (OSM Change) files, the upstream diff applier external
// to the core (spec.md 1): it produces Change values, it does not decide
// what to do with them — that's Change.Apply plus the Controller.
type Parser struct {
	stats Stats
}

// NewParser creates a new OSC parser.
func NewParser() *Parser {
	return &Parser{}
}

// Stats returns parsing statistics.
func (p *Parser) Stats() Stats {
	return p.stats
}

// ParseFile parses an OSC file and streams changes to a channel. Supports
// both plain XML and gzip-compressed files.
func (p *Parser) ParseFile(ctx context.Context, filename string) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		f, err := os.Open(filename)
		if err != nil {
			errChan <- fmt.Errorf("failed to open OSC file: %w", err)
			return
		}
		defer f.Close()

		var reader io.Reader = f

		if strings.HasSuffix(filename, ".gz") {
			gzReader, err := gzip.NewReader(f)
			if err != nil {
				errChan <- fmt.Errorf("failed to create gzip reader: %w", err)
				return
			}
			defer gzReader.Close()
			reader = gzReader
		}

		if err := p.parse(ctx, reader, changes); err != nil {
			errChan <- err
		}
	}()

	return changes, errChan
}

// ParseReader parses OSC data from a reader.
func (p *Parser) ParseReader(ctx context.Context, reader io.Reader) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		if err := p.parse(ctx, reader, changes); err != nil {
			errChan <- err
		}
	}()

	return changes, errChan
}

func (p *Parser) parse(ctx context.Context, reader io.Reader, changes chan<- Change) error {
	decoder := xml.NewDecoder(reader)
	var currentAction Action

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("XML parse error: %w", err)
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "create":
			currentAction = ActionCreate
		case "modify":
			currentAction = ActionModify
		case "delete":
			currentAction = ActionDelete
		case "node":
			node, err := p.parseNode(decoder, se, currentAction)
			if err != nil {
				return err
			}
			change := Change{Action: currentAction, Type: "node", Node: node}
			if err := send(ctx, changes, change); err != nil {
				return err
			}
			p.updateStats(currentAction, "node")
		case "way":
			way, err := p.parseWay(decoder, se, currentAction)
			if err != nil {
				return err
			}
			change := Change{Action: currentAction, Type: "way", Way: way}
			if err := send(ctx, changes, change); err != nil {
				return err
			}
			p.updateStats(currentAction, "way")
		case "relation":
			rel, err := p.parseRelation(decoder, se, currentAction)
			if err != nil {
				return err
			}
			change := Change{Action: currentAction, Type: "relation", Relation: rel}
			if err := send(ctx, changes, change); err != nil {
				return err
			}
			p.updateStats(currentAction, "relation")
		}
	}

	return nil
}

func send(ctx context.Context, changes chan<- Change, c Change) error {
	select {
	case changes <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Parser) parseNode(decoder *xml.Decoder, start xml.StartElement, action Action) (*middle.Node, error) {
	node := &middle.Node{}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			id, _ := strconv.ParseInt(attr.Value, 10, 64)
			node.ID = id
		case "lat":
			lat, _ := strconv.ParseFloat(attr.Value, 64)
			node.Lat = lat
		case "lon":
			lon, _ := strconv.ParseFloat(attr.Value, 64)
			node.Lon = lon
		}
	}

	if action == ActionDelete {
		if err := skipToEnd(decoder, "node"); err != nil {
			return nil, err
		}
		return node, nil
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			if se.Name.Local == "tag" {
				if k, v, ok := parseTagAttrs(se); ok {
					node.Tags = append(node.Tags, middle.Tag{Key: k, Value: v})
				}
			}
		case xml.EndElement:
			if se.Name.Local == "node" {
				return node, nil
			}
		}
	}
}

func (p *Parser) parseWay(decoder *xml.Decoder, start xml.StartElement, action Action) (*middle.Way, error) {
	way := &middle.Way{Nodes: make([]int64, 0, 100)}

	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			id, _ := strconv.ParseInt(attr.Value, 10, 64)
			way.ID = id
		}
	}

	if action == ActionDelete {
		if err := skipToEnd(decoder, "way"); err != nil {
			return nil, err
		}
		return way, nil
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "nd":
				for _, attr := range se.Attr {
					if attr.Name.Local == "ref" {
						ref, _ := strconv.ParseInt(attr.Value, 10, 64)
						way.Nodes = append(way.Nodes, ref)
					}
				}
			case "tag":
				if k, v, ok := parseTagAttrs(se); ok {
					way.Tags = append(way.Tags, middle.Tag{Key: k, Value: v})
				}
			}
		case xml.EndElement:
			if se.Name.Local == "way" {
				return way, nil
			}
		}
	}
}

func (p *Parser) parseRelation(decoder *xml.Decoder, start xml.StartElement, action Action) (*middle.Relation, error) {
	rel := &middle.Relation{Members: make([]middle.Member, 0, 10)}

	for _, attr := range start.Attr {
		if attr.Name.Local == "id" {
			id, _ := strconv.ParseInt(attr.Value, 10, 64)
			rel.ID = id
		}
	}

	if action == ActionDelete {
		if err := skipToEnd(decoder, "relation"); err != nil {
			return nil, err
		}
		return rel, nil
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "member":
				member := middle.Member{}
				for _, attr := range se.Attr {
					switch attr.Name.Local {
					case "type":
						switch attr.Value {
						case "node":
							member.Type = middle.MemberNode
						case "way":
							member.Type = middle.MemberWay
						case "relation":
							member.Type = middle.MemberRel
						}
					case "ref":
						ref, _ := strconv.ParseInt(attr.Value, 10, 64)
						member.Ref = ref
					case "role":
						member.Role = attr.Value
					}
				}
				rel.Members = append(rel.Members, member)
			case "tag":
				if k, v, ok := parseTagAttrs(se); ok {
					rel.Tags = append(rel.Tags, middle.Tag{Key: k, Value: v})
				}
			}
		case xml.EndElement:
			if se.Name.Local == "relation" {
				return rel, nil
			}
		}
	}
}

func parseTagAttrs(se xml.StartElement) (key, value string, ok bool) {
	for _, attr := range se.Attr {
		switch attr.Name.Local {
		case "k":
			key = attr.Value
		case "v":
			value = attr.Value
		}
	}
	return key, value, key != ""
}

func skipToEnd(decoder *xml.Decoder, elementName string) error {
	for {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		if ee, ok := token.(xml.EndElement); ok && ee.Name.Local == elementName {
			return nil
		}
	}
}

func (p *Parser) updateStats(action Action, objType string) {
	switch objType {
	case "node":
		switch action {
		case ActionCreate:
			p.stats.NodesCreated++
		case ActionModify:
			p.stats.NodesModified++
		case ActionDelete:
			p.stats.NodesDeleted++
		}
	case "way":
		switch action {
		case ActionCreate:
			p.stats.WaysCreated++
		case ActionModify:
			p.stats.WaysModified++
		case ActionDelete:
			p.stats.WaysDeleted++
		}
	case "relation":
		switch action {
		case ActionCreate:
			p.stats.RelationsCreated++
		case ActionModify:
			p.stats.RelationsModified++
		case ActionDelete:
			p.stats.RelationsDeleted++
		}
	}
}
