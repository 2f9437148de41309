package middle

import (
	"fmt"
	"strconv"
	"strings"
)

// This file is the isolated array-literal codec (C2, spec.md 4.2). It is a
// direct port of the escaping rules in
// _examples/original_source/middle-pgsql.cpp (escape_tag / pgsql_store_tags
// / decode_upto / pgsql_parse_tags / pgsql_store_nodes), generalized so the
// "double escape" used only while a COPY stream is open is a parameter
// instead of a second code path.

// nullLiteral is the store's NULL marker used for an empty tag list while
// streaming (spec.md 4.2).
const nullLiteral = `\N`

// EncodeIDs renders an int64 slice as the store's array-literal grammar:
// '{' elem (',' elem)* '}'. Ids are unquoted integers.
func EncodeIDs(ids []int64) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte('}')
	return b.String()
}

// DecodeIDs parses an array literal of unquoted integers back into ids.
func DecodeIDs(s string) ([]int64, error) {
	elems, err := splitArrayLiteral(s)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(elems))
	for _, e := range elems {
		v, err := strconv.ParseInt(e.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("middle: malformed id %q in array literal: %w", e.text, err)
		}
		ids = append(ids, v)
	}
	return ids, nil
}

// EncodeTags renders tags as a flat '{"k1","v1","k2","v2",...}' array
// literal. When streaming is true, every backslash introduced by escaping
// is doubled, because the value must survive one layer of unescaping from
// the COPY wire format before the array parser ever sees it (spec.md 4.2).
// An empty tag list encodes as the COPY NULL marker in streaming mode, or
// as the empty string (the prepared-statement absent-value sentinel) in
// prepared-statement mode.
func EncodeTags(tags Tags, streaming bool) string {
	if len(tags) == 0 {
		if streaming {
			return nullLiteral
		}
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, tag := range tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		escapeInto(&b, tag.Key, streaming)
		b.WriteByte('"')
		b.WriteByte(',')
		b.WriteByte('"')
		escapeInto(&b, tag.Value, streaming)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

// DecodeTags parses a tags array literal back into key/value pairs in
// emitted order. An empty string or the literal "\N" decodes to nil.
func DecodeTags(s string) (Tags, error) {
	if s == "" || s == nullLiteral {
		return nil, nil
	}
	elems, err := splitArrayLiteral(s)
	if err != nil {
		return nil, err
	}
	if len(elems)%2 != 0 {
		return nil, fmt.Errorf("middle: malformed tags literal %q: odd element count", s)
	}
	tags := make(Tags, 0, len(elems)/2)
	for i := 0; i < len(elems); i += 2 {
		tags = append(tags, Tag{Key: elems[i].text, Value: elems[i+1].text})
	}
	return tags, nil
}

// EncodeMember renders a single relation member as "<t><ref>" (e.g. "n42"),
// the form stored alongside its role in the members array (spec.md 4.2).
func EncodeMember(m Member) string {
	return fmt.Sprintf("%c%d", byte(m.Type), m.Ref)
}

// DecodeMember restores a member's type and ref from its "<t><ref>" string.
func DecodeMember(s string) (MemberType, int64, error) {
	if len(s) < 2 {
		return 0, 0, fmt.Errorf("middle: malformed member token %q", s)
	}
	t := MemberType(s[0])
	switch t {
	case MemberNode, MemberWay, MemberRel:
	default:
		return 0, 0, fmt.Errorf("middle: unknown member type byte %q in %q", s[0], s)
	}
	ref, err := strconv.ParseInt(s[1:], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("middle: malformed member ref in %q: %w", s, err)
	}
	return t, ref, nil
}

// escapeInto appends s to b, escaping the set {", \, \n, \r, \t} as
// \", \\, \n, \r, \t. When doubled is set, every backslash in the escaped
// output is doubled, matching the original's "escape" flag that is only
// set in COPY/streaming mode.
func escapeInto(b *strings.Builder, s string, doubled bool) {
	backslashes := func(n int) string {
		if doubled {
			n *= 2
		}
		return strings.Repeat(`\`, n)
	}
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(backslashes(1))
			b.WriteByte('"')
		case '\\':
			b.WriteString(backslashes(2))
		case '\n':
			b.WriteString(backslashes(1))
			b.WriteByte('n')
		case '\r':
			b.WriteString(backslashes(1))
			b.WriteByte('r')
		case '\t':
			b.WriteString(backslashes(1))
			b.WriteByte('t')
		default:
			b.WriteRune(r)
		}
	}
}

// encodeMemberRoles renders a relation's ordered members as a flat
// '{"<t><ref>","role",...}' array literal, alternating member token and
// role exactly the way EncodeTags alternates key and value — the stored
// "members" column and "tags" column share one grammar, matched by the
// original's array_upper(members,1)/2 member count.
func encodeMemberRoles(members []Member, streaming bool) string {
	pairs := make(Tags, len(members))
	for i, m := range members {
		pairs[i] = Tag{Key: EncodeMember(m), Value: m.Role}
	}
	return EncodeTags(pairs, streaming)
}

// decodeMemberRoles is encodeMemberRoles's inverse.
func decodeMemberRoles(s string) ([]Member, error) {
	pairs, err := DecodeTags(s)
	if err != nil {
		return nil, err
	}
	members := make([]Member, len(pairs))
	for i, p := range pairs {
		t, ref, err := DecodeMember(p.Key)
		if err != nil {
			return nil, err
		}
		members[i] = Member{Type: t, Ref: ref, Role: p.Value}
	}
	return members, nil
}

type arrayElem struct {
	text string
}

// splitArrayLiteral tokenizes the body of a '{...}' array literal into its
// elements, honoring quoted strings (with the same escapes EncodeTags
// introduces) and bare unquoted elements. Mirrors decode_upto /
// pgsql_parse_tags / pgsql_parse_nodes from the original source, unified
// into one scanner since the grammar is identical for ids and tag pairs.
func splitArrayLiteral(s string) ([]arrayElem, error) {
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("middle: malformed array literal %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return nil, nil
	}

	var elems []arrayElem
	i := 0
	for i < len(body) {
		if body[i] == '"' {
			var sb strings.Builder
			i++
			for i < len(body) && body[i] != '"' {
				if body[i] == '\\' && i+1 < len(body) {
					switch body[i+1] {
					case 'n':
						sb.WriteByte('\n')
					case 'r':
						sb.WriteByte('\r')
					case 't':
						sb.WriteByte('\t')
					default:
						sb.WriteByte(body[i+1])
					}
					i += 2
				} else {
					sb.WriteByte(body[i])
					i++
				}
			}
			if i >= len(body) {
				return nil, fmt.Errorf("middle: unterminated quoted element in %q", s)
			}
			i++ // closing quote
			elems = append(elems, arrayElem{text: sb.String()})
		} else {
			start := i
			for i < len(body) && body[i] != ',' {
				i++
			}
			elems = append(elems, arrayElem{text: body[start:i]})
		}
		if i < len(body) && body[i] == ',' {
			i++
		}
	}
	return elems, nil
}
