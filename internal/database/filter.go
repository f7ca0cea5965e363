package database

import (
	"strconv"
	"strings"
)

// Column names an article column that may appear in a filter or ORDER BY.
type Column string

const (
	ColID        Column = "id"
	ColTitle     Column = "title"
	ColSummary   Column = "summary"
	ColCategory  Column = "category"
	ColRating    Column = "rating"
	ColDateFeed  Column = "Date_Feed"
	ColCreatedAt Column = "created_at"
)

// Predicate is a typed WHERE fragment. Fragments compose with And and Or
// and render to SQL with positional arguments only at query time.
type Predicate interface {
	build(sb *strings.Builder, args []any) []any
}

type cmpPredicate struct {
	col   Column
	op    string
	value any
}

func (p cmpPredicate) build(sb *strings.Builder, args []any) []any {
	sb.WriteString(quote(p.col))
	sb.WriteString(" ")
	sb.WriteString(p.op)
	sb.WriteString(" ?")
	return append(args, p.value)
}

// Eq matches rows where col equals v.
func Eq(col Column, v any) Predicate { return cmpPredicate{col: col, op: "=", value: v} }

// Gte matches rows where col is at least v. NULL never matches.
func Gte(col Column, v any) Predicate { return cmpPredicate{col: col, op: ">=", value: v} }

type containsPredicate struct {
	col    Column
	needle string
}

// instr is case-sensitive, unlike LIKE for ASCII in SQLite.
func (p containsPredicate) build(sb *strings.Builder, args []any) []any {
	sb.WriteString("instr(")
	sb.WriteString(quote(p.col))
	sb.WriteString(", ?) > 0")
	return append(args, p.needle)
}

// Contains matches rows where col contains s as a case-sensitive substring.
func Contains(col Column, s string) Predicate { return containsPredicate{col: col, needle: s} }

type notInPredicate struct {
	col Column
	ids []int64
}

// The set is bound as one JSON array so its size is not capped by
// SQLite's host parameter limit.
func (p notInPredicate) build(sb *strings.Builder, args []any) []any {
	if len(p.ids) == 0 {
		sb.WriteString("1 = 1")
		return args
	}
	sb.WriteString(quote(p.col))
	sb.WriteString(" NOT IN (SELECT value FROM json_each(?))")
	return append(args, jsonInts(p.ids))
}

func jsonInts(ids []int64) string {
	buf := make([]byte, 0, len(ids)*8+2)
	buf = append(buf, '[')
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, id, 10)
	}
	return string(append(buf, ']'))
}

// NotIn excludes rows whose col is one of ids.
func NotIn(col Column, ids []int64) Predicate { return notInPredicate{col: col, ids: ids} }

type notNullPredicate struct {
	col Column
}

func (p notNullPredicate) build(sb *strings.Builder, args []any) []any {
	sb.WriteString(quote(p.col))
	sb.WriteString(" IS NOT NULL AND ")
	sb.WriteString(quote(p.col))
	sb.WriteString(" != ''")
	return args
}

// NotEmpty matches rows where col is neither NULL nor the empty string.
func NotEmpty(col Column) Predicate { return notNullPredicate{col: col} }

type groupPredicate struct {
	joiner string
	parts  []Predicate
}

func (p groupPredicate) build(sb *strings.Builder, args []any) []any {
	sb.WriteString("(")
	for i, part := range p.parts {
		if i > 0 {
			sb.WriteString(p.joiner)
		}
		sb.WriteString("(")
		args = part.build(sb, args)
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return args
}

// And conjoins predicates. Nil entries are dropped; a single remaining
// predicate is returned unwrapped.
func And(preds ...Predicate) Predicate { return group(" AND ", preds) }

// Or disjoins predicates, with the same nil handling as And.
func Or(preds ...Predicate) Predicate { return group(" OR ", preds) }

func group(joiner string, preds []Predicate) Predicate {
	parts := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	return groupPredicate{joiner: joiner, parts: parts}
}

// whereClause renders p as " WHERE ..." or "" for a nil predicate.
func whereClause(p Predicate) (string, []any) {
	if p == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(" WHERE ")
	args := p.build(&sb, nil)
	return sb.String(), args
}

func quote(col Column) string {
	return `"` + string(col) + `"`
}
