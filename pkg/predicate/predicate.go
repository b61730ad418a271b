// Package predicate holds the journal filter model and the algorithms that
// move filters between the flat rows a user edits and the nested predicate
// tree sent to a query endpoint.
//
// The wire form of a predicate is the JSON object {att, t, val}. Leaves
// compare one attribute (att) with a value using the operator t. Combinators
// (and, or, not) carry their children in val. A journal filter tree always
// has the canonical shape OR -> OR -> AND: the outer OR lists groups, each
// group is an OR of AND runs, and each AND run lists leaf comparisons.
package predicate

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Operators.
const (
	OpEq           = "eq"
	OpNotEq        = "not-eq"
	OpContains     = "contains"
	OpNotContains  = "not-contains"
	OpStarts       = "starts"
	OpEnds         = "ends"
	OpGt           = "gt"
	OpGe           = "ge"
	OpLt           = "lt"
	OpLe           = "le"
	OpEmpty        = "empty"
	OpNotEmpty     = "not-empty"
	OpIn           = "in"
	OpTimeInterval = "time-interval"
	OpToday        = "today"
	OpLastNDays    = "last-n-days"
	OpNextNDays    = "next-n-days"

	OpAnd = "and"
	OpOr  = "or"
	OpNot = "not"
)

// PredicatesWithoutValue take no value and are never pruned as empty.
var PredicatesWithoutValue = map[string]bool{
	OpEmpty:    true,
	OpNotEmpty: true,
}

// EqualPredicatesMap collapses operator variants offered to users into the
// operator understood by the query endpoint.
var EqualPredicatesMap = map[string]string{
	OpToday:     OpTimeInterval,
	OpLastNDays: OpTimeInterval,
	OpNextNDays: OpTimeInterval,
}

// DatePredicateVariables are the symbolic instants allowed in time intervals.
var DatePredicateVariables = struct {
	Now   string
	Today string
}{
	Now:   "$NOW",
	Today: "$TODAY",
}

// TimeIntervalDelimiter separates the two bounds of a time interval value.
const TimeIntervalDelimiter = "/"

// IsCombinator reports whether t joins child predicates.
func IsCombinator(t string) bool {
	return t == OpAnd || t == OpOr || t == OpNot
}

// Predicate is a node of a predicate tree. Leaves use Att and Val,
// combinators use Sub.
type Predicate struct {
	Att string
	T   string
	Val any
	Sub []*Predicate
}

// Leaf returns a comparison of att with val.
func Leaf(att, t string, val any) *Predicate {
	return &Predicate{Att: att, T: t, Val: val}
}

// Group returns a combinator over children.
func Group(t string, children ...*Predicate) *Predicate {
	if children == nil {
		children = []*Predicate{}
	}
	return &Predicate{T: t, Sub: children}
}

// Add appends child to a combinator node.
func (p *Predicate) Add(child *Predicate) {
	p.Sub = append(p.Sub, child)
}

// IsEndVal reports whether p is a leaf usable as a terminal filter value.
func (p *Predicate) IsEndVal() bool {
	return p != nil && p.Sub == nil && !IsCombinator(p.T)
}

// IsEndVal is the function form of (*Predicate).IsEndVal.
func IsEndVal(p *Predicate) bool { return p.IsEndVal() }

// Clone returns a deep copy of p.
func (p *Predicate) Clone() *Predicate {
	if p == nil {
		return nil
	}
	c := &Predicate{Att: p.Att, T: p.T, Val: cloneVal(p.Val)}
	if p.Sub != nil {
		c.Sub = make([]*Predicate, len(p.Sub))
		for i, s := range p.Sub {
			c.Sub[i] = s.Clone()
		}
	}
	return c
}

// Equal reports whether p and o are structurally equal.
func (p *Predicate) Equal(o *Predicate) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Att != o.Att || p.T != o.T || len(p.Sub) != len(o.Sub) || (p.Sub == nil) != (o.Sub == nil) {
		return false
	}
	if !reflect.DeepEqual(p.Val, o.Val) {
		return false
	}
	for i := range p.Sub {
		if !p.Sub[i].Equal(o.Sub[i]) {
			return false
		}
	}
	return true
}

func cloneVal(v any) any {
	switch vv := v.(type) {
	case []any:
		out := make([]any, len(vv))
		for i, x := range vv {
			out[i] = cloneVal(x)
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, x := range vv {
			out[k] = cloneVal(x)
		}
		return out
	}
	return v
}

// isEmptyVal reports whether v carries no filter value.
func isEmptyVal(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return vv == ""
	case []any:
		return len(vv) == 0
	case []string:
		return len(vv) == 0
	}
	return false
}

type wirePredicate struct {
	Att string          `json:"att,omitempty"`
	T   string          `json:"t"`
	Val json.RawMessage `json:"val,omitempty"`
}

// MarshalJSON encodes p in the {att, t, val} wire form.
func (p *Predicate) MarshalJSON() ([]byte, error) {
	w := wirePredicate{Att: p.Att, T: p.T}
	var err error
	switch {
	case p.Sub != nil:
		w.Val, err = json.Marshal(p.Sub)
	case p.Val != nil:
		w.Val, err = json.Marshal(p.Val)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the {att, t, val} wire form. A val holding objects,
// or any val of a combinator, becomes Sub. A not node may carry a single
// object instead of an array.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var w wirePredicate
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Predicate{Att: w.Att, T: w.T}
	raw := bytes.TrimSpace(w.Val)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		if IsCombinator(p.T) {
			p.Sub = []*Predicate{}
		}
		return nil
	}
	switch raw[0] {
	case '{':
		if IsCombinator(p.T) {
			child := &Predicate{}
			if err := json.Unmarshal(raw, child); err != nil {
				return err
			}
			p.Sub = []*Predicate{child}
			return nil
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		if IsCombinator(p.T) || (len(items) > 0 && allObjects(items)) {
			p.Sub = make([]*Predicate, 0, len(items))
			for _, item := range items {
				child := &Predicate{}
				if err := json.Unmarshal(item, child); err != nil {
					return err
				}
				p.Sub = append(p.Sub, child)
			}
			return nil
		}
	}
	return json.Unmarshal(raw, &p.Val)
}

func allObjects(items []json.RawMessage) bool {
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return false
		}
	}
	return true
}

// FilterPredicate is one row of a filter editor: a single comparison, the
// condition joining it to the previous row and the column it filters.
type FilterPredicate struct {
	Condition string     `json:"condition"`
	Predicate *Predicate `json:"predicate"`
	Column    *Column    `json:"column,omitempty"`
}

// GroupPredicate is one OR group of filter rows.
type GroupPredicate struct {
	Condition string             `json:"condition"`
	Predicate *Predicate         `json:"predicate"`
	Filters   []*FilterPredicate `json:"filters"`
}
