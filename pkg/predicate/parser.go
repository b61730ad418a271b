package predicate

import (
	"fmt"
	"math"
	"strings"
)

// Wrap puts an AND list of leaves into the canonical OR -> OR -> AND envelope.
func Wrap(leaves ...*Predicate) *Predicate {
	return Group(OpOr, Group(OpOr, Group(OpAnd, leaves...)))
}

// GetAttFromPredicate returns the attribute a predicate filters on: the
// leaf's own att, or the att of the only child of a combinator.
func GetAttFromPredicate(p *Predicate) string {
	for p != nil {
		if p.IsEndVal() {
			return p.Att
		}
		if len(p.Sub) != 1 {
			return ""
		}
		p = p.Sub[0]
	}
	return ""
}

// GetDefaultPredicates seeds a filter tree in column order. A column covered
// by one of the caller's defaults gets that default; every other searchable
// default column, and every column named in extra, gets an empty leaf with
// the column's first operator. Defaults matching no column come last.
func GetDefaultPredicates(columns []Column, extra []string, defaults []*Predicate) *Predicate {
	byAtt := make(map[string]*Predicate, len(defaults))
	for _, d := range defaults {
		if d == nil {
			continue
		}
		if att := GetAttFromPredicate(d); byAtt[att] == nil {
			byAtt[att] = d
		}
	}
	named := make(map[string]bool, len(extra))
	for _, att := range extra {
		named[att] = true
	}
	used := make(map[*Predicate]bool, len(defaults))
	leaves := make([]*Predicate, 0, len(columns)+len(defaults))
	for _, c := range columns {
		if d := byAtt[c.Attribute]; d != nil {
			if !used[d] {
				used[d] = true
				leaves = append(leaves, d.Clone())
			}
			continue
		}
		if !(c.Searchable && c.Default) && !named[c.Attribute] {
			continue
		}
		op := c.DefaultPredicate()
		var val any = ""
		if PredicatesWithoutValue[op] {
			val = nil
		}
		leaves = append(leaves, Leaf(c.Attribute, op, val))
	}
	for _, d := range defaults {
		if d != nil && !used[d] {
			leaves = append(leaves, d.Clone())
		}
	}
	return Wrap(leaves...)
}

// Parse turns a canonical tree into editable groups. Every OR node directly
// under tree becomes a group; other combinators are searched one level
// deeper.
func Parse(tree *Predicate, columns []Column) []*GroupPredicate {
	groups := []*GroupPredicate{}
	if tree == nil {
		return groups
	}
	for _, node := range tree.Sub {
		switch {
		case node.T == OpOr:
			groups = append(groups, &GroupPredicate{
				Condition: tree.T,
				Predicate: &Predicate{T: node.T},
				Filters:   GetFilters(node, columns, tree.T),
			})
		case node.Sub != nil:
			groups = append(groups, Parse(node, columns)...)
		}
	}
	return groups
}

// GetFilters flattens the children of node into filter rows. The first row
// takes condition, every later sibling is joined by node's own operator.
// A not over a single comparison becomes a not-eq row; other negations are
// not representable as rows and are skipped.
func GetFilters(node *Predicate, columns []Column, condition string) []*FilterPredicate {
	filters := []*FilterPredicate{}
	if node == nil {
		return filters
	}
	for i, child := range node.Sub {
		cond := node.T
		if i == 0 {
			cond = condition
		}
		switch {
		case child.T == OpNot:
			if len(child.Sub) != 1 || !child.Sub[0].IsEndVal() {
				continue
			}
			neg := child.Sub[0].Clone()
			neg.T = OpNotEq
			filters = append(filters, newFilter(cond, neg, columns))
		case child.Sub != nil:
			filters = append(filters, GetFilters(child, columns, cond)...)
		default:
			filters = append(filters, newFilter(cond, child.Clone(), columns))
		}
	}
	return filters
}

func newFilter(cond string, p *Predicate, columns []Column) *FilterPredicate {
	return &FilterPredicate{Condition: cond, Predicate: p, Column: FindColumn(columns, p.Att)}
}

// Reverse rebuilds the canonical tree from editable groups. Every branch of
// a group is an AND node, single rows included. It returns nil when no group
// holds a filter.
func Reverse(groups []*GroupPredicate) *Predicate {
	if len(groups) == 0 {
		return nil
	}
	t := groups[0].Condition
	if t == "" {
		t = OpOr
	}
	root := Group(t)
	for _, g := range groups {
		ors := GetOrs(g.Filters)
		if len(ors) == 0 {
			continue
		}
		gt := OpOr
		if g.Predicate != nil && g.Predicate.T != "" {
			gt = g.Predicate.T
		}
		for i, branch := range ors {
			if branch.T != OpAnd {
				ors[i] = Group(OpAnd, branch)
			}
		}
		root.Add(Group(gt, ors...))
	}
	if len(root.Sub) == 0 {
		return nil
	}
	return root
}

// GetOrs partitions filter rows into the OR branches of one group. A row
// joined by AND extends the current run. Any other row starts a new AND run
// when the row after it is joined by AND, and stands alone otherwise.
func GetOrs(filters []*FilterPredicate) []*Predicate {
	ors := []*Predicate{}
	var run *Predicate
	for i, f := range filters {
		if f == nil || f.Predicate == nil {
			continue
		}
		p := f.Predicate.Clone()
		if i > 0 && f.Condition == OpAnd && run != nil {
			run.Add(p)
			continue
		}
		if i+1 < len(filters) && filters[i+1] != nil && filters[i+1].Condition == OpAnd {
			run = Group(OpAnd, p)
			ors = append(ors, run)
			continue
		}
		run = nil
		ors = append(ors, p)
	}
	return ors
}

// RemoveEmptyPredicates returns a copy of tree without valueless leaves and
// without combinators left with no children. Operators in
// PredicatesWithoutValue are always kept. It returns nil if nothing is left.
func RemoveEmptyPredicates(tree *Predicate) *Predicate {
	if tree == nil {
		return nil
	}
	if tree.Sub == nil && !IsCombinator(tree.T) {
		if PredicatesWithoutValue[tree.T] || !isEmptyVal(tree.Val) {
			return tree.Clone()
		}
		return nil
	}
	out := &Predicate{Att: tree.Att, T: tree.T, Val: cloneVal(tree.Val), Sub: []*Predicate{}}
	for _, child := range tree.Sub {
		if c := RemoveEmptyPredicates(child); c != nil {
			out.Sub = append(out.Sub, c)
		}
	}
	if len(out.Sub) == 0 {
		return nil
	}
	return out
}

// GetFlatFilters returns, depth first, every leaf of tree that has a value
// or takes none. A leaf whose value is a list of strings counts as one leaf.
func GetFlatFilters(tree *Predicate) []*Predicate {
	var out []*Predicate
	var walk func(p *Predicate)
	walk = func(p *Predicate) {
		if p == nil {
			return
		}
		if p.IsEndVal() {
			if PredicatesWithoutValue[p.T] || !isEmptyVal(p.Val) {
				out = append(out, p)
			}
			return
		}
		for _, c := range p.Sub {
			walk(c)
		}
	}
	walk(tree)
	return out
}

// SetNewPredicates merges preds into tree in order, skipping any that are
// already present as a leaf. A leaf with the same att takes the new operator
// and value; with addUnknown a predicate matching no leaf is appended. tree
// is modified in place and returned; a nil tree starts from Wrap().
func SetNewPredicates(tree *Predicate, preds []*Predicate, addUnknown bool) *Predicate {
	if tree == nil {
		tree = Wrap()
	}
	existing := GetFlatFilters(tree)
	for _, p := range preds {
		if p == nil || containsEqual(existing, p) {
			continue
		}
		SetPredicateValue(tree, p, addUnknown)
	}
	return tree
}

func containsEqual(list []*Predicate, p *Predicate) bool {
	for _, q := range list {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

// SetPredicateValue overwrites operator and value of every leaf of tree
// whose att matches p. When none matches and addUnknown is set, p is added
// with AddNewPredicate. It reports whether tree changed.
func SetPredicateValue(tree *Predicate, p *Predicate, addUnknown bool) bool {
	if setExisting(tree, p) {
		return true
	}
	if addUnknown {
		return AddNewPredicate(tree, p)
	}
	return false
}

func setExisting(node, p *Predicate) bool {
	if node == nil {
		return false
	}
	if node.IsEndVal() {
		if node.Att != p.Att {
			return false
		}
		node.T = p.T
		node.Val = cloneVal(p.Val)
		return true
	}
	found := false
	for _, c := range node.Sub {
		if setExisting(c, p) {
			found = true
		}
	}
	return found
}

// AddNewPredicate appends a copy of p to the first node whose children are
// all leaves, descending through the first non-leaf child otherwise.
func AddNewPredicate(node, p *Predicate) bool {
	if node == nil || node.IsEndVal() || node.T == OpNot {
		return false
	}
	var next *Predicate
	allEnd := true
	for _, c := range node.Sub {
		if c.IsEndVal() {
			continue
		}
		allEnd = false
		if next == nil && c.T != OpNot {
			next = c
		}
	}
	if allEnd {
		node.Add(p.Clone())
		return true
	}
	return AddNewPredicate(next, p)
}

// ReplacePredicateType returns a copy of p with user level operators
// rewritten through EqualPredicatesMap. A time interval given as a single
// relative bound is expanded into a range with $NOW on the far side: a
// negative duration ends now, a positive one starts now.
func ReplacePredicateType(p *Predicate) *Predicate {
	if p == nil {
		return nil
	}
	out := p.Clone()
	replaceType(out)
	return out
}

func replaceType(p *Predicate) {
	for _, c := range p.Sub {
		replaceType(c)
	}
	if !p.IsEndVal() {
		return
	}
	switch p.T {
	case OpToday:
		p.Val = DatePredicateVariables.Today
	case OpLastNDays:
		if n, ok := dayCount(p.Val); ok {
			p.Val = fmt.Sprintf("-P%dD", n)
		}
	case OpNextNDays:
		if n, ok := dayCount(p.Val); ok {
			p.Val = fmt.Sprintf("P%dD", n)
		}
	}
	if t, ok := EqualPredicatesMap[p.T]; ok {
		p.T = t
	}
	if p.T != OpTimeInterval {
		return
	}
	v, ok := p.Val.(string)
	if !ok || v == "" || strings.Contains(v, TimeIntervalDelimiter) || strings.HasPrefix(v, "$") {
		return
	}
	if strings.HasPrefix(v, "-") {
		p.Val = v + TimeIntervalDelimiter + DatePredicateVariables.Now
	} else {
		p.Val = DatePredicateVariables.Now + TimeIntervalDelimiter + v
	}
}

func dayCount(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}
