package predicate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	in := `{"t":"or","val":[{"t":"or","val":[{"t":"and","val":[{"att":"a","t":"eq","val":"1"},{"att":"tags","t":"contains","val":["x","y"]},{"att":"n","t":"empty"}]}]}]}`
	var p Predicate
	require.NoError(t, json.Unmarshal([]byte(in), &p))

	require.Len(t, p.Sub, 1)
	and := p.Sub[0].Sub[0]
	assert.Equal(t, OpAnd, and.T)
	require.Len(t, and.Sub, 3)
	assert.True(t, and.Sub[1].IsEndVal())
	assert.Equal(t, []any{"x", "y"}, and.Sub[1].Val)

	out, err := json.Marshal(&p)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestUnmarshalNotWithObject(t *testing.T) {
	var p Predicate
	require.NoError(t, json.Unmarshal([]byte(`{"t":"not","val":{"att":"x","t":"eq","val":"5"}}`), &p))
	require.Len(t, p.Sub, 1)
	assert.Equal(t, Leaf("x", OpEq, "5"), p.Sub[0])
}

func TestUnmarshalEmptyCombinator(t *testing.T) {
	var p Predicate
	require.NoError(t, json.Unmarshal([]byte(`{"t":"and","val":[]}`), &p))
	assert.NotNil(t, p.Sub)
	assert.Empty(t, p.Sub)
	assert.False(t, p.IsEndVal())
}

func TestGetFiltersRewritesNot(t *testing.T) {
	node := Group(OpAnd, &Predicate{T: OpNot, Sub: []*Predicate{Leaf("x", OpEq, "5")}})
	filters := GetFilters(node, nil, OpOr)
	require.Len(t, filters, 1)
	assert.Equal(t, Leaf("x", OpNotEq, "5"), filters[0].Predicate)
	assert.Equal(t, OpOr, filters[0].Condition)
}

func TestGetFiltersConditions(t *testing.T) {
	columns := []Column{{Attribute: "a", Type: ColumnText}}
	node := Group(OpOr, Group(OpAnd, Leaf("a", OpEq, "1"), Leaf("b", OpEq, "2")), Leaf("c", OpEq, "3"))
	filters := GetFilters(node, columns, OpAnd)
	require.Len(t, filters, 3)
	assert.Equal(t, []string{OpAnd, OpAnd, OpOr}, conditions(filters))
	require.NotNil(t, filters[0].Column)
	assert.Equal(t, "a", filters[0].Column.Attribute)
	assert.Nil(t, filters[1].Column)
}

func conditions(filters []*FilterPredicate) []string {
	out := make([]string, len(filters))
	for i, f := range filters {
		out[i] = f.Condition
	}
	return out
}

func TestParseReverseRoundTrip(t *testing.T) {
	a, b, c := Leaf("a", OpEq, "1"), Leaf("b", OpContains, "x"), Leaf("c", OpGt, 3.0)
	d, e := Leaf("d", OpEmpty, nil), Leaf("e", OpEq, []any{"p", "q"})
	tree := Group(OpOr,
		Group(OpOr, Group(OpAnd, a, b), Group(OpAnd, c)),
		Group(OpOr, Group(OpAnd, d, e)),
	)
	columns := []Column{{Attribute: "a"}, {Attribute: "b"}, {Attribute: "c"}, {Attribute: "d"}, {Attribute: "e"}}

	groups := Parse(tree, columns)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Filters, 3)
	assert.Len(t, groups[1].Filters, 2)

	back := Reverse(groups)
	assert.True(t, tree.Equal(back), "got %s", mustJSON(t, back))

	single := Wrap(Leaf("a", OpEq, "1"))
	back = Reverse(Parse(single, columns))
	assert.True(t, single.Equal(back), "got %s", mustJSON(t, back))

	seeded := GetDefaultPredicates([]Column{{Attribute: "a", Type: ColumnText, Searchable: true, Default: true}}, nil, nil)
	back = Reverse(Parse(seeded, columns))
	assert.True(t, seeded.Equal(back), "got %s", mustJSON(t, back))
}

func TestParseSkipsIntoNonOrNodes(t *testing.T) {
	tree := Group(OpOr, Group(OpAnd, Group(OpOr, Leaf("a", OpEq, "1"))))
	groups := Parse(tree, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, OpAnd, groups[0].Condition)
	require.Len(t, groups[0].Filters, 1)
}

func TestReverseEmpty(t *testing.T) {
	assert.Nil(t, Reverse(nil))
	assert.Nil(t, Reverse([]*GroupPredicate{{Condition: OpOr}}))
}

func TestGetOrsLookahead(t *testing.T) {
	f := func(cond, att string) *FilterPredicate {
		return &FilterPredicate{Condition: cond, Predicate: Leaf(att, OpEq, att)}
	}
	tests := []struct {
		name    string
		filters []*FilterPredicate
		want    *Predicate
	}{
		{
			"and run then single",
			[]*FilterPredicate{f(OpOr, "a"), f(OpAnd, "b"), f(OpOr, "c")},
			Group(OpOr, Group(OpAnd, Leaf("a", OpEq, "a"), Leaf("b", OpEq, "b")), Leaf("c", OpEq, "c")),
		},
		{
			"trailing or starts run only before and",
			[]*FilterPredicate{f(OpOr, "a"), f(OpOr, "b"), f(OpAnd, "c")},
			Group(OpOr, Leaf("a", OpEq, "a"), Group(OpAnd, Leaf("b", OpEq, "b"), Leaf("c", OpEq, "c"))),
		},
		{
			"first row condition is ignored",
			[]*FilterPredicate{f(OpAnd, "a"), f(OpOr, "b")},
			Group(OpOr, Leaf("a", OpEq, "a"), Leaf("b", OpEq, "b")),
		},
		{
			"all and",
			[]*FilterPredicate{f(OpOr, "a"), f(OpAnd, "b"), f(OpAnd, "c")},
			Group(OpOr, Group(OpAnd, Leaf("a", OpEq, "a"), Leaf("b", OpEq, "b"), Leaf("c", OpEq, "c"))),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Group(OpOr, GetOrs(tt.filters)...)
			assert.True(t, tt.want.Equal(got), "got %s", mustJSON(t, got))
		})
	}
}

func TestRemoveEmptyPredicates(t *testing.T) {
	tree := Group(OpOr, Group(OpOr,
		Group(OpAnd, Leaf("a", OpEq, ""), Leaf("b", OpEmpty, nil), Leaf("c", OpEq, []any{})),
		Group(OpAnd, Leaf("d", OpContains, "")),
	))
	want := Group(OpOr, Group(OpOr, Group(OpAnd, Leaf("b", OpEmpty, nil))))

	got := RemoveEmptyPredicates(tree)
	assert.True(t, want.Equal(got), "got %s", mustJSON(t, got))
	assert.Len(t, tree.Sub[0].Sub, 2, "input must stay untouched")

	assert.Nil(t, RemoveEmptyPredicates(Wrap(Leaf("a", OpEq, ""))))
	assert.Nil(t, RemoveEmptyPredicates(nil))
}

func TestRemoveEmptyPredicatesIdempotent(t *testing.T) {
	trees := []*Predicate{
		Wrap(Leaf("a", OpEq, "1"), Leaf("b", OpEq, "")),
		Group(OpOr, Group(OpOr), Group(OpOr, Group(OpAnd, Leaf("x", OpNotEmpty, nil)))),
		Group(OpAnd, &Predicate{T: OpNot, Sub: []*Predicate{Leaf("x", OpEq, "")}}, Leaf("y", OpEq, 0.0)),
		Wrap(),
	}
	for _, tree := range trees {
		once := RemoveEmptyPredicates(tree)
		twice := RemoveEmptyPredicates(once)
		assert.True(t, once.Equal(twice), "once %s twice %s", mustJSON(t, once), mustJSON(t, twice))
	}
}

func TestGetFlatFilters(t *testing.T) {
	tree := Group(OpOr, Group(OpOr,
		Group(OpAnd, Leaf("a", OpEq, "1"), Leaf("tags", OpContains, []any{"x", "y"}), Leaf("e", OpEq, "")),
		Leaf("n", OpNotEmpty, nil),
	))
	flat := GetFlatFilters(tree)
	require.Len(t, flat, 3)
	assert.Equal(t, "a", flat[0].Att)
	assert.Equal(t, "tags", flat[1].Att)
	assert.Equal(t, "n", flat[2].Att)
}

func TestSetNewPredicatesMergesByAttribute(t *testing.T) {
	tree := Wrap(Leaf("x", OpEq, "old"), Leaf("y", OpContains, "q"))
	got := SetNewPredicates(tree, []*Predicate{Leaf("x", OpEq, "new")}, true)

	assert.Same(t, tree, got)
	flat := GetFlatFilters(tree)
	require.Len(t, flat, 2)
	assert.Equal(t, Leaf("x", OpEq, "new"), flat[0])
}

func TestSetNewPredicatesAddsUnknown(t *testing.T) {
	tree := Wrap(Leaf("x", OpEq, "1"))
	SetNewPredicates(tree, []*Predicate{Leaf("z", OpGt, 2.0)}, false)
	assert.Len(t, GetFlatFilters(tree), 1)

	SetNewPredicates(tree, []*Predicate{Leaf("z", OpGt, 2.0), Leaf("x", OpEq, "1")}, true)
	and := tree.Sub[0].Sub[0]
	require.Len(t, and.Sub, 2)
	assert.Equal(t, "z", and.Sub[1].Att)
}

func TestSetNewPredicatesLaterSeesEarlier(t *testing.T) {
	tree := Wrap()
	SetNewPredicates(tree, []*Predicate{Leaf("z", OpEq, "1"), Leaf("z", OpEq, "2")}, true)
	flat := GetFlatFilters(tree)
	require.Len(t, flat, 1)
	assert.Equal(t, "2", flat[0].Val)
}

func TestSetNewPredicatesNilTree(t *testing.T) {
	tree := SetNewPredicates(nil, []*Predicate{Leaf("a", OpEq, "1")}, true)
	assert.True(t, Wrap(Leaf("a", OpEq, "1")).Equal(tree))
}

func TestAddNewPredicateDescendsFirstNonLeaf(t *testing.T) {
	tree := Group(OpOr, Leaf("a", OpEq, "1"), Group(OpAnd, Leaf("b", OpEq, "2")), Group(OpAnd))
	require.True(t, AddNewPredicate(tree, Leaf("c", OpEq, "3")))
	assert.Len(t, tree.Sub[1].Sub, 2)
	assert.Empty(t, tree.Sub[2].Sub)
}

func TestGetDefaultPredicates(t *testing.T) {
	columns := []Column{
		{Attribute: "a", Type: ColumnText, Searchable: true, Default: true},
		{Attribute: "b", Type: ColumnNumber, Searchable: true},
		{Attribute: "c", Type: ColumnDate, Searchable: true, Default: true},
		{Attribute: "d", Type: ColumnText, Default: true},
	}
	defaults := []*Predicate{Leaf("z", OpEq, "1"), Leaf("c", OpTimeInterval, "-P7D"), Leaf("d", OpEq, "x")}

	got := GetDefaultPredicates(columns, []string{"b"}, defaults)
	want := Wrap(
		Leaf("a", OpContains, ""),
		Leaf("b", OpEq, ""),
		Leaf("c", OpTimeInterval, "-P7D"),
		Leaf("d", OpEq, "x"),
		Leaf("z", OpEq, "1"),
	)
	assert.True(t, want.Equal(got), "got %s", mustJSON(t, got))
}

func TestGetAttFromPredicate(t *testing.T) {
	assert.Equal(t, "x", GetAttFromPredicate(Leaf("x", OpEq, "1")))
	assert.Equal(t, "x", GetAttFromPredicate(&Predicate{T: OpNot, Sub: []*Predicate{Leaf("x", OpEq, "1")}}))
	assert.Equal(t, "", GetAttFromPredicate(Group(OpAnd, Leaf("x", OpEq, "1"), Leaf("y", OpEq, "1"))))
}

func TestReplacePredicateType(t *testing.T) {
	tests := []struct {
		name string
		in   *Predicate
		want *Predicate
	}{
		{"past bound ends now", Leaf("d", OpTimeInterval, "-P1D"), Leaf("d", OpTimeInterval, "-P1D/$NOW")},
		{"future bound starts now", Leaf("d", OpTimeInterval, "P1D"), Leaf("d", OpTimeInterval, "$NOW/P1D")},
		{"range untouched", Leaf("d", OpTimeInterval, "-P1D/P1D"), Leaf("d", OpTimeInterval, "-P1D/P1D")},
		{"array untouched", Leaf("d", OpTimeInterval, []any{"-P1D"}), Leaf("d", OpTimeInterval, []any{"-P1D"})},
		{"today", Leaf("d", OpToday, nil), Leaf("d", OpTimeInterval, "$TODAY")},
		{"last n days", Leaf("d", OpLastNDays, 3.0), Leaf("d", OpTimeInterval, "-P3D/$NOW")},
		{"next n days", Leaf("d", OpNextNDays, "2"), Leaf("d", OpTimeInterval, "$NOW/P2D")},
		{"other ops untouched", Leaf("d", OpEq, "-P1D"), Leaf("d", OpEq, "-P1D")},
		{"nested", Group(OpAnd, Leaf("d", OpTimeInterval, "P1W")), Group(OpAnd, Leaf("d", OpTimeInterval, "$NOW/P1W"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplacePredicateType(tt.in)
			assert.True(t, tt.want.Equal(got), "got %s", mustJSON(t, got))
		})
	}
}

func TestMatch(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	rec := map[string]any{
		"title":   "Quarterly Report",
		"amount":  120.0,
		"tags":    []any{"finance", "q2"},
		"created": "2024-05-09T08:00:00Z",
		"owner":   "",
	}
	get := func(att string) any { return rec[att] }

	tests := []struct {
		name string
		p    *Predicate
		want bool
	}{
		{"eq", Leaf("title", OpEq, "Quarterly Report"), true},
		{"eq number string", Leaf("amount", OpEq, "120"), true},
		{"not eq", Leaf("amount", OpNotEq, 120.0), false},
		{"contains case-insensitive", Leaf("title", OpContains, "report"), true},
		{"not contains", Leaf("title", OpNotContains, "memo"), true},
		{"starts", Leaf("title", OpStarts, "quar"), true},
		{"ends", Leaf("title", OpEnds, "port"), true},
		{"gt", Leaf("amount", OpGt, 100.0), true},
		{"le", Leaf("amount", OpLe, 100.0), false},
		{"list element", Leaf("tags", OpEq, "q2"), true},
		{"in", Leaf("title", OpIn, []any{"x", "Quarterly Report"}), true},
		{"empty", Leaf("owner", OpEmpty, nil), true},
		{"not empty", Leaf("missing", OpNotEmpty, nil), false},
		{"last two days", Leaf("created", OpLastNDays, 2.0), true},
		{"next two days", Leaf("created", OpNextNDays, 2.0), false},
		{"interval", Leaf("created", OpTimeInterval, "-PT30H"), true},
		{"interval too short", Leaf("created", OpTimeInterval, "-P1D"), false},
		{"explicit range", Leaf("created", OpTimeInterval, "2024-05-01/2024-05-09T09:00:00Z"), true},
		{"today", Leaf("created", OpToday, nil), false},
		{"and", Group(OpAnd, Leaf("amount", OpGt, 100.0), Leaf("tags", OpEq, "finance")), true},
		{"or", Group(OpOr, Leaf("amount", OpLt, 100.0), Leaf("tags", OpEq, "hr")), false},
		{"not", &Predicate{T: OpNot, Sub: []*Predicate{Leaf("title", OpEq, "x")}}, true},
		{"empty or", Group(OpOr), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.p, get, now))
		})
	}
}

func TestColumnPredicates(t *testing.T) {
	assert.Equal(t, OpContains, Column{Type: ColumnText}.DefaultPredicate())
	assert.Equal(t, OpEq, Column{Type: ColumnNumber}.DefaultPredicate())
	assert.Equal(t, OpTimeInterval, Column{Type: ColumnDateTime}.DefaultPredicate())
	assert.Equal(t, OpContains, Column{Type: "unknown"}.DefaultPredicate())
	assert.Nil(t, FindColumn(nil, "a"))
}

func mustJSON(t *testing.T, p *Predicate) string {
	t.Helper()
	if p == nil {
		return "null"
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return string(b)
}

func TestAddDuration(t *testing.T) {
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"P1D", base.AddDate(0, 0, 1), true},
		{"-P1W", base.AddDate(0, 0, -7), true},
		{"+P1M", base.AddDate(0, 1, 0), true},
		{"-PT30H", base.Add(-30 * time.Hour), true},
		{"P1Y2M3DT4H5M6S", base.AddDate(1, 2, 3).Add(4*time.Hour + 5*time.Minute + 6*time.Second), true},
		{"1D", base, false},
		{"$YESTERDAY", base, false},
	}
	for _, tt := range tests {
		got, ok := addDuration(base, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s want %s", tt.in, got, tt.want)
	}
}
