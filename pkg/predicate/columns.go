package predicate

// Column types.
const (
	ColumnText     = "text"
	ColumnNumber   = "number"
	ColumnDate     = "date"
	ColumnDateTime = "datetime"
	ColumnBoolean  = "boolean"
	ColumnAssoc    = "assoc"
	ColumnOptions  = "options"
)

// Column describes one journal column a filter row can target.
type Column struct {
	Attribute  string `json:"attribute"`
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Searchable bool   `json:"searchable"`
	Default    bool   `json:"default"`
	Visible    bool   `json:"visible"`
}

var columnPredicates = map[string][]string{
	ColumnText:     {OpContains, OpNotContains, OpEq, OpNotEq, OpStarts, OpEnds, OpEmpty, OpNotEmpty},
	ColumnNumber:   {OpEq, OpNotEq, OpLt, OpLe, OpGt, OpGe, OpEmpty, OpNotEmpty},
	ColumnDate:     {OpEq, OpNotEq, OpLt, OpLe, OpGt, OpGe, OpTimeInterval, OpToday, OpLastNDays, OpNextNDays, OpEmpty, OpNotEmpty},
	ColumnDateTime: {OpTimeInterval, OpEq, OpNotEq, OpLt, OpLe, OpGt, OpGe, OpToday, OpLastNDays, OpNextNDays, OpEmpty, OpNotEmpty},
	ColumnBoolean:  {OpEq, OpNotEq, OpEmpty, OpNotEmpty},
	ColumnAssoc:    {OpEq, OpNotEq, OpEmpty, OpNotEmpty},
	ColumnOptions:  {OpEq, OpNotEq, OpIn, OpEmpty, OpNotEmpty},
}

// Predicates returns the operators applicable to the column, the default
// one first. Unknown types are treated as text.
func (c Column) Predicates() []string {
	if ops, ok := columnPredicates[c.Type]; ok {
		return ops
	}
	return columnPredicates[ColumnText]
}

// DefaultPredicate returns the operator a new filter row on c starts with.
func (c Column) DefaultPredicate() string {
	return c.Predicates()[0]
}

// FindColumn returns the column for att, or nil.
func FindColumn(columns []Column, att string) *Column {
	for i := range columns {
		if columns[i].Attribute == att {
			return &columns[i]
		}
	}
	return nil
}
