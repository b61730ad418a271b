// Package attpath parses the compact attribute path language used to ask a
// record source for one attribute.
//
// A path names an attribute and optionally an inner projection and a
// multiplicity flag:
//
//	photo            name=photo inner=disp
//	photo[]          name=photo inner=disp multiple
//	status?str       name=status inner=str
//	assignee.cm:name name=assignee inner=cm:name?disp
//	doc{disp, str}   name=doc inner=disp,str
//	.atts(n:"tags"){disp}  name=tags inner=.disp multiple
//
// Paths starting with '#' are raw field names, not attribute paths.
package attpath

import (
	"regexp"
	"strings"
)

// DefaultInner is the projection used when a path does not name one.
const DefaultInner = "disp"

// Path is a parsed attribute path. It is recomputed on every load and never
// stored.
type Path struct {
	Name     string `json:"name"`
	Inner    string `json:"inner"`
	Multiple bool   `json:"multiple"`
}

var attExpr = regexp.MustCompile(`^\.atts?\(n:"(.+?)"\)\s*\{(.+)\}`)

// Parse parses path. It returns nil when path is not an attribute path: raw
// field names starting with '#' and malformed '.att' expressions. Callers
// treat nil as "look this up as a raw field".
func Parse(path, innerDefault string) *Path {
	if path == "" || path[0] == '#' {
		return nil
	}
	if path[0] == '.' {
		m := attExpr.FindStringSubmatch(path)
		if m == nil {
			return nil
		}
		return &Path{
			Name:     m[1],
			Inner:    "." + joinInner(m[2]),
			Multiple: strings.HasPrefix(path, ".atts"),
		}
	}

	p := &Path{}
	cut := strings.IndexAny(path, ".{?")
	switch {
	case cut < 0:
		p.Name = path
		p.Inner = innerDefault
	case path[cut] == '.':
		p.Name = path[:cut]
		p.Inner = path[cut+1:]
		if !strings.ContainsAny(p.Inner, "?{") {
			p.Inner += "?" + innerDefault
		}
	case path[cut] == '{':
		p.Name = path[:cut]
		end := strings.LastIndexByte(path, '}')
		if end < cut {
			end = len(path)
		}
		p.Inner = joinInner(path[cut+1 : end])
	default:
		p.Name = path[:cut]
		p.Inner = path[cut+1:]
	}
	if strings.HasSuffix(p.Name, "[]") {
		p.Name = strings.TrimSuffix(p.Name, "[]")
		p.Multiple = true
	}
	return p
}

// joinInner normalises a comma separated projection list.
func joinInner(list string) string {
	parts := strings.Split(list, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, ",")
}

// String renders the path in a form Parse accepts and that yields the same
// name, multiplicity and projection.
func (p Path) String() string {
	if strings.HasPrefix(p.Inner, ".") || strings.ContainsAny(p.Name, ".{?#[") {
		fn := ".att"
		if p.Multiple {
			fn = ".atts"
		}
		inner := strings.TrimPrefix(p.Inner, ".")
		if inner == "" {
			inner = DefaultInner
		}
		return fn + `(n:"` + p.Name + `"){` + inner + "}"
	}
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Multiple {
		b.WriteString("[]")
	}
	if p.Inner != "" {
		b.WriteByte('?')
		b.WriteString(p.Inner)
	}
	return b.String()
}

// Projections splits the inner projection into its comma separated parts,
// ignoring the leading '.' of the '.att' form.
func (p Path) Projections() []string {
	inner := strings.TrimPrefix(p.Inner, ".")
	if inner == "" {
		return nil
	}
	return strings.Split(inner, ",")
}
