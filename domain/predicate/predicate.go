// Package predicate implements the typed boolean queries that carve an
// experiment table into analysis groups.
//
// A predicate is one of FieldEquals, FieldNotEquals, In, And, Or or Not.
// Evaluation is a pure function of an experiment's metadata; a field the
// experiment does not carry reads as the empty string, so evaluation never
// fails once the predicate has been validated against the table schema.
package predicate

import (
	"sort"
	"strconv"
	"strings"

	"goale/domain/core"
	"goale/domain/experiment"
)

// Predicate is a boolean query over experiment metadata
type Predicate interface {
	Eval(e experiment.Experiment) bool
	// Fields lists the metadata fields the predicate reads, sorted and unique
	Fields() []string
	// String renders the canonical expression
	String() string
	sealed()
}

// FieldEquals holds when Field == Value
type FieldEquals struct {
	Field string
	Value string
}

// FieldNotEquals holds when Field != Value
type FieldNotEquals struct {
	Field string
	Value string
}

// In holds when Field equals any of Values
type In struct {
	Field  string
	Values []string
}

// And holds when every term holds; an empty And is true
type And struct {
	Terms []Predicate
}

// Or holds when any term holds; an empty Or is false
type Or struct {
	Terms []Predicate
}

// Not negates its term
type Not struct {
	Term Predicate
}

func (FieldEquals) sealed()    {}
func (FieldNotEquals) sealed() {}
func (In) sealed()             {}
func (And) sealed()            {}
func (Or) sealed()             {}
func (Not) sealed()            {}

func value(e experiment.Experiment, field string) string {
	v, _ := e.Field(field)
	return v
}

func (p FieldEquals) Eval(e experiment.Experiment) bool    { return value(e, p.Field) == p.Value }
func (p FieldNotEquals) Eval(e experiment.Experiment) bool { return value(e, p.Field) != p.Value }

func (p In) Eval(e experiment.Experiment) bool {
	v := value(e, p.Field)
	for _, candidate := range p.Values {
		if v == candidate {
			return true
		}
	}
	return false
}

func (p And) Eval(e experiment.Experiment) bool {
	for _, t := range p.Terms {
		if !t.Eval(e) {
			return false
		}
	}
	return true
}

func (p Or) Eval(e experiment.Experiment) bool {
	for _, t := range p.Terms {
		if t.Eval(e) {
			return true
		}
	}
	return false
}

func (p Not) Eval(e experiment.Experiment) bool { return !p.Term.Eval(e) }

func (p FieldEquals) Fields() []string    { return []string{p.Field} }
func (p FieldNotEquals) Fields() []string { return []string{p.Field} }
func (p In) Fields() []string             { return []string{p.Field} }
func (p And) Fields() []string            { return collectFields(p.Terms) }
func (p Or) Fields() []string             { return collectFields(p.Terms) }
func (p Not) Fields() []string            { return p.Term.Fields() }

func collectFields(terms []Predicate) []string {
	seen := make(map[string]struct{})
	for _, t := range terms {
		for _, f := range t.Fields() {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (p FieldEquals) String() string    { return p.Field + " == " + strconv.Quote(p.Value) }
func (p FieldNotEquals) String() string { return p.Field + " != " + strconv.Quote(p.Value) }

func (p In) String() string {
	quoted := make([]string, len(p.Values))
	for i, v := range p.Values {
		quoted[i] = strconv.Quote(v)
	}
	return p.Field + " in [" + strings.Join(quoted, ", ") + "]"
}

func (p And) String() string { return join(p.Terms, " and ", "true") }
func (p Or) String() string  { return join(p.Terms, " or ", "false") }
func (p Not) String() string { return "not (" + p.Term.String() + ")" }

func join(terms []Predicate, sep, empty string) string {
	if len(terms) == 0 {
		return empty
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = "(" + t.String() + ")"
	}
	return strings.Join(parts, sep)
}

// Schema is the view of a table a predicate is validated against
type Schema interface {
	HasField(name string) bool
}

// Validate fails with a configuration error when the predicate reads a field
// the schema does not define
func Validate(p Predicate, schema Schema) error {
	if p == nil {
		return core.NewConfigError(core.ErrMalformedPredicate, "nil predicate")
	}
	for _, f := range p.Fields() {
		if !schema.HasField(f) {
			return core.NewConfigError(core.ErrUnknownField, "%q referenced by %s", f, p.String())
		}
	}
	return nil
}

// Negate returns the complement of p, folding the simple cases so that
// Negate(Negate(p)) renders identically to p
func Negate(p Predicate) Predicate {
	switch q := p.(type) {
	case FieldEquals:
		return FieldNotEquals(q)
	case FieldNotEquals:
		return FieldEquals(q)
	case Not:
		return q.Term
	default:
		return Not{Term: p}
	}
}

// Complementary reports whether b is the syntactic negation of a
func Complementary(a, b Predicate) bool {
	if a == nil || b == nil {
		return false
	}
	return Negate(a).String() == b.String() || Negate(b).String() == a.String()
}

// SharesField reports whether a and b read at least one common field
func SharesField(a, b Predicate) bool {
	fa := a.Fields()
	for _, f := range b.Fields() {
		i := sort.SearchStrings(fa, f)
		if i < len(fa) && fa[i] == f {
			return true
		}
	}
	return false
}
