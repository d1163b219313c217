package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"goale/domain/core"

	"github.com/antonmedv/expr/ast"
	"github.com/antonmedv/expr/parser"
)

// Parse turns a query such as `modality_pres == "visual"` into a Predicate.
//
// Supported: ==, !=, in [...], and/&&, or/||, not/!, parentheses. Literals
// may be strings, numbers or booleans; they compare against the textual
// metadata value. The expression is only parsed, never executed.
func Parse(expr string) (Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, core.NewConfigError(core.ErrMalformedPredicate, "empty expression")
	}
	tree, err := parser.Parse(expr)
	if err != nil {
		return nil, core.NewConfigError(core.ErrMalformedPredicate, "%q: %v", expr, err)
	}
	p, err := convert(tree.Node)
	if err != nil {
		return nil, core.NewConfigError(core.ErrMalformedPredicate, "%q: %v", expr, err)
	}
	return p, nil
}

// MustParse is Parse for static expressions; it panics on error
func MustParse(expr string) Predicate {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

type unsupportedError string

func (e unsupportedError) Error() string { return string(e) }

func convert(node ast.Node) (Predicate, error) {
	switch n := node.(type) {
	case *ast.BinaryNode:
		return convertBinary(n)
	case *ast.UnaryNode:
		switch n.Operator {
		case "not", "!":
			inner, err := convert(n.Node)
			if err != nil {
				return nil, err
			}
			return Not{Term: inner}, nil
		}
		return nil, unsupportedError("unsupported unary operator " + n.Operator)
	case *ast.BoolNode:
		if n.Value {
			return And{}, nil
		}
		return Or{}, nil
	}
	return nil, unsupportedError(fmt.Sprintf("unsupported expression %T", node))
}

func convertBinary(n *ast.BinaryNode) (Predicate, error) {
	switch n.Operator {
	case "and", "&&", "or", "||":
		left, err := convert(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := convert(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Operator == "and" || n.Operator == "&&" {
			return And{Terms: flattenAnd(left, right)}, nil
		}
		return Or{Terms: flattenOr(left, right)}, nil

	case "==", "!=":
		field, lit, err := comparison(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		if n.Operator == "==" {
			return FieldEquals{Field: field, Value: lit}, nil
		}
		return FieldNotEquals{Field: field, Value: lit}, nil

	case "in", "not in":
		ident, ok := n.Left.(*ast.IdentifierNode)
		if !ok {
			return nil, unsupportedError("left side of in must be a field name")
		}
		arr, ok := n.Right.(*ast.ArrayNode)
		if !ok {
			return nil, unsupportedError("right side of in must be a list")
		}
		values := make([]string, 0, len(arr.Nodes))
		for _, item := range arr.Nodes {
			v, ok := literal(item)
			if !ok {
				return nil, unsupportedError("list items must be literals")
			}
			values = append(values, v)
		}
		var p Predicate = In{Field: ident.Value, Values: values}
		if n.Operator == "not in" {
			p = Not{Term: p}
		}
		return p, nil
	}
	return nil, unsupportedError("unsupported operator " + n.Operator)
}

func flattenAnd(terms ...Predicate) []Predicate {
	out := make([]Predicate, 0, len(terms))
	for _, t := range terms {
		if a, ok := t.(And); ok {
			out = append(out, a.Terms...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func flattenOr(terms ...Predicate) []Predicate {
	out := make([]Predicate, 0, len(terms))
	for _, t := range terms {
		if o, ok := t.(Or); ok {
			out = append(out, o.Terms...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// comparison accepts `field op literal` in either order
func comparison(left, right ast.Node) (string, string, error) {
	if ident, ok := left.(*ast.IdentifierNode); ok {
		if lit, ok := literal(right); ok {
			return ident.Value, lit, nil
		}
	}
	if ident, ok := right.(*ast.IdentifierNode); ok {
		if lit, ok := literal(left); ok {
			return ident.Value, lit, nil
		}
	}
	return "", "", unsupportedError("comparison must be between a field and a literal")
}

func literal(node ast.Node) (string, bool) {
	switch n := node.(type) {
	case *ast.StringNode:
		return n.Value, true
	case *ast.IntegerNode:
		return strconv.Itoa(n.Value), true
	case *ast.FloatNode:
		return strconv.FormatFloat(n.Value, 'g', -1, 64), true
	case *ast.BoolNode:
		return strconv.FormatBool(n.Value), true
	}
	return "", false
}
