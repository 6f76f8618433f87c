package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/expr"
)

// queryFlags are the --where/--project options shared by select and
// explain: a minimal stand-in for a real SQL WHERE clause, matching
// internal/query/expr's explicit non-goal of owning a parser. Each
// produces the same typed AST a real parser would, over the full operator
// set internal/query/expr evaluates (=, !=, <, <=, >, >=).
type queryFlags struct {
	where    []string // "table.field<op>value" or "table.field<op>table2.field2"
	project  []string // "table.field"
	distinct bool
}

func (q queryFlags) attributes() ([]attribute.Field, error) {
	var out []attribute.Field
	for _, p := range q.project {
		f, err := parseFieldRef(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (q queryFlags) ast() (expr.Node, error) {
	var root expr.Node
	for _, clause := range q.where {
		leftStr, op, rightStr, err := splitClause(clause)
		if err != nil {
			return nil, err
		}
		left, err := parseFieldRef(leftStr)
		if err != nil {
			return nil, err
		}
		right := parseOperand(rightStr)
		cmp := &expr.Compare{Left: expr.FieldOperand{Table: left.Table, Name: left.Name}, Op: op, Right: right}
		if root == nil {
			root = cmp
		} else {
			root = &expr.And{Left: root, Right: cmp}
		}
	}
	if root == nil {
		return &expr.Compare{Left: expr.IntOperand{Value: 1}, Op: expr.OpEq, Right: expr.IntOperand{Value: 1}}, nil
	}
	return root, nil
}

// comparisonTokens is checked longest-first so "!=" and ">=" are not
// mistaken for a bare "=" or ">" one character in.
var comparisonTokens = []struct {
	tok string
	op  expr.Op
}{
	{"!=", expr.OpNe},
	{">=", expr.OpGe},
	{"<=", expr.OpLe},
	{"=", expr.OpEq},
	{"<", expr.OpLt},
	{">", expr.OpGt},
}

// splitClause finds the first comparison operator in clause and splits
// around it, returning the operand strings and the matched expr.Op.
func splitClause(clause string) (left string, op expr.Op, right string, err error) {
	for i := 0; i < len(clause); i++ {
		for _, c := range comparisonTokens {
			if strings.HasPrefix(clause[i:], c.tok) {
				return clause[:i], c.op, clause[i+len(c.tok):], nil
			}
		}
	}
	return "", 0, "", fmt.Errorf("dbxp: bad --where %q, want table.field<op>value", clause)
}

func parseFieldRef(s string) (attribute.Field, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return attribute.Field{}, fmt.Errorf("dbxp: bad field reference %q, want table.field", s)
	}
	return attribute.Field{Table: parts[0], Name: parts[1]}, nil
}

// parseOperand recognizes "table.field" as a join key, an integer as an
// IntOperand, and anything else as a string literal.
func parseOperand(s string) expr.Operand {
	if f, err := parseFieldRef(s); err == nil && looksLikeFieldRef(s) {
		return expr.FieldOperand{Table: f.Table, Name: f.Name}
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return expr.IntOperand{Value: v}
	}
	return expr.StringOperand{Value: s}
}

func looksLikeFieldRef(s string) bool {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return false
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
		return false
	}
	return true
}
