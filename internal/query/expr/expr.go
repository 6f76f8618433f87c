package expr

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dbxp/spartan/internal/catalog"
)

// Junction binds a term to the one before it in left-to-right scan order.
type Junction int

const (
	JNone Junction = iota
	JAnd
	JOr
)

// Term is one boolean comparison plus the junction connecting it to the
// previous term. There is no per-term precedence: AND and OR bind with
// equal, strictly left-to-right precedence (spec.md §4.4).
type Term struct {
	Left, Right Operand
	Op          Op
	Junction    Junction
	Next        *Term
}

// Expression is the linked list of Terms making up a WHERE or JOIN
// predicate. It is walked far more often than it is rebuilt, hence the
// list representation instead of a slice copy on every pass.
type Expression struct {
	head, tail *Term
}

// NewExpression returns an empty expression.
func NewExpression() *Expression { return &Expression{} }

// Empty reports whether the expression has no terms.
func (e *Expression) Empty() bool { return e.head == nil }

// Append adds t to the end of the list. The first appended term's
// Junction is ignored during evaluation (there is nothing before it).
func (e *Expression) Append(t *Term) {
	if e.head == nil {
		e.head, e.tail = t, t
		return
	}
	e.tail.Next = t
	e.tail = t
}

// Terms returns the terms in order, for callers that want to inspect or
// rebuild rather than walk the linked list directly.
func (e *Expression) Terms() []*Term {
	var out []*Term
	for t := e.head; t != nil; t = t.Next {
		out = append(out, t)
	}
	return out
}

// Clone makes an independent copy of the expression's term list (the
// Terms themselves are copied by value, so mutating a clone's terms never
// affects the original).
func (e *Expression) Clone() *Expression {
	out := NewExpression()
	for t := e.head; t != nil; t = t.Next {
		cp := *t
		cp.Next = nil
		out.Append(&cp)
	}
	return out
}

// Convert walks a parsed predicate AST and flattens it into a linked list
// of Terms, consuming each Compare node in [junction?, operator, right,
// left] order, per spec.md §4.4. Binary And/Or nodes become two terms
// chained by the node's own junction; there is no parenthesization
// preserved below the AST, matching the source.
func Convert(n Node) (*Expression, error) {
	e := NewExpression()
	if err := convertInto(n, JNone, e); err != nil {
		return nil, err
	}
	return e, nil
}

func convertInto(n Node, junction Junction, e *Expression) error {
	switch v := n.(type) {
	case *Compare:
		e.Append(&Term{Left: v.Left, Op: v.Op, Right: v.Right, Junction: junction})
		return nil
	case *And:
		if err := convertInto(v.Left, junction, e); err != nil {
			return err
		}
		return convertInto(v.Right, JAnd, e)
	case *Or:
		if err := convertInto(v.Left, junction, e); err != nil {
			return err
		}
		return convertInto(v.Right, JOr, e)
	default:
		return fmt.Errorf("expr: convert: unrecognized AST node %T", n)
	}
}

// ErrJoinTerm is returned by Evaluate when it reaches a term whose both
// operands are fields — the source's "not a simple comparison" sentinel
// (90125), surfaced here as a typed error instead of a magic number.
var ErrJoinTerm = errors.New("expr: term is a join predicate, not a simple comparison")

// Tuple is one base relation's current row: its table name (for resolving
// Field operands) and its fixed-shape record buffer.
type Tuple struct {
	Table string
	Buf   []byte
}

// Evaluate folds the expression's terms left-to-right against a single
// tuple, using each term's own Junction to combine with the running
// result. Both sides of every AND/OR are evaluated; there is no
// short-circuit, matching spec.md §4.4.
func Evaluate(e *Expression, cat catalog.Catalog, tuple Tuple) (bool, error) {
	if e.Empty() {
		return true, nil
	}
	result := false
	first := true
	for t := e.head; t != nil; t = t.Next {
		v, err := evalTerm(t, cat, tuple)
		if err != nil {
			return false, err
		}
		if first {
			result = v
			first = false
			continue
		}
		switch t.Junction {
		case JAnd:
			result = result && v
		case JOr:
			result = result || v
		default:
			result = v
		}
	}
	return result, nil
}

func evalTerm(t *Term, cat catalog.Catalog, tuple Tuple) (bool, error) {
	if isField(t.Left) && isField(t.Right) {
		return false, ErrJoinTerm
	}
	lv, lok, err := resolveScalar(t.Left, cat, tuple)
	if err != nil {
		return false, err
	}
	rv, rok, err := resolveScalar(t.Right, cat, tuple)
	if err != nil {
		return false, err
	}
	if !lok || !rok {
		// Unresolved operand (unknown field, or a field of another
		// table): evaluation returns false for this term.
		return false, nil
	}
	if (lv.kind == catalog.TypeInt64) != (rv.kind == catalog.TypeInt64) {
		// Type mismatch (integer against string or decimal): evaluation
		// returns false for this term without propagating, per spec.md §7
		// item 4.
		return false, nil
	}
	return compareValues(lv, rv, t.Op)
}

func isField(o Operand) bool {
	_, ok := o.(FieldOperand)
	return ok
}

// scalar is a tagged runtime value pulled from a literal or a tuple field.
type scalar struct {
	kind catalog.FieldType
	i    int64
	s    string
}

func resolveScalar(o Operand, cat catalog.Catalog, tuple Tuple) (scalar, bool, error) {
	switch v := o.(type) {
	case IntOperand:
		return scalar{kind: catalog.TypeInt64, i: v.Value}, true, nil
	case StringOperand:
		return scalar{kind: catalog.TypeString, s: v.Value}, true, nil
	case DecimalOperand:
		return scalar{kind: catalog.TypeDecimal, i: v.Unscaled, s: strconv.Itoa(v.Scale)}, true, nil
	case FieldOperand:
		f, err := cat.Field(v.Table, v.Name)
		if err != nil {
			return scalar{}, false, nil
		}
		if v.Table != tuple.Table {
			return scalar{}, false, nil
		}
		return readField(f, tuple.Buf), true, nil
	default:
		return scalar{}, false, fmt.Errorf("expr: unknown operand type %T", o)
	}
}

func readField(f catalog.Field, buf []byte) scalar {
	end := f.Offset + f.Length
	if end > len(buf) {
		end = len(buf)
	}
	if f.Offset > end {
		return scalar{kind: f.Type}
	}
	raw := buf[f.Offset:end]
	switch f.Type {
	case catalog.TypeInt64:
		var v int64
		for _, b := range raw {
			v = v<<8 | int64(b)
		}
		return scalar{kind: catalog.TypeInt64, i: v}
	case catalog.TypeDecimal:
		return scalar{kind: catalog.TypeDecimal, s: strings.TrimRight(string(raw), "\x00")}
	default:
		return scalar{kind: catalog.TypeString, s: strings.TrimRight(string(raw), "\x00")}
	}
}

func compareValues(l, r scalar, op Op) (bool, error) {
	var c int
	switch {
	case l.kind == catalog.TypeInt64 || r.kind == catalog.TypeInt64:
		c = compareInt(l.i, r.i)
	case l.kind == catalog.TypeDecimal || r.kind == catalog.TypeDecimal:
		c = compareDecimalStrings(l.s, r.s)
	default:
		c = compareStringsCI(l.s, r.s)
	}
	switch op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	default:
		return false, fmt.Errorf("expr: unknown operator %v", op)
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareStringsCI compares the shorter-common-prefix of a and b,
// case-insensitively, matching spec.md's strncasecmp(min(len_left,
// len_right)) behavior.
func compareStringsCI(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return strings.Compare(strings.ToLower(a[:n]), strings.ToLower(b[:n]))
}

func compareDecimalStrings(a, b string) int {
	return strings.Compare(a, b)
}

// CompareJoin reads the join term's left operand from tLeft and its right
// operand from tRight and returns a memcmp-style ordering (<0, 0, >0)
// over the shorter common byte prefix, per spec.md §4.4.
func CompareJoin(t *Term, cat catalog.Catalog, tLeft, tRight Tuple) (int, error) {
	lf, ok := t.Left.(FieldOperand)
	if !ok {
		return 0, fmt.Errorf("expr: CompareJoin: left operand is not a field")
	}
	rf, ok := t.Right.(FieldOperand)
	if !ok {
		return 0, fmt.Errorf("expr: CompareJoin: right operand is not a field")
	}
	lField, err := cat.Field(lf.Table, lf.Name)
	if err != nil {
		return 0, err
	}
	rField, err := cat.Field(rf.Table, rf.Name)
	if err != nil {
		return 0, err
	}
	lBuf := fieldBytes(lField, tLeft.Buf)
	rBuf := fieldBytes(rField, tRight.Buf)
	n := len(lBuf)
	if len(rBuf) < n {
		n = len(rBuf)
	}
	return bytes.Compare(lBuf[:n], rBuf[:n]), nil
}

// ReadFieldBytes resolves f against cat and returns its raw bytes within
// buf, for callers (the sort-merge join) that need the join-key bytes
// without going through the scalar comparison machinery.
func ReadFieldBytes(cat catalog.Catalog, f FieldOperand, buf []byte) ([]byte, error) {
	field, err := cat.Field(f.Table, f.Name)
	if err != nil {
		return nil, err
	}
	return fieldBytes(field, buf), nil
}

// IsNullish reports whether raw represents an absent join key: all
// zero-valued bytes, or a trimmed value of "NULL"/"NONE", per spec.md
// §4.6's "skip tuples whose join field is NULL or stringifies to NONE".
func IsNullish(raw []byte) bool {
	trimmed := strings.TrimRight(string(raw), "\x00")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return true
	}
	upper := strings.ToUpper(trimmed)
	return upper == "NULL" || upper == "NONE"
}

func fieldBytes(f catalog.Field, buf []byte) []byte {
	end := f.Offset + f.Length
	if end > len(buf) {
		end = len(buf)
	}
	if f.Offset > end {
		return nil
	}
	return buf[f.Offset:end]
}

// GetJoinExpr destructively extracts every term whose both operands are
// fields out of where (preserving relative order) into a new join
// Expression, leaving the residual single-table predicate behind.
func GetJoinExpr(where *Expression) *Expression {
	join := NewExpression()
	var kept *Term
	var keptHead *Term
	for t := where.head; t != nil; {
		next := t.Next
		t.Next = nil
		if isField(t.Left) && isField(t.Right) {
			join.Append(t)
		} else {
			if kept == nil {
				keptHead = t
			} else {
				kept.Next = t
			}
			kept = t
		}
		t = next
	}
	where.head, where.tail = keptHead, kept
	return join
}

// HasTable reports whether any term in e references table t, on either
// side.
func HasTable(e *Expression, table string) bool {
	for t := e.head; t != nil; t = t.Next {
		if refsTable(t.Left, table) || refsTable(t.Right, table) {
			return true
		}
	}
	return false
}

func refsTable(o Operand, table string) bool {
	f, ok := o.(FieldOperand)
	return ok && f.Table == table
}

// IndexOf returns the 1-based position of the first term mentioning the
// named attribute, or 0 if none does.
func IndexOf(e *Expression, table, name string) int {
	i := 0
	for t := e.head; t != nil; t = t.Next {
		i++
		if matchesField(t.Left, table, name) || matchesField(t.Right, table, name) {
			return i
		}
	}
	return 0
}

func matchesField(o Operand, table, name string) bool {
	f, ok := o.(FieldOperand)
	return ok && f.Table == table && f.Name == name
}

// ReduceExpressions is a hook for folding always-true/always-false terms
// once a specific table's row is known. The source leaves the equivalent
// hook (reduce_expressions) unimplemented; this module keeps it an
// explicit identity transform rather than guessing a folding strategy
// that spec.md does not define (see SPEC_FULL.md open question 7's
// sibling note on apply_indexes/balance_joins).
func ReduceExpressions(e *Expression, table string) *Expression {
	return e
}
