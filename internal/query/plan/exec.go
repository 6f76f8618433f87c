package plan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/dbxp/spartan/internal/catalog"
	"github.com/dbxp/spartan/internal/obs"
	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/expr"
)

var noID = uuid.Nil

// Scanner is the minimal relation-access surface the executor needs from
// a table handler: a heap (or, eventually, index) scan that can be reset
// and pulled from one row at a time. internal/storage/table.Handler
// satisfies this.
type Scanner interface {
	ScanInit(ctx context.Context) error
	ScanNext(ctx context.Context, buf []byte) error // io.EOF at end
	ScanClose(ctx context.Context) error
	RowLength() int
}

// Opener resolves a base table name to a fresh Scanner. The builder binds
// this to the live table registry; tests can stub it with fixtures.
type Opener func(table string) (Scanner, error)

// Row is one tuple as it flows up the tree: the accumulated per-table
// record buffers contributed by every leaf pulled so far. Parent
// operators (Project, the sink) read named fields back out of these
// buffers via the catalog.
type Row struct {
	Tuples map[string]expr.Tuple
}

func newRow() Row { return Row{Tuples: make(map[string]expr.Tuple)} }

func (r Row) merge(table string, buf []byte) Row {
	out := newRow()
	for k, v := range r.Tuples {
		out.Tuples[k] = v
	}
	out.Tuples[table] = expr.Tuple{Table: table, Buf: buf}
	return out
}

// execState holds per-node runtime state, populated by Prepare.
type execState struct {
	scanner Scanner

	// Join preempt buffers.
	left, right  []joinEntry
	pairs        []pairIdx
	pairCursor   int
	preempted    bool

	// Distinct state.
	seen map[string]bool
}

type joinEntry struct {
	row Row
	key []byte
}

type pairIdx struct{ l, r int }

// Executor drives one query tree to completion against a Catalog and a
// table Opener.
type Executor struct {
	tree *Tree
	cat  catalog.Catalog
	open Opener
}

// NewExecutor binds a rewritten tree to the catalog and table opener it
// will pull rows from.
func NewExecutor(t *Tree, cat catalog.Catalog, open Opener) *Executor {
	return &Executor{tree: t, cat: cat, open: open}
}

// Prepare opens a heap scan for every leaf relation reachable from the
// root. Index-backed access is a Non-goal per spec.md §4.6 ("the ndx[]
// array is filled but never read"): every leaf is a heap scan.
func (ex *Executor) Prepare(ctx context.Context) error {
	var err error
	ex.tree.WalkPostOrder(func(n *Node) {
		if err != nil {
			return
		}
		n.exec = &execState{}
		if len(n.Relations) == 1 && n.IsLeaf() {
			var sc Scanner
			sc, err = ex.open(n.Relations[0])
			if err != nil {
				err = fmt.Errorf("plan: open relation %s: %w", n.Relations[0], err)
				return
			}
			if err = sc.ScanInit(ctx); err != nil {
				return
			}
			n.exec.scanner = sc
		}
		if n.Kind == Distinct {
			n.exec.seen = make(map[string]bool)
		}
	})
	return err
}

// Attributes returns the client-visible projection columns — the
// hidden=false attributes of the tree's root, per spec.md §6's contract
// that a sink reads back "a copy of the root's projection attributes with
// hidden=false". Hidden attributes (join keys carried down for the
// executor's own use) never reach the caller.
func (ex *Executor) Attributes() []attribute.Field {
	root := ex.tree.VisibleRoot()
	if root == nil {
		return nil
	}
	visible := root.Attributes.Visible()
	out := make([]attribute.Field, 0, len(visible))
	for _, a := range visible {
		out = append(out, a.Field)
	}
	return out
}

// GetNext pulls the next output row from the tree's root, returning
// io.EOF once the result set is exhausted.
func (ex *Executor) GetNext(ctx context.Context) (Row, error) {
	return ex.pull(ctx, ex.tree.Get(ex.tree.Root))
}

func (ex *Executor) pull(ctx context.Context, n *Node) (Row, error) {
	if n == nil {
		return Row{}, io.EOF
	}
	obs.Metrics.NodePulls.Add(ctx, 1, metric.WithAttributes(obs.TableAttr(firstRelation(n))))
	switch n.Kind {
	case Restrict:
		return ex.pullRestrict(ctx, n)
	case Project, Distinct:
		if n.Kind == Distinct {
			return ex.pullDistinct(ctx, n)
		}
		return ex.pullProject(ctx, n)
	case Join:
		return ex.pullJoin(ctx, n)
	default:
		return ex.pullLeaf(ctx, n)
	}
}

func firstRelation(n *Node) string {
	if len(n.Relations) == 0 {
		return ""
	}
	return n.Relations[0]
}

// pullLeaf reads the next raw row from n's own scanner (used by leaf
// Restrict/Project nodes that carry a relation directly).
func (ex *Executor) pullLeaf(ctx context.Context, n *Node) (Row, error) {
	if n.exec.scanner == nil {
		return Row{}, io.EOF
	}
	buf := make([]byte, n.exec.scanner.RowLength())
	if err := n.exec.scanner.ScanNext(ctx, buf); err != nil {
		return Row{}, err
	}
	return newRow().merge(n.Relations[0], buf), nil
}

func (ex *Executor) pullRestrict(ctx context.Context, n *Node) (Row, error) {
	for {
		row, err := ex.pullChildOrLeaf(ctx, n)
		if err != nil {
			return Row{}, err
		}
		if n.Where.Empty() {
			return row, nil
		}
		table := firstRelation(n)
		tup, ok := row.Tuples[table]
		if !ok {
			return Row{}, fmt.Errorf("plan: restrict %s missing tuple for %s", n.ID, table)
		}
		ok2, err := expr.Evaluate(n.Where, ex.cat, tup)
		if err != nil {
			return Row{}, err
		}
		if ok2 {
			return row, nil
		}
	}
}

func (ex *Executor) pullProject(ctx context.Context, n *Node) (Row, error) {
	return ex.pullChildOrLeaf(ctx, n)
}

func (ex *Executor) pullChildOrLeaf(ctx context.Context, n *Node) (Row, error) {
	if n.LeftID != noID {
		left := ex.tree.Get(n.LeftID)
		return ex.pull(ctx, left)
	}
	return ex.pullLeaf(ctx, n)
}

func (ex *Executor) pullDistinct(ctx context.Context, n *Node) (Row, error) {
	left := ex.tree.Get(n.LeftID)
	for {
		row, err := ex.pull(ctx, left)
		if err != nil {
			return Row{}, err
		}
		key := distinctKey(row)
		if n.exec.seen[key] {
			continue
		}
		n.exec.seen[key] = true
		return row, nil
	}
}

func distinctKey(row Row) string {
	var buf bytes.Buffer
	for _, t := range row.Tuples {
		buf.WriteString(t.Table)
		buf.Write(t.Buf)
	}
	return buf.String()
}

// pullJoin implements the sort-merge join with preemption from spec.md
// §4.6: on first pull, both children are fully drained into buffers
// sorted by their join key, skipping NULL/"NONE" keys; output pairs are
// then produced by the standard merge-join equal-run cross product, which
// both implements spec.md's documented rewind behavior for one-to-many
// expansion and fixes the "both sides advance simultaneously" gap spec.md
// §9 item 6 flags as a likely source bug, since every equal-key run on
// each side is fully crossed rather than advanced one pair at a time.
func (ex *Executor) pullJoin(ctx context.Context, n *Node) (Row, error) {
	if !n.exec.preempted {
		if err := ex.drainJoin(ctx, n); err != nil {
			return Row{}, err
		}
		n.exec.preempted = true
	}
	if n.exec.pairCursor >= len(n.exec.pairs) {
		return Row{}, io.EOF
	}
	p := n.exec.pairs[n.exec.pairCursor]
	n.exec.pairCursor++
	out := newRow()
	for k, v := range n.exec.left[p.l].row.Tuples {
		out.Tuples[k] = v
	}
	for k, v := range n.exec.right[p.r].row.Tuples {
		out.Tuples[k] = v
	}
	return out, nil
}

func (ex *Executor) drainJoin(ctx context.Context, n *Node) error {
	term := primaryJoinTerm(n)
	if term == nil {
		return fmt.Errorf("plan: join %s has no usable join term", n.ID)
	}
	leftField, ok := term.Left.(expr.FieldOperand)
	if !ok {
		return fmt.Errorf("plan: join %s left operand is not a field", n.ID)
	}
	rightField, ok := term.Right.(expr.FieldOperand)
	if !ok {
		return fmt.Errorf("plan: join %s right operand is not a field", n.ID)
	}

	left, err := ex.drainSide(ctx, ex.tree.Get(n.LeftID), leftField)
	if err != nil {
		return err
	}
	right, err := ex.drainSide(ctx, ex.tree.Get(n.RightID), rightField)
	if err != nil {
		return err
	}
	n.exec.left, n.exec.right = left, right
	n.exec.pairs = mergePairs(left, right)
	n.exec.pairCursor = 0
	obs.Metrics.JoinBufferRows.Record(ctx, int64(len(left)+len(right)))
	slog.Debug("plan: join drained", slog.Int("left_rows", len(left)), slog.Int("right_rows", len(right)), slog.Int("pairs", len(n.exec.pairs)))
	return nil
}

func primaryJoinTerm(n *Node) *expr.Term {
	terms := n.JoinExpr.Terms()
	if len(terms) == 0 {
		return nil
	}
	return terms[0]
}

func (ex *Executor) drainSide(ctx context.Context, side *Node, field expr.FieldOperand) ([]joinEntry, error) {
	var out []joinEntry
	for {
		row, err := ex.pull(ctx, side)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		tup, ok := row.Tuples[field.Table]
		if !ok {
			continue
		}
		key, err := expr.ReadFieldBytes(ex.cat, field, tup.Buf)
		if err != nil {
			return nil, err
		}
		if expr.IsNullish(key) {
			continue
		}
		out = append(out, joinEntry{row: row, key: key})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return bytes.Compare(out[i].key, out[j].key) < 0
	})
	return out, nil
}

func mergePairs(left, right []joinEntry) []pairIdx {
	var pairs []pairIdx
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		c := bytes.Compare(left[i].key, right[j].key)
		switch {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			iEnd := i
			for iEnd < len(left) && bytes.Equal(left[iEnd].key, left[i].key) {
				iEnd++
			}
			jEnd := j
			for jEnd < len(right) && bytes.Equal(right[jEnd].key, right[j].key) {
				jEnd++
			}
			for a := i; a < iEnd; a++ {
				for b := j; b < jEnd; b++ {
					pairs = append(pairs, pairIdx{a, b})
				}
			}
			i, j = iEnd, jEnd
		}
	}
	return pairs
}

// Cleanup calls ScanClose on every relation's scanner, post-order, per
// spec.md §4.6.
func (ex *Executor) Cleanup(ctx context.Context) error {
	var first error
	ex.tree.WalkPostOrder(func(n *Node) {
		if n.exec == nil || n.exec.scanner == nil {
			return
		}
		if err := n.exec.scanner.ScanClose(ctx); err != nil && first == nil {
			first = err
		}
	})
	return first
}
