// Package build constructs and drives one query: it turns a parsed
// predicate AST and a requested relation/attribute list into a query
// tree, rewrites it, opens the table handlers the tree's leaves need, and
// drains the pull-based executor to a sink. Grounded on
// _examples/original_source's Ch14 build_query_tree entry point, with
// leaf handler opens fanned out concurrently via golang.org/x/sync's
// errgroup (steveyegge-beads style) instead of the source's sequential
// recursive open.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dbxp/spartan/internal/catalog"
	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/expr"
	"github.com/dbxp/spartan/internal/query/plan"
	"github.com/dbxp/spartan/internal/storage/table"
)

// Query is the already-parsed statement handed to the builder: a typed
// predicate AST (per internal/query/expr's explicit non-goal of owning a
// SQL parser), the relations it reads, and the attributes it projects.
// A nil Attributes list means "SELECT *": every field of every relation,
// expanded against the catalog at build time rather than threaded through
// the rewriter as a special sentinel. A nil Where means no restriction.
type Query struct {
	Relations  []string
	Where      expr.Node
	Attributes []attribute.Field
	Distinct   bool
}

// Registry resolves a base table name to its opened Share, used both to
// read catalog metadata and to hand the executor a fresh Handler per
// query. cmd/dbxp owns the concrete registry; tests can supply a fake.
type Registry interface {
	Share(table string) (*table.Share, error)
}

// Build expands q against cat into a rewritten query tree, ready for
// Prepare/Drain.
func Build(cat catalog.Catalog, q Query) (*plan.Tree, error) {
	if len(q.Relations) == 0 {
		return nil, fmt.Errorf("build: query has no relations")
	}
	attrs, err := resolveAttributes(cat, q)
	if err != nil {
		return nil, err
	}

	where := expr.NewExpression()
	if q.Where != nil {
		converted, err := expr.Convert(q.Where)
		if err != nil {
			return nil, fmt.Errorf("build: convert predicate: %w", err)
		}
		where = converted
	}
	joinExpr := expr.GetJoinExpr(where)

	t := plan.NewTree()
	var root *plan.Node
	if len(q.Relations) == 1 {
		root = t.New(plan.Project)
		root.Relations = []string{q.Relations[0]}
		root.Where = where
		root.Attributes = attrs
	} else {
		// The root work-node is always a Project, per spec.md §3's "after
		// rewrite, the root is Project (or Distinct wrapping Project)"
		// invariant — the join goes underneath it rather than carrying the
		// client's attribute list itself, so splitProjectWithJoin's
		// distribution of attributes to the join's two leaves never empties
		// out the one list the sink reads the final projection from.
		join := t.New(plan.Join)
		join.Relations = append([]string(nil), q.Relations...)
		join.Where = where
		join.JoinExpr = joinExpr

		root = t.New(plan.Project)
		root.Attributes = attrs
		t.SetLeft(root, join)
	}
	t.Root = root.ID

	plan.Rewrite(t, q.Distinct)
	return t, nil
}

// resolveAttributes returns q.Attributes as an attribute.List, expanding
// a nil/empty list into every catalog field of every relation in
// declaration order — the builder's "SELECT *" expansion, done at build
// time rather than through a rewriter sentinel.
func resolveAttributes(cat catalog.Catalog, q Query) (*attribute.List, error) {
	list := attribute.NewList()
	if len(q.Attributes) > 0 {
		for _, f := range q.Attributes {
			list.Append(f, false)
		}
		return list, nil
	}
	for _, rel := range q.Relations {
		tbl, err := cat.Table(rel)
		if err != nil {
			return nil, fmt.Errorf("build: expand * for %s: %w", rel, err)
		}
		for _, f := range tbl.Fields {
			list.Append(attribute.Field{Table: rel, Name: f.Name}, false)
		}
	}
	return list, nil
}

// Prepare resolves a handler for every leaf relation in t, fanning the
// opens out concurrently across an errgroup, then hands plan.Executor a
// closure that returns the already-open scanner — so Executor.Prepare's
// own walk never blocks on I/O per leaf.
func Prepare(ctx context.Context, reg Registry, cat catalog.Catalog, t *plan.Tree) (*plan.Executor, []*table.Handler, error) {
	leaves := t.Leaves()
	opened := make(map[string]*table.Handler, len(leaves))
	var g errgroup.Group
	var mu sync.Mutex
	for _, leaf := range leaves {
		for _, rel := range leaf.Relations {
			rel := rel
			g.Go(func() error {
				share, err := reg.Share(rel)
				if err != nil {
					return fmt.Errorf("build: open relation %s: %w", rel, err)
				}
				tbl, err := cat.Table(rel)
				if err != nil {
					return fmt.Errorf("build: catalog lookup %s: %w", rel, err)
				}
				h := table.Open(share, tbl)
				mu.Lock()
				opened[rel] = h
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		for _, h := range opened {
			_ = h.Close()
		}
		return nil, nil, err
	}

	handlers := make([]*table.Handler, 0, len(opened))
	for _, h := range opened {
		handlers = append(handlers, h)
	}

	ex := plan.NewExecutor(t, cat, func(rel string) (plan.Scanner, error) {
		h, ok := opened[rel]
		if !ok {
			return nil, fmt.Errorf("build: no opened handler for relation %s", rel)
		}
		return h, nil
	})
	if err := ex.Prepare(ctx); err != nil {
		for _, h := range handlers {
			_ = h.Close()
		}
		return nil, nil, err
	}
	return ex, handlers, nil
}

// Drain runs the executor to completion, calling sink for each row in
// order along with the root's visible projection attributes (spec.md §6:
// the sink reads back "a copy of the root's projection attributes with
// hidden=false" and projects against it — hidden join keys never reach
// sink), then cleans up every leaf scanner regardless of sink's outcome.
func Drain(ctx context.Context, ex *plan.Executor, handlers []*table.Handler, sink func(plan.Row, []attribute.Field) error) error {
	defer func() {
		if err := ex.Cleanup(ctx); err != nil {
			slog.Warn("build: cleanup failed", slog.Any("err", err))
		}
		for _, h := range handlers {
			_ = h.Close()
		}
	}()
	attrs := ex.Attributes()
	for {
		row, err := ex.GetNext(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := sink(row, attrs); err != nil {
			return err
		}
	}
}
