package plan

import (
	"github.com/google/uuid"

	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/expr"
)

// Rewrite runs the heuristic optimizer over tree in the order spec.md §4.5
// prescribes: split restrict-with-join, split project-with-join, split
// restrict-with-project, push restrictions, push projections, push joins,
// prune, then (if the original query was DISTINCT) wrap the root.
//
// The builder in internal/query/build hands over a single flat Join
// work-node that carries every relation and the whole join expression, so
// no join term is left above a lower Join. pushJoins therefore moves no
// join terms: it only marks a multi-relation Join that has no join
// expression as Inner/On, and reports a change only when it alters a node,
// so its fixpoint loop ends.
func Rewrite(t *Tree, distinct bool) {
	splitRestrictWithJoin(t, t.Root)
	splitProjectWithJoin(t, t.Root)
	splitRestrictWithProject(t, t.Root)
	fixpoint(func() bool { return pushRestrictions(t, t.Root) })
	fixpoint(func() bool { return pushProjections(t, t.Root) })
	fixpoint(func() bool { return pushJoins(t, t.Root) })
	pruneTree(t, t.Root)
	if distinct {
		wrapDistinct(t)
	}
}

func fixpoint(step func() bool) {
	for step() {
	}
}

// splitRestrictWithJoin implements spec.md §4.5 step 1: a Join work-node
// that still carries both a join predicate and a residual where-clause
// gets the where-clause split into a new Restrict filling the side that
// references it.
func splitRestrictWithJoin(t *Tree, id uuid.UUID) {
	n := t.Get(id)
	if n == nil {
		return
	}
	if n.Kind == Join && !n.JoinExpr.Empty() && !n.Where.Empty() {
		table := findTableInExpr(n.Where, n.Relations)
		if table != "" {
			restrict := t.New(Restrict)
			restrict.Where = n.Where
			restrict.Relations = []string{table}
			distributeAttributes(n, restrict, table)
			n.Where = expr.NewExpression()
			attachBySide(t, n, restrict, table)
		}
	}
	splitRestrictWithJoin(t, n.LeftID)
	splitRestrictWithJoin(t, n.RightID)
}

// distributeAttributes moves every attribute of table from parent's
// attribute list down onto child, each keeping its hidden flag. Moved
// attributes are removed from parent. Join keys the client did not ask for
// are added separately, by ensureJoinKeyHidden.
func distributeAttributes(parent, child *Node, table string) {
	kept := attribute.NewList()
	for _, a := range parent.Attributes.Items() {
		if a.Field.Table != table {
			kept.Append(a.Field, a.Hidden)
			continue
		}
		hidden := a.Hidden
		if !hidden {
			// Still needed below for the join even though it's visible above.
			child.Attributes.Append(a.Field, false)
		} else {
			child.Attributes.Append(a.Field, true)
		}
	}
	parent.Attributes = kept
}

// attachBySide attaches child under parent on whichever side parent's
// Relations list says table belongs to, defaulting to whichever side is
// still open.
func attachBySide(t *Tree, parent, child *Node, table string) {
	side := relationSide(parent, table)
	switch side {
	case LeftSide:
		t.SetLeft(parent, child)
	case RightSide:
		t.SetRight(parent, child)
	default:
		if parent.LeftID == uuid.Nil {
			t.SetLeft(parent, child)
		} else {
			t.SetRight(parent, child)
		}
	}
}

func relationSide(n *Node, table string) Side {
	for i, r := range n.Relations {
		if r == table {
			if i == 0 {
				return LeftSide
			}
			return RightSide
		}
	}
	return NoSide
}

func findTableInExpr(e *expr.Expression, candidates []string) string {
	for _, c := range candidates {
		if expr.HasTable(e, c) {
			return c
		}
	}
	return ""
}

// splitProjectWithJoin implements spec.md §4.5 step 2: every Join whose
// side is still empty gets a Project leaf for that relation, carrying the
// hidden+visible split of whatever attributes of that relation remain on
// the join node.
func splitProjectWithJoin(t *Tree, id uuid.UUID) {
	n := t.Get(id)
	if n == nil {
		return
	}
	if n.Kind == Join {
		for i, table := range n.Relations {
			side := LeftSide
			if i > 0 {
				side = RightSide
			}
			if (side == LeftSide && n.LeftID != uuid.Nil) || (side == RightSide && n.RightID != uuid.Nil) {
				continue
			}
			leaf := t.New(Project)
			leaf.Relations = []string{table}
			distributeAttributes(n, leaf, table)
			ensureJoinKeyHidden(n, leaf, table)
			if side == LeftSide {
				t.SetLeft(n, leaf)
			} else {
				t.SetRight(n, leaf)
			}
		}
	}
	splitProjectWithJoin(t, n.LeftID)
	splitProjectWithJoin(t, n.RightID)
}

// ensureJoinKeyHidden guarantees the field a join predicate needs from
// table is present (as a hidden attribute) on leaf even if the client's
// projection never mentioned it, so the join has something to compare.
func ensureJoinKeyHidden(join, leaf *Node, table string) {
	for _, term := range join.JoinExpr.Terms() {
		for _, op := range []expr.Operand{term.Left, term.Right} {
			f, ok := op.(expr.FieldOperand)
			if !ok || f.Table != table {
				continue
			}
			field := attribute.Field{Table: f.Table, Name: f.Name}
			if leaf.Attributes.IndexOf(field) == -1 {
				leaf.Attributes.Append(field, true)
			}
		}
	}
}

// splitRestrictWithProject implements spec.md §4.5 step 3: a node that is
// simultaneously a Project (has attributes) and a Restrict (has
// where-terms) becomes pure Project over a new Restrict left child.
func splitRestrictWithProject(t *Tree, id uuid.UUID) {
	n := t.Get(id)
	if n == nil {
		return
	}
	if n.Kind == Project && n.Attributes.Len() > 0 && !n.Where.Empty() {
		restrict := t.New(Restrict)
		restrict.Where = n.Where
		restrict.Relations = append([]string(nil), n.Relations...)
		n.Where = expr.NewExpression()
		if n.LeftID != uuid.Nil {
			existingLeft := t.Get(n.LeftID)
			t.SetLeft(restrict, existingLeft)
		}
		t.SetLeft(n, restrict)
	}
	splitRestrictWithProject(t, n.LeftID)
	splitRestrictWithProject(t, n.RightID)
}

// pushRestrictions implements spec.md §4.5 step 4: a Restrict whose
// relation also appears further down the tree (through a Join) is spliced
// in as that side's child instead of staying where it is. Returns true if
// it changed anything, so the caller can loop to a fixpoint.
func pushRestrictions(t *Tree, id uuid.UUID) bool {
	n := t.Get(id)
	if n == nil || n.IsLeaf() {
		return false
	}
	changed := false
	if n.Kind == Restrict && len(n.Relations) == 1 {
		table := n.Relations[0]
		if child := t.Get(n.LeftID); child != nil && child.Kind == Join {
			if side := relationSide(child, table); side != NoSide {
				existing := t.Get(sideID(child, side))
				if existing != nil && existing.Kind != Restrict {
					newRestrict := t.New(Restrict)
					newRestrict.Where = n.Where.Clone()
					newRestrict.Relations = []string{table}
					setSide(t, child, side, newRestrict)
					t.SetLeft(newRestrict, existing)
					n.Where = expr.NewExpression()
					changed = true
				}
			}
		}
	}
	if pushRestrictions(t, n.LeftID) {
		changed = true
	}
	if pushRestrictions(t, n.RightID) {
		changed = true
	}
	return changed
}

func sideID(n *Node, side Side) uuid.UUID {
	if side == LeftSide {
		return n.LeftID
	}
	return n.RightID
}

func setSide(t *Tree, n *Node, side Side, child *Node) {
	if side == LeftSide {
		t.SetLeft(n, child)
	} else {
		t.SetRight(n, child)
	}
}

// pushProjections implements spec.md §4.5 step 5: attributes a parent
// projection needs from a relation it doesn't yet carry are copied down
// to the descendant leaf for that relation.
func pushProjections(t *Tree, id uuid.UUID) bool {
	n := t.Get(id)
	if n == nil {
		return false
	}
	changed := false
	if n.Kind == Project {
		for _, a := range n.Attributes.Items() {
			if leaf := findLeafForTable(t, n, a.Field.Table); leaf != nil && leaf.ID != n.ID {
				if leaf.Attributes.IndexOf(a.Field) == -1 {
					leaf.Attributes.Append(a.Field, a.Hidden)
					changed = true
				}
			}
		}
	}
	if pushProjections(t, n.LeftID) {
		changed = true
	}
	if pushProjections(t, n.RightID) {
		changed = true
	}
	return changed
}

func findLeafForTable(t *Tree, from *Node, table string) *Node {
	var found *Node
	var walk func(id uuid.UUID)
	walk = func(id uuid.UUID) {
		n := t.Get(id)
		if n == nil || found != nil {
			return
		}
		if n.IsLeaf() {
			for _, r := range n.Relations {
				if r == table {
					found = n
					return
				}
			}
			return
		}
		walk(n.LeftID)
		walk(n.RightID)
	}
	walk(from.ID)
	return found
}

// pushJoins handles spec.md §4.5 step 6 in reduced form: a Join with no
// join_expr that names two or more relations is marked an Inner/On join.
// It does not search the tree for an outstanding join term and attaches
// none. Returns true only when it changed a node.
func pushJoins(t *Tree, id uuid.UUID) bool {
	n := t.Get(id)
	if n == nil {
		return false
	}
	changed := false
	if n.Kind == Join && n.JoinExpr.Empty() && len(n.Relations) >= 2 &&
		(n.JoinType != JoinInner || n.JoinCond != CondOn) {
		n.JoinType = JoinInner
		n.JoinCond = CondOn
		changed = true
	}
	if pushJoins(t, n.LeftID) {
		changed = true
	}
	if pushJoins(t, n.RightID) {
		changed = true
	}
	return changed
}

// pruneTree implements spec.md §4.5 step 7: a Project with zero
// attributes or a Restrict with zero terms, having at most one child, is
// spliced out of the tree.
func pruneTree(t *Tree, id uuid.UUID) {
	n := t.Get(id)
	if n == nil {
		return
	}
	pruneTree(t, n.LeftID)
	pruneTree(t, n.RightID)

	blank := (n.Kind == Project && n.Attributes.Len() == 0) || (n.Kind == Restrict && n.Where.Empty())
	if blank && n.RightID == uuid.Nil {
		if n.LeftID != uuid.Nil {
			child := t.Get(n.LeftID)
			t.Replace(n, child)
			t.Remove(n.ID)
		}
		// A blank leaf (no child to promote) is left in place: it still
		// carries the Relations a scan needs.
	}
}

// wrapDistinct wraps the current root in a Distinct node, unless it
// already is one.
func wrapDistinct(t *Tree) {
	root := t.Get(t.Root)
	if root == nil || root.Kind == Distinct {
		return
	}
	d := t.New(Distinct)
	t.SetLeft(d, root)
	t.Root = d.ID
}
