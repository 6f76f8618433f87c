package plan

import (
	"testing"

	"github.com/google/uuid"

	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/expr"
)

func TestTreeNewAndGet(t *testing.T) {
	tr := NewTree()
	n := tr.New(Restrict)
	if n.ID == uuid.Nil {
		t.Fatal("expected a non-nil node id")
	}
	if got := tr.Get(n.ID); got != n {
		t.Errorf("Get returned a different node")
	}
	if got := tr.Get(uuid.Nil); got != nil {
		t.Errorf("Get(uuid.Nil) should return nil, got %v", got)
	}
}

func TestSetLeftSetRightWiresParentAndSide(t *testing.T) {
	tr := NewTree()
	parent := tr.New(Project)
	left := tr.New(Restrict)
	right := tr.New(Restrict)
	tr.SetLeft(parent, left)
	tr.SetRight(parent, right)

	if tr.Left(parent) != left || tr.Right(parent) != right {
		t.Fatal("Left/Right did not return the wired children")
	}
	if left.Side != LeftSide || right.Side != RightSide {
		t.Errorf("got left.Side=%v right.Side=%v", left.Side, right.Side)
	}
	if tr.Parent(left) != parent || tr.Parent(right) != parent {
		t.Error("Parent did not round-trip to parent")
	}
}

func TestIsLeaf(t *testing.T) {
	tr := NewTree()
	leaf := tr.New(Project)
	if !leaf.IsLeaf() {
		t.Error("expected a freshly allocated node to be a leaf")
	}
	parent := tr.New(Project)
	tr.SetLeft(parent, leaf)
	if parent.IsLeaf() {
		t.Error("expected a node with a child to not be a leaf")
	}
}

func TestWalkPostOrderVisitsChildrenFirst(t *testing.T) {
	tr := NewTree()
	root := tr.New(Project)
	left := tr.New(Restrict)
	right := tr.New(Restrict)
	tr.SetLeft(root, left)
	tr.SetRight(root, right)
	tr.Root = root.ID

	var order []uuid.UUID
	tr.WalkPostOrder(func(n *Node) { order = append(order, n.ID) })

	if len(order) != 3 || order[2] != root.ID {
		t.Fatalf("expected root last in post-order, got %v", order)
	}
}

func TestPruneTreeSplicesOutBlankRestrict(t *testing.T) {
	tr := NewTree()
	leaf := tr.New(Project)
	leaf.Relations = []string{"orders"}
	blank := tr.New(Restrict) // no where terms: prunable
	tr.SetLeft(blank, leaf)
	tr.Root = blank.ID

	pruneTree(tr, tr.Root)

	if tr.Root != leaf.ID {
		t.Fatalf("expected blank restrict spliced out, root is still %v", tr.Get(tr.Root).Kind)
	}
	if tr.Get(blank.ID) != nil {
		t.Error("expected the blank restrict to be removed from the arena")
	}
}

func TestPruneTreeKeepsBlankLeaf(t *testing.T) {
	tr := NewTree()
	blank := tr.New(Restrict)
	blank.Relations = []string{"orders"}
	tr.Root = blank.ID

	pruneTree(tr, tr.Root)

	if tr.Get(tr.Root) == nil {
		t.Fatal("a blank leaf with no child should be left in place, not removed")
	}
}

func TestWrapDistinctAddsRootOnce(t *testing.T) {
	tr := NewTree()
	leaf := tr.New(Project)
	tr.Root = leaf.ID

	wrapDistinct(tr)
	if tr.Get(tr.Root).Kind != Distinct {
		t.Fatalf("expected Distinct root, got %v", tr.Get(tr.Root).Kind)
	}
	firstRoot := tr.Root

	wrapDistinct(tr)
	if tr.Root != firstRoot {
		t.Error("expected wrapDistinct to be a no-op on an already-Distinct root")
	}
}

// buildJoinWorkNode mimics what internal/query/build hands the rewriter
// before any pass has run: a single Join work-node naming both relations,
// with the equi-join term and a residual single-table restriction still
// attached and no children split out yet.
func buildJoinWorkNode(tr *Tree) *Node {
	join := tr.New(Join)
	join.Relations = []string{"orders", "items"}
	join.JoinExpr.Append(&expr.Term{
		Left:  expr.FieldOperand{Table: "orders", Name: "id"},
		Op:    expr.OpEq,
		Right: expr.FieldOperand{Table: "items", Name: "order_id"},
	})
	join.Where.Append(&expr.Term{
		Left:  expr.FieldOperand{Table: "orders", Name: "status"},
		Op:    expr.OpEq,
		Right: expr.StringOperand{Value: "open"},
	})
	join.Attributes.Append(attribute.Field{Table: "orders", Name: "status"}, false)
	join.Attributes.Append(attribute.Field{Table: "items", Name: "qty"}, false)
	tr.Root = join.ID
	return join
}

func TestRewriteSplitsJoinWorkNode(t *testing.T) {
	tr := NewTree()
	buildJoinWorkNode(tr)

	Rewrite(tr, false)

	root := tr.Get(tr.Root)
	if root.Kind != Join {
		t.Fatalf("expected root to remain a Join, got %v", root.Kind)
	}
	if root.JoinExpr.Empty() {
		t.Error("expected the join predicate to survive rewriting")
	}

	left := tr.Get(root.LeftID)
	right := tr.Get(root.RightID)
	if left == nil || right == nil {
		t.Fatal("expected both join sides to be populated")
	}

	// The residual where-clause on "orders" should have been split into a
	// Restrict feeding the orders side.
	if left.Kind != Restrict {
		t.Fatalf("expected a Restrict spliced onto the orders side, got %v", left.Kind)
	}
	if left.Where.Empty() {
		t.Error("expected the split-off Restrict to carry the residual where term")
	}

	// The items side has no residual restriction, so it should remain a
	// bare Project leaf over the items relation.
	if right.Kind != Project {
		t.Fatalf("expected a Project leaf on the items side, got %v", right.Kind)
	}
	if !right.Attributes.HasTable("items") {
		t.Error("expected the items leaf to carry items' attributes")
	}
}

func TestRewriteWithDistinctWrapsRoot(t *testing.T) {
	tr := NewTree()
	buildJoinWorkNode(tr)

	Rewrite(tr, true)

	if tr.Get(tr.Root).Kind != Distinct {
		t.Fatalf("expected Distinct wrapper when distinct=true, got %v", tr.Get(tr.Root).Kind)
	}
}
