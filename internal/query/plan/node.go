// Package plan implements the query tree: the binary tree of relational
// operators built by internal/query/build, rewritten by the heuristic
// optimizer in rewrite.go, and driven by the pull-based executor in
// exec.go. Grounded on _examples/original_source's Ch14/query_tree.{h,cc}
// and Ch12/query_tree.{h,cc}, with node ownership reworked into an arena
// keyed by uuid.UUID per spec.md §9 ("cycles in the tree").
package plan

import (
	"github.com/google/uuid"

	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/expr"
)

// Kind is the closed set of relational operator kinds a node can carry.
type Kind int

const (
	Undefined Kind = iota
	Restrict
	Project
	Join
	Sort
	Distinct
)

func (k Kind) String() string {
	switch k {
	case Restrict:
		return "RESTRICT"
	case Project:
		return "PROJECT"
	case Join:
		return "JOIN"
	case Sort:
		return "SORT"
	case Distinct:
		return "DISTINCT"
	default:
		return "UNDEFINED"
	}
}

// JoinType is the kind of join a Join node performs. CrossProduct, Union
// and Intersect are reserved operator kinds per spec.md §4.6 and are not
// evaluated by the executor in this module.
type JoinType int

const (
	JoinUnknown JoinType = iota
	JoinInner
	JoinLeftOuter
	JoinRightOuter
	JoinFullOuter
	JoinCrossProduct
	JoinUnion
	JoinIntersect
)

// JoinCond records how a Join's predicate was established.
type JoinCond int

const (
	CondUn JoinCond = iota // unresolved / none yet
	CondNa                 // not applicable (e.g. cross product)
	CondOn                 // ON clause / explicit equi-join term
	CondUs                 // USING clause
)

// Side identifies which child slot a node occupies under its parent.
type Side int

const (
	NoSide Side = iota
	LeftSide
	RightSide
)

// Node is one operator in the query tree. Child and parent links are
// uuid.UUID keys into the owning Tree's arena rather than raw pointers, so
// the tree can be freely rewritten without the source's dangling-pointer
// destructor bug (spec.md §9 item 4).
type Node struct {
	ID   uuid.UUID
	Kind Kind

	Attributes *attribute.List
	Where      *expr.Expression

	JoinExpr *expr.Expression
	JoinType JoinType
	JoinCond JoinCond

	// Relations lists up to four base-table names this node (if a leaf)
	// scans directly, or (for a not-yet-split Join work-node produced by
	// the builder) the relations it still needs to distribute to children.
	Relations []string

	LeftID, RightID uuid.UUID
	ParentID        uuid.UUID
	Side            Side

	// Executor state, populated by Prepare and consulted by GetNext.
	exec *execState
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.LeftID == uuid.Nil && n.RightID == uuid.Nil
}

// Tree owns every Node reachable from Root in an arena keyed by uuid.UUID.
type Tree struct {
	nodes map[uuid.UUID]*Node
	Root  uuid.UUID
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	return &Tree{nodes: make(map[uuid.UUID]*Node)}
}

// New allocates a node of the given kind, registers it in the arena, and
// returns it. The caller is responsible for wiring it into the tree via
// SetLeft/SetRight or by setting Root.
func (t *Tree) New(kind Kind) *Node {
	n := &Node{
		ID:         uuid.New(),
		Kind:       kind,
		Attributes: attribute.NewList(),
		Where:      expr.NewExpression(),
		JoinExpr:   expr.NewExpression(),
	}
	t.nodes[n.ID] = n
	return n
}

// Get resolves a node by id, or nil if id is uuid.Nil or unknown.
func (t *Tree) Get(id uuid.UUID) *Node {
	if id == uuid.Nil {
		return nil
	}
	return t.nodes[id]
}

// SetLeft attaches child as parent's left child, setting parent/side
// pointers both ways.
func (t *Tree) SetLeft(parent, child *Node) {
	parent.LeftID = child.ID
	child.ParentID = parent.ID
	child.Side = LeftSide
}

// SetRight attaches child as parent's right child.
func (t *Tree) SetRight(parent, child *Node) {
	parent.RightID = child.ID
	child.ParentID = parent.ID
	child.Side = RightSide
}

// Left returns parent's left child, or nil.
func (t *Tree) Left(parent *Node) *Node { return t.Get(parent.LeftID) }

// Right returns parent's right child, or nil.
func (t *Tree) Right(parent *Node) *Node { return t.Get(parent.RightID) }

// Parent returns n's parent, or nil if n is the root.
func (t *Tree) Parent(n *Node) *Node { return t.Get(n.ParentID) }

// Remove detaches id from the arena. It does not rewire surviving
// children; callers (prune_tree) must do that first.
func (t *Tree) Remove(id uuid.UUID) {
	delete(t.nodes, id)
}

// Replace rewires n's parent to point at replacement instead of n, used by
// prune_tree to splice out a blank Project/Restrict.
func (t *Tree) Replace(n, replacement *Node) {
	parent := t.Parent(n)
	if parent == nil {
		t.Root = replacement.ID
		replacement.ParentID = uuid.Nil
		replacement.Side = NoSide
		return
	}
	replacement.ParentID = parent.ID
	replacement.Side = n.Side
	switch n.Side {
	case LeftSide:
		parent.LeftID = replacement.ID
	case RightSide:
		parent.RightID = replacement.ID
	}
}

// Leaves returns every node reachable from root with no children.
func (t *Tree) Leaves() []*Node {
	var out []*Node
	var walk func(id uuid.UUID)
	walk = func(id uuid.UUID) {
		n := t.Get(id)
		if n == nil {
			return
		}
		if n.IsLeaf() {
			out = append(out, n)
			return
		}
		walk(n.LeftID)
		walk(n.RightID)
	}
	walk(t.Root)
	return out
}

// VisibleRoot returns the node carrying the client-facing projection: the
// root itself, or its left child if the root is a Distinct wrapping a
// Project, per the rewrite invariant that the root is always one of those
// two shapes (spec.md §3).
func (t *Tree) VisibleRoot() *Node {
	n := t.Get(t.Root)
	if n != nil && n.Kind == Distinct {
		return t.Left(n)
	}
	return n
}

// WalkPostOrder visits every node reachable from root, children before
// parent, invoking fn on each.
func (t *Tree) WalkPostOrder(fn func(*Node)) {
	var walk func(id uuid.UUID)
	walk = func(id uuid.UUID) {
		n := t.Get(id)
		if n == nil {
			return
		}
		walk(n.LeftID)
		walk(n.RightID)
		fn(n)
	}
	walk(t.Root)
}
