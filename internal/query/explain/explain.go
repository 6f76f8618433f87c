// Package explain renders a query tree as the nested ASCII box diagram
// spec.md §4.7 describes, grounded on original_source's
// Ch14/query_tree.cc explain() method: each node prints as a box naming
// its operator and relations, with its children's boxes drawn below and
// connected by indentation, and the box width fitted to the longest
// label at each level so sibling boxes do not overlap.
package explain

import (
	"strings"

	"github.com/dbxp/spartan/internal/query/plan"
)

const indentWidth = 3

// Render returns the tree's ASCII-box explain diagram, root at the top.
func Render(t *plan.Tree) string {
	var sb strings.Builder
	renderNode(&sb, t, t.Get(t.Root), 0)
	return sb.String()
}

func renderNode(sb *strings.Builder, t *plan.Tree, n *plan.Node, depth int) {
	if n == nil {
		return
	}
	box := boxLines([]string{nodeLabel(n), "Access Method: iterator"})
	indent := strings.Repeat(" ", depth*indentWidth)
	for _, line := range box {
		sb.WriteString(indent)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	renderNode(sb, t, t.Left(n), depth+1)
	renderNode(sb, t, t.Right(n), depth+1)
	if depth == 0 {
		sb.WriteString("Result Set: ")
		sb.WriteString(t.VisibleRoot().Attributes.String())
		sb.WriteByte('\n')
	}
}

// boxLines draws a box sized to fit the longest content line exactly,
// matching the source's width-by-label-length fitting so that deeper,
// longer operator names (e.g. "JOIN orders.customer_id=customers.id")
// never overrun a box drawn for a shorter sibling at the same depth.
func boxLines(contents []string) []string {
	width := 0
	for _, c := range contents {
		if len(c) > width {
			width = len(c)
		}
	}
	top := "+" + strings.Repeat("-", width+2) + "+"
	out := make([]string, 0, len(contents)+2)
	out = append(out, top)
	for _, c := range contents {
		out = append(out, "| "+c+strings.Repeat(" ", width-len(c))+" |")
	}
	out = append(out, top)
	return out
}

func nodeLabel(n *plan.Node) string {
	switch n.Kind {
	case plan.Restrict:
		return "RESTRICT " + strings.Join(n.Relations, ",") + " " + whereSummary(n)
	case plan.Project:
		return "PROJECT " + strings.Join(n.Relations, ",") + " " + n.Attributes.String()
	case plan.Join:
		return "JOIN " + joinSummary(n)
	case plan.Distinct:
		return "DISTINCT"
	case plan.Sort:
		return "SORT"
	default:
		return n.Kind.String()
	}
}

func whereSummary(n *plan.Node) string {
	if n.Where.Empty() {
		return ""
	}
	var parts []string
	for _, term := range n.Where.Terms() {
		parts = append(parts, term.Left.String()+" "+term.Op.String()+" "+term.Right.String())
	}
	return strings.Join(parts, " AND ")
}

func joinSummary(n *plan.Node) string {
	if n.JoinExpr.Empty() {
		return strings.Join(n.Relations, ",") + " (no predicate)"
	}
	var parts []string
	for _, term := range n.JoinExpr.Terms() {
		parts = append(parts, term.Left.String()+"="+term.Right.String())
	}
	return strings.Join(parts, " AND ")
}
