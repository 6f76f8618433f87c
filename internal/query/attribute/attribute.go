// Package attribute implements the ordered projection-attribute list from
// spec.md §4.4: a sequence of table.name field references, each with a
// hidden flag used to carry join keys through a Project that the client
// never asked to see.
package attribute

import (
	"strings"

	"github.com/dbxp/spartan/internal/catalog"
)

// Field identifies a column by its owning table and column name.
type Field struct {
	Table string
	Name  string
}

// Attr is one entry in an attribute list.
type Attr struct {
	Field  Field
	Hidden bool
}

// List is the ordered, mutable attribute list attached to a Project or
// Join query-tree node.
type List struct {
	items []Attr
}

// NewList builds an attribute list from the given fields, all visible.
func NewList(fields ...Field) *List {
	l := &List{}
	for _, f := range fields {
		l.items = append(l.items, Attr{Field: f})
	}
	return l
}

// Append adds f to the end of the list.
func (l *List) Append(f Field, hidden bool) {
	l.items = append(l.items, Attr{Field: f, Hidden: hidden})
}

// Prepend adds f to the front of the list.
func (l *List) Prepend(f Field, hidden bool) {
	l.items = append([]Attr{{Field: f, Hidden: hidden}}, l.items...)
}

// RemoveAt removes the attribute at position i.
func (l *List) RemoveAt(i int) {
	if i < 0 || i >= len(l.items) {
		return
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
}

// IndexOf returns the position of f in the list, or -1.
func (l *List) IndexOf(f Field) int {
	for i, a := range l.items {
		if a.Field == f {
			return i
		}
	}
	return -1
}

// SetHidden marks f hidden or visible; no-op if f is absent.
func (l *List) SetHidden(f Field, hidden bool) {
	if i := l.IndexOf(f); i >= 0 {
		l.items[i].Hidden = hidden
	}
}

// Items returns the full backing slice; callers must not mutate it other
// than through the List's own methods.
func (l *List) Items() []Attr { return l.items }

// Visible returns only the non-hidden attributes, in order.
func (l *List) Visible() []Attr {
	var out []Attr
	for _, a := range l.items {
		if !a.Hidden {
			out = append(out, a)
		}
	}
	return out
}

// Len reports the number of attributes, visible and hidden.
func (l *List) Len() int { return len(l.items) }

// HasTable reports whether any attribute references table t.
func (l *List) HasTable(t string) bool {
	for _, a := range l.items {
		if a.Field.Table == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate independently.
func (l *List) Clone() *List {
	out := &List{items: make([]Attr, len(l.items))}
	copy(out.items, l.items)
	return out
}

// String renders the visible attributes as "table.name, table.name, ...",
// matching the source's to_string rendering.
func (l *List) String() string {
	var sb strings.Builder
	for i, a := range l.Visible() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.Field.Table)
		sb.WriteByte('.')
		sb.WriteString(a.Field.Name)
	}
	return sb.String()
}

// ResolveAll looks up the catalog.Field for every attribute in the list,
// failing on the first unknown column.
func (l *List) ResolveAll(cat catalog.Catalog) ([]catalog.Field, error) {
	out := make([]catalog.Field, 0, len(l.items))
	for _, a := range l.items {
		f, err := cat.Field(a.Field.Table, a.Field.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
