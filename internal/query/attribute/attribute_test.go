package attribute

import (
	"testing"

	"github.com/dbxp/spartan/internal/catalog"
)

func TestNewListAllVisible(t *testing.T) {
	l := NewList(Field{Table: "orders", Name: "id"}, Field{Table: "orders", Name: "status"})
	if l.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", l.Len())
	}
	if len(l.Visible()) != 2 {
		t.Errorf("Visible: got %d, want 2", len(l.Visible()))
	}
}

func TestAppendPrependOrder(t *testing.T) {
	l := NewList(Field{Table: "orders", Name: "id"})
	l.Append(Field{Table: "orders", Name: "status"}, false)
	l.Prepend(Field{Table: "orders", Name: "created_at"}, true)

	items := l.Items()
	want := []string{"created_at", "id", "status"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, name := range want {
		if items[i].Field.Name != name {
			t.Errorf("position %d: got %q, want %q", i, items[i].Field.Name, name)
		}
	}
	if !items[0].Hidden {
		t.Error("expected prepended field to keep its hidden flag")
	}
}

func TestRemoveAtOutOfRangeIsNoop(t *testing.T) {
	l := NewList(Field{Table: "t", Name: "a"})
	l.RemoveAt(5)
	l.RemoveAt(-1)
	if l.Len() != 1 {
		t.Errorf("expected out-of-range RemoveAt to be a no-op, got Len=%d", l.Len())
	}
}

func TestIndexOfAndSetHidden(t *testing.T) {
	f := Field{Table: "orders", Name: "status"}
	l := NewList(Field{Table: "orders", Name: "id"}, f)

	if idx := l.IndexOf(f); idx != 1 {
		t.Fatalf("IndexOf: got %d, want 1", idx)
	}
	l.SetHidden(f, true)
	if len(l.Visible()) != 1 {
		t.Errorf("expected one visible attribute after SetHidden, got %d", len(l.Visible()))
	}

	missing := Field{Table: "orders", Name: "nope"}
	if idx := l.IndexOf(missing); idx != -1 {
		t.Errorf("IndexOf for missing field: got %d, want -1", idx)
	}
	l.SetHidden(missing, true) // must not panic
}

func TestHasTable(t *testing.T) {
	l := NewList(Field{Table: "orders", Name: "id"})
	if !l.HasTable("orders") {
		t.Error("expected HasTable(orders) to be true")
	}
	if l.HasTable("items") {
		t.Error("expected HasTable(items) to be false")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := NewList(Field{Table: "orders", Name: "id"})
	clone := l.Clone()
	clone.Append(Field{Table: "orders", Name: "status"}, false)

	if l.Len() != 1 {
		t.Errorf("original list mutated by clone append: Len=%d", l.Len())
	}
	if clone.Len() != 2 {
		t.Errorf("clone Len: got %d, want 2", clone.Len())
	}
}

func TestString(t *testing.T) {
	l := NewList(Field{Table: "orders", Name: "id"})
	l.Append(Field{Table: "orders", Name: "status"}, true) // hidden, excluded from String
	l.Append(Field{Table: "items", Name: "qty"}, false)

	got := l.String()
	want := "orders.id, items.qty"
	if got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestResolveAll(t *testing.T) {
	cat := catalog.NewStatic()
	cat.Define("orders", []catalog.Field{
		{Name: "id", Type: catalog.TypeInt64, Length: 8},
	})
	l := NewList(Field{Table: "orders", Name: "id"})

	fields, err := l.ResolveAll(cat)
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "id" {
		t.Errorf("unexpected resolved fields: %+v", fields)
	}

	l.Append(Field{Table: "orders", Name: "missing"}, false)
	if _, err := l.ResolveAll(cat); err == nil {
		t.Error("expected error resolving an unknown field")
	}
}
