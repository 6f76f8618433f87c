package build

import (
	"context"
	"testing"
	"time"

	"github.com/dbxp/spartan/internal/catalog"
	"github.com/dbxp/spartan/internal/query/attribute"
	"github.com/dbxp/spartan/internal/query/expr"
	"github.com/dbxp/spartan/internal/query/plan"
	"github.com/dbxp/spartan/internal/storage/table"
)

// fixtureRegistry opens real on-disk shares under a temp dir the first
// time each table is requested, the way cmd/dbxp's registry does.
type fixtureRegistry struct {
	dir    string
	shares map[string]*table.Share
}

func newFixtureRegistry(dir string) *fixtureRegistry {
	return &fixtureRegistry{dir: dir, shares: make(map[string]*table.Share)}
}

func (r *fixtureRegistry) Share(name string) (*table.Share, error) {
	if s, ok := r.shares[name]; ok {
		return s, nil
	}
	s, err := table.OpenShare(r.dir, name, nil, 0, time.Second)
	if err != nil {
		return nil, err
	}
	r.shares[name] = s
	return s, nil
}

func (r *fixtureRegistry) Close() {
	for _, s := range r.shares {
		_ = s.Release()
	}
}

func intField(v int64, width int) []byte {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

func strField(s string, width int) []byte {
	buf := make([]byte, width)
	copy(buf, s)
	return buf
}

func seedOrders(t *testing.T, dir string, cat *catalog.Static) {
	t.Helper()
	tbl, err := cat.Table("orders")
	if err != nil {
		t.Fatalf("catalog lookup failed: %v", err)
	}
	if err := table.Create(dir, "orders", nil, 0); err != nil {
		t.Fatalf("table.Create failed: %v", err)
	}
	share, err := table.OpenShare(dir, "orders", nil, 0, time.Second)
	if err != nil {
		t.Fatalf("OpenShare failed: %v", err)
	}
	defer share.Release()
	h := table.Open(share, tbl)
	defer h.Close()

	rows := []struct {
		id     int64
		status string
	}{
		{1, "open"},
		{2, "closed"},
		{3, "open"},
	}
	for _, r := range rows {
		buf := append(intField(r.id, 8), strField(r.status, 8)...)
		if err := h.WriteRow(context.Background(), buf); err != nil {
			t.Fatalf("WriteRow failed: %v", err)
		}
	}
}

func buildCatalog() *catalog.Static {
	cat := catalog.NewStatic()
	cat.Define("orders", []catalog.Field{
		{Name: "id", Type: catalog.TypeInt64, Length: 8},
		{Name: "status", Type: catalog.TypeString, Length: 8},
	})
	return cat
}

func TestBuildSingleRelationIsProjectLeaf(t *testing.T) {
	cat := buildCatalog()
	tr, err := Build(cat, Query{Relations: []string{"orders"}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	root := tr.Get(tr.Root)
	if root.Kind != plan.Project {
		t.Fatalf("expected a single-relation query to build a Project root, got %v", root.Kind)
	}
	if len(root.Attributes.Items()) != 2 {
		t.Errorf("expected SELECT * to expand to 2 attributes, got %d", len(root.Attributes.Items()))
	}
}

func TestBuildExplicitAttributes(t *testing.T) {
	cat := buildCatalog()
	tr, err := Build(cat, Query{
		Relations:  []string{"orders"},
		Attributes: []attribute.Field{{Table: "orders", Name: "id"}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	root := tr.Get(tr.Root)
	if len(root.Attributes.Items()) != 1 {
		t.Fatalf("expected exactly the requested attribute, got %d", len(root.Attributes.Items()))
	}
}

func TestBuildUnknownRelationErrors(t *testing.T) {
	cat := buildCatalog()
	if _, err := Build(cat, Query{Relations: []string{"missing"}}); err == nil {
		t.Error("expected Build to fail on an unknown relation in a SELECT * expansion")
	}
}

func TestBuildNoRelationsErrors(t *testing.T) {
	cat := buildCatalog()
	if _, err := Build(cat, Query{}); err == nil {
		t.Error("expected Build to reject a query with no relations")
	}
}

func TestPrepareAndDrainEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cat := buildCatalog()
	seedOrders(t, dir, cat)

	tr, err := Build(cat, Query{
		Relations: []string{"orders"},
		Where: &expr.Compare{
			Left:  expr.FieldOperand{Table: "orders", Name: "status"},
			Op:    expr.OpEq,
			Right: expr.StringOperand{Value: "open"},
		},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	reg := newFixtureRegistry(dir)
	defer reg.Close()

	ex, handlers, err := Prepare(context.Background(), reg, cat, tr)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	var rows []plan.Row
	var gotAttrs []attribute.Field
	err = Drain(context.Background(), ex, handlers, func(r plan.Row, attrs []attribute.Field) error {
		rows = append(rows, r)
		gotAttrs = attrs
		return nil
	})
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 open orders, got %d", len(rows))
	}
	if len(gotAttrs) != 2 {
		t.Fatalf("expected the sink to see both projected attributes, got %d", len(gotAttrs))
	}
}

func TestDrainPropagatesSinkError(t *testing.T) {
	dir := t.TempDir()
	cat := buildCatalog()
	seedOrders(t, dir, cat)

	tr, err := Build(cat, Query{Relations: []string{"orders"}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	reg := newFixtureRegistry(dir)
	defer reg.Close()

	ex, handlers, err := Prepare(context.Background(), reg, cat, tr)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	sinkErr := context.Canceled
	err = Drain(context.Background(), ex, handlers, func(r plan.Row, attrs []attribute.Field) error {
		return sinkErr
	})
	if err != sinkErr {
		t.Errorf("expected Drain to propagate the sink error, got %v", err)
	}
}
