package catalog

import "testing"

func TestDefineComputesOffsets(t *testing.T) {
	cat := NewStatic()
	tbl := cat.Define("orders", []Field{
		{Name: "id", Type: TypeInt64, Length: 8},
		{Name: "status", Type: TypeString, Length: 16},
	})
	if tbl.RowLength != 24 {
		t.Fatalf("RowLength: got %d, want 24", tbl.RowLength)
	}
	if tbl.Fields[0].Offset != 0 || tbl.Fields[1].Offset != 8 {
		t.Errorf("unexpected offsets: %+v", tbl.Fields)
	}
	if tbl.Fields[0].Table != "orders" {
		t.Errorf("expected Define to stamp the table name onto each field, got %q", tbl.Fields[0].Table)
	}
}

func TestTableUnknown(t *testing.T) {
	cat := NewStatic()
	if _, err := cat.Table("missing"); err == nil {
		t.Error("expected an error for an unregistered table")
	} else if _, ok := err.(ErrUnknownTable); !ok {
		t.Errorf("expected ErrUnknownTable, got %T", err)
	}
}

func TestFieldResolvesByTableAndName(t *testing.T) {
	cat := NewStatic()
	cat.Define("orders", []Field{{Name: "id", Type: TypeInt64, Length: 8}})

	f, err := cat.Field("orders", "id")
	if err != nil {
		t.Fatalf("Field failed: %v", err)
	}
	if f.Type != TypeInt64 || f.Length != 8 {
		t.Errorf("unexpected field: %+v", f)
	}
}

func TestFieldUnknownTableAndColumn(t *testing.T) {
	cat := NewStatic()
	cat.Define("orders", []Field{{Name: "id", Type: TypeInt64, Length: 8}})

	if _, err := cat.Field("missing", "id"); err == nil {
		t.Error("expected an error for an unregistered table")
	}
	if _, err := cat.Field("orders", "ghost"); err == nil {
		t.Error("expected an error for an unregistered field")
	} else if _, ok := err.(ErrUnknownField); !ok {
		t.Errorf("expected ErrUnknownField, got %T", err)
	}
}

func TestFieldTypeString(t *testing.T) {
	cases := map[FieldType]string{
		TypeInt64:       "int64",
		TypeDecimal:     "decimal",
		TypeString:      "string",
		FieldType(99):   "unknown",
	}
	for in, want := range cases {
		if got := in.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", in, got, want)
		}
	}
}
