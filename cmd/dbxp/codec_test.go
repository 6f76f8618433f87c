package main

import (
	"testing"

	"github.com/dbxp/spartan/internal/catalog"
)

func codecTestTable() catalog.Table {
	cat := catalog.NewStatic()
	return cat.Define("orders", []catalog.Field{
		{Name: "id", Type: catalog.TypeInt64, Length: 8},
		{Name: "status", Type: catalog.TypeString, Length: 8},
	})
}

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	tbl := codecTestTable()
	buf, err := encodeRow(tbl, []string{"42", "open"})
	if err != nil {
		t.Fatalf("encodeRow failed: %v", err)
	}
	if len(buf) != tbl.RowLength {
		t.Fatalf("encodeRow length: got %d, want %d", len(buf), tbl.RowLength)
	}

	values := decodeRow(tbl, buf)
	if len(values) != 2 || values[0] != "42" || values[1] != "open" {
		t.Errorf("decodeRow: got %v, want [42 open]", values)
	}
}

func TestEncodeRowWrongArity(t *testing.T) {
	tbl := codecTestTable()
	if _, err := encodeRow(tbl, []string{"1"}); err == nil {
		t.Error("expected encodeRow to reject a value count mismatch")
	}
}

func TestEncodeFieldRejectsNonIntegerForInt64(t *testing.T) {
	tbl := codecTestTable()
	if _, err := encodeRow(tbl, []string{"not-a-number", "open"}); err == nil {
		t.Error("expected encodeRow to reject a non-integer int64 field")
	}
}

func TestEncodeFieldRejectsOverlongString(t *testing.T) {
	tbl := codecTestTable()
	if _, err := encodeRow(tbl, []string{"1", "this-string-is-too-long-for-the-field"}); err == nil {
		t.Error("expected encodeRow to reject a string wider than the field")
	}
}

func TestDecodeFieldTrimsZeroPadding(t *testing.T) {
	tbl := codecTestTable()
	buf, err := encodeRow(tbl, []string{"1", "hi"})
	if err != nil {
		t.Fatalf("encodeRow failed: %v", err)
	}
	values := decodeRow(tbl, buf)
	if values[1] != "hi" {
		t.Errorf("expected zero padding trimmed, got %q", values[1])
	}
}
