// Package catalog describes the external field metadata the planner and
// executor consult to interpret an otherwise-opaque tuple buffer. It plays
// the role the embedded SQL engine's table definitions play in the source:
// the executor never invents type information, it only reads what the
// catalog hands it — mirroring how database/sql/driver.Rows/ColumnType
// keep column metadata separate from row bytes.
package catalog

import "fmt"

// FieldType is the closed set of scalar types an expression operand or a
// tuple field can hold.
type FieldType int

const (
	TypeInt64 FieldType = iota
	TypeDecimal
	TypeString
)

func (t FieldType) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Field describes one column of one base table: its name, type, and its
// byte range within that table's fixed-shape record buffer.
type Field struct {
	Table  string
	Name   string
	Type   FieldType
	Length int // byte width within the record buffer
	Offset int // byte offset within the record buffer
}

// Table is the catalog's view of a single base relation.
type Table struct {
	Name      string
	Fields    []Field
	RowLength int
}

// Catalog resolves table and field metadata for the query builder,
// rewriter and executor. Implementations are expected to be cheap to
// query repeatedly; the executor consults it once per evaluated operand.
type Catalog interface {
	// Table returns the table definition, or an error if name is unknown.
	Table(name string) (Table, error)
	// Field resolves a single column by table and name.
	Field(table, name string) (Field, error)
}

// ErrUnknownTable is returned by Table when the name is not registered.
type ErrUnknownTable string

func (e ErrUnknownTable) Error() string { return fmt.Sprintf("unknown table %q", string(e)) }

// ErrUnknownField is returned by Field when the column is not registered.
type ErrUnknownField struct{ Table, Name string }

func (e ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field %s.%s", e.Table, e.Name)
}

// Static is an in-memory Catalog, the kind cmd/dbxp builds up from
// CREATE TABLE statements or a config file; it has no external dependency,
// playing the role a pluggable storage engine's table share would play in
// a full server.
type Static struct {
	tables map[string]Table
}

// NewStatic builds an empty in-memory catalog.
func NewStatic() *Static {
	return &Static{tables: make(map[string]Table)}
}

// Define registers a table, computing field offsets in declaration order.
func (s *Static) Define(name string, fields []Field) Table {
	offset := 0
	for i := range fields {
		fields[i].Table = name
		fields[i].Offset = offset
		offset += fields[i].Length
	}
	t := Table{Name: name, Fields: fields, RowLength: offset}
	s.tables[name] = t
	return t
}

func (s *Static) Table(name string) (Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return Table{}, ErrUnknownTable(name)
	}
	return t, nil
}

func (s *Static) Field(table, name string) (Field, error) {
	t, ok := s.tables[table]
	if !ok {
		return Field{}, ErrUnknownTable(table)
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, ErrUnknownField{Table: table, Name: name}
}
