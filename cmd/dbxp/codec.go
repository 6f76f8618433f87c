package main

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/dbxp/spartan/internal/catalog"
)

// encodeRow packs values (one per field of tbl, in declaration order) into
// a fixed-width record buffer using the same big-endian integer and
// zero-padded string/decimal layout internal/query/expr reads back.
func encodeRow(tbl catalog.Table, values []string) ([]byte, error) {
	if len(values) != len(tbl.Fields) {
		return nil, fmt.Errorf("dbxp: table %s wants %d values, got %d", tbl.Name, len(tbl.Fields), len(values))
	}
	buf := make([]byte, tbl.RowLength)
	for i, f := range tbl.Fields {
		if err := encodeField(buf[f.Offset:f.Offset+f.Length], f, values[i]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeField(dst []byte, f catalog.Field, value string) error {
	switch f.Type {
	case catalog.TypeInt64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("dbxp: field %s.%s: %w", f.Table, f.Name, err)
		}
		wide := make([]byte, 8)
		binary.BigEndian.PutUint64(wide, uint64(v))
		copy(dst, wide[8-len(dst):])
		return nil
	default: // TypeString, TypeDecimal: left-aligned, zero-padded
		if len(value) > len(dst) {
			return fmt.Errorf("dbxp: field %s.%s: value %q exceeds width %d", f.Table, f.Name, value, len(dst))
		}
		copy(dst, value)
		return nil
	}
}

// decodeRow renders a record buffer back to display strings, in field
// declaration order.
func decodeRow(tbl catalog.Table, buf []byte) []string {
	out := make([]string, len(tbl.Fields))
	for i, f := range tbl.Fields {
		out[i] = decodeField(f, buf)
	}
	return out
}

func decodeField(f catalog.Field, buf []byte) string {
	end := f.Offset + f.Length
	if end > len(buf) {
		end = len(buf)
	}
	raw := buf[f.Offset:end]
	switch f.Type {
	case catalog.TypeInt64:
		var v int64
		for _, b := range raw {
			v = v<<8 | int64(b)
		}
		return strconv.FormatInt(v, 10)
	default:
		return strings.TrimRight(string(raw), "\x00")
	}
}
