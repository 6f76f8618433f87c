package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/dbxp/spartan/internal/catalog"
)

// schemaFile is the on-disk record of every table CREATE TABLE has
// registered, so a later `dbxp` invocation can rebuild the same catalog
// without replaying every DDL statement. Not part of spec.md's storage
// format — this is CLI-level bookkeeping the original book-vending
// samples left to the surrounding application.
type schemaFile struct {
	Tables []schemaTable `toml:"table"`
}

type schemaTable struct {
	Name   string        `toml:"name"`
	Fields []schemaField `toml:"field"`
}

type schemaField struct {
	Name   string `toml:"name"`
	Type   string `toml:"type"`
	Length int    `toml:"length"`
}

func schemaPath(dataDir string) string { return filepath.Join(dataDir, "schema.toml") }

func loadCatalog(dataDir string) (*catalog.Static, schemaFile, error) {
	cat := catalog.NewStatic()
	var sf schemaFile
	path := schemaPath(dataDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cat, sf, nil
	}
	if _, err := toml.DecodeFile(path, &sf); err != nil {
		return nil, sf, fmt.Errorf("dbxp: load schema %s: %w", path, err)
	}
	for _, t := range sf.Tables {
		fields := make([]catalog.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = catalog.Field{Name: f.Name, Type: parseFieldType(f.Type), Length: f.Length}
		}
		cat.Define(t.Name, fields)
	}
	return cat, sf, nil
}

func saveSchema(dataDir string, sf schemaFile) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(schemaPath(dataDir))
	if err != nil {
		return fmt.Errorf("dbxp: save schema: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(sf)
}

func parseFieldType(s string) catalog.FieldType {
	switch s {
	case "int64":
		return catalog.TypeInt64
	case "decimal":
		return catalog.TypeDecimal
	default:
		return catalog.TypeString
	}
}
