package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/dbxp/spartan/internal/catalog"
	"github.com/dbxp/spartan/internal/storage/table"
)

// registry lazily opens one table.Share per base table under a data
// directory and keeps it open for the life of the process, satisfying
// internal/query/build.Registry.
type registry struct {
	mu        sync.Mutex
	dataDir   string
	cat       *catalog.Static
	schema    schemaFile
	lockWait  time.Duration
	shares    map[string]*table.Share
}

func newRegistry(dataDir string, cat *catalog.Static, sf schemaFile, lockWait time.Duration) *registry {
	return &registry{dataDir: dataDir, cat: cat, schema: sf, lockWait: lockWait, shares: make(map[string]*table.Share)}
}

func (r *registry) Share(name string) (*table.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shares[name]; ok {
		return s, nil
	}
	tbl, err := r.cat.Table(name)
	if err != nil {
		return nil, err
	}
	s, err := table.OpenShare(r.dataDir, name, nil, maxFieldWidth(tbl), r.lockWait)
	if err != nil {
		return nil, fmt.Errorf("dbxp: open table %s: %w", name, err)
	}
	r.shares[name] = s
	return s, nil
}

func maxFieldWidth(tbl catalog.Table) int {
	width := 0
	for _, f := range tbl.Fields {
		if f.Length > width {
			width = f.Length
		}
	}
	return width
}

// Close releases every opened share.
func (r *registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, s := range r.shares {
		if err := s.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
