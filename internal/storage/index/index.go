// Package index implements the fixed-width key, sorted doubly linked list
// index described in spec.md §4.2, grounded on _examples/original_source's
// Ch10/stage_five/spartan_index.{h,cc}. It is explicitly not a B-tree: an
// O(n) insert/delete list traded for simplicity, matching the source's own
// acknowledgment that this is a testing-grade structure (spec.md §4.5's
// REDESIGN FLAGS note a balanced map as the natural upgrade; this module
// keeps the list to preserve the seek-then-iterate protocol verbatim).
package index

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/dbxp/spartan/internal/obs"
)

const fileHeaderSize = 4 + 1 // max_key_len int32, crashed bool

// ErrDuplicateKey is returned by Insert when allowDupes is false and an
// equal key already exists in the list.
var ErrDuplicateKey = errors.New("index: duplicate key")

// ErrNotFound is returned by Delete/Update/Seek when no matching key
// exists.
var ErrNotFound = errors.New("index: key not found")

// node is one entry in the sorted doubly linked list.
type node struct {
	key    []byte // padded to maxKeyLen
	pos    int64
	length int32
	next   *node
	prev   *node
}

// Index is one open, in-memory sorted index with its on-disk mirror.
type Index struct {
	mu        sync.Mutex
	path      string
	maxKeyLen int
	crashed   bool

	head, tail *node
	cursor     *node // set by Seek/First/Last, advanced by Next/Prev
}

// Create creates a new, empty index file with the given key width.
func Create(path string, maxKeyLen int) (*Index, error) {
	idx := &Index{path: path, maxKeyLen: maxKeyLen}
	if err := idx.Save(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Open opens an existing index file and loads its contents into memory.
func Open(path string) (*Index, error) {
	idx := &Index{path: path}
	if err := idx.Load(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (ix *Index) pad(key []byte) []byte {
	out := make([]byte, ix.maxKeyLen)
	copy(out, key)
	return out
}

// compare orders two padded keys by byte value over the full key width,
// which is spec.md's "memcmp using max(left_len, right_len)" once both
// sides are padded to max_key_len.
func compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Insert splices (key, pos, length) into sorted position. If an equal key
// already exists and allowDupes is false, it returns ErrDuplicateKey and
// leaves the list unmodified; ties are otherwise broken by insertion
// order (new node goes after any existing equal keys).
func (ix *Index) Insert(key []byte, pos int64, length int32, allowDupes bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	padded := ix.pad(key)
	n := &node{key: padded, pos: pos, length: length}

	if ix.head == nil {
		ix.head, ix.tail = n, n
		obs.Metrics.IndexOps.Add(context.Background(), 1)
		return nil
	}

	cur := ix.head
	for cur != nil {
		c := compare(padded, cur.key)
		if c == 0 && !allowDupes {
			return ErrDuplicateKey
		}
		if c < 0 {
			ix.insertBefore(n, cur)
			obs.Metrics.IndexOps.Add(context.Background(), 1)
			return nil
		}
		if c == 0 {
			// Equal and dupes allowed: walk past every equal key before
			// inserting, so order among duplicates reflects insertion order.
			for cur.next != nil && compare(padded, cur.next.key) == 0 {
				cur = cur.next
			}
			ix.insertAfter(n, cur)
			obs.Metrics.IndexOps.Add(context.Background(), 1)
			return nil
		}
		cur = cur.next
	}

	// Greater than every existing key.
	ix.insertAfter(n, ix.tail)
	obs.Metrics.IndexOps.Add(context.Background(), 1)
	return nil
}

func (ix *Index) insertBefore(n, at *node) {
	n.prev = at.prev
	n.next = at
	if at.prev != nil {
		at.prev.next = n
	} else {
		ix.head = n
	}
	at.prev = n
}

func (ix *Index) insertAfter(n, at *node) {
	n.next = at.next
	n.prev = at
	if at.next != nil {
		at.next.prev = n
	} else {
		ix.tail = n
	}
	at.next = n
}

func (ix *Index) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		ix.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		ix.tail = n.prev
	}
	if ix.cursor == n {
		ix.cursor = n.next
	}
}

func (ix *Index) findFirst(key []byte) *node {
	padded := ix.pad(key)
	for cur := ix.head; cur != nil; cur = cur.next {
		if compare(padded, cur.key) == 0 {
			return cur
		}
		if compare(padded, cur.key) < 0 {
			return nil
		}
	}
	return nil
}

// Delete removes the first node matching key. If pos != -1, the matching
// node's pos must also equal pos (dup-discrimination), otherwise the
// lexicographically-first equal node is removed.
func (ix *Index) Delete(key []byte, pos int64, length int32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	padded := ix.pad(key)
	for cur := ix.head; cur != nil; cur = cur.next {
		c := compare(padded, cur.key)
		if c < 0 {
			break
		}
		if c == 0 {
			if pos == -1 || cur.pos == pos {
				ix.unlink(cur)
				obs.Metrics.IndexOps.Add(context.Background(), 1)
				return nil
			}
		}
	}
	return ErrNotFound
}

// Update finds the first node whose pos matches and replaces its key (a key
// change for the same row), re-inserting the node at the new key's sorted
// position so the list stays ordered.
func (ix *Index) Update(key []byte, pos int64, length int32) error {
	ix.mu.Lock()
	found := false
	for cur := ix.head; cur != nil; cur = cur.next {
		if cur.pos == pos {
			ix.unlink(cur)
			found = true
			break
		}
	}
	ix.mu.Unlock()
	if !found {
		return ErrNotFound
	}
	if err := ix.Insert(key, pos, length, true); err != nil {
		return err
	}
	obs.Metrics.IndexOps.Add(context.Background(), 1)
	return nil
}

// Seek positions the internal cursor at the first node equal to key and
// returns true, or leaves the cursor unchanged and returns false.
func (ix *Index) Seek(key []byte, length int32) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := ix.findFirst(key)
	if n == nil {
		return false
	}
	ix.cursor = n
	return true
}

// GetIndexPos returns the pos of the first node equal to key, or -1.
func (ix *Index) GetIndexPos(key []byte, length int32) int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := ix.findFirst(key)
	if n == nil {
		return -1
	}
	return n.pos
}

// First positions the cursor at the smallest key and returns its fields.
func (ix *Index) First() (key []byte, pos int64, length int32, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.head == nil {
		return nil, 0, 0, false
	}
	ix.cursor = ix.head
	return ix.cursor.key, ix.cursor.pos, ix.cursor.length, true
}

// Last positions the cursor at the largest key and returns its fields.
func (ix *Index) Last() (key []byte, pos int64, length int32, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.tail == nil {
		return nil, 0, 0, false
	}
	ix.cursor = ix.tail
	return ix.cursor.key, ix.cursor.pos, ix.cursor.length, true
}

// Next returns the current cursor's key and advances the cursor forward.
func (ix *Index) Next() (key []byte, pos int64, length int32, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.cursor == nil {
		return nil, 0, 0, false
	}
	c := ix.cursor
	ix.cursor = c.next
	return c.key, c.pos, c.length, true
}

// Prev returns the current cursor's key and advances the cursor backward.
func (ix *Index) Prev() (key []byte, pos int64, length int32, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.cursor == nil {
		return nil, 0, 0, false
	}
	c := ix.cursor
	ix.cursor = c.prev
	return c.key, c.pos, c.length, true
}

// Load reads the index file header then every (key, pos, length) triple,
// rebuilding the in-memory ordered list (duplicates always allowed on
// load, since the file already reflects whatever policy wrote it).
func (ix *Index) Load() error {
	ix.mu.Lock()
	f, err := os.Open(ix.path)
	if err != nil {
		ix.mu.Unlock()
		return fmt.Errorf("index: open %s: %w", ix.path, err)
	}
	defer f.Close()

	hdr := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		ix.mu.Unlock()
		return fmt.Errorf("index: read header %s: %w", ix.path, err)
	}
	ix.maxKeyLen = int(binary.LittleEndian.Uint32(hdr[0:4]))
	ix.crashed = hdr[4] != 0
	ix.head, ix.tail, ix.cursor = nil, nil, nil
	blockSize := ix.maxKeyLen + 8 + 4
	ix.mu.Unlock()

	block := make([]byte, blockSize)
	for {
		if _, err := io.ReadFull(f, block); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("index: read record %s: %w", ix.path, err)
		}
		key := append([]byte(nil), block[:ix.maxKeyLen]...)
		pos := int64(binary.LittleEndian.Uint64(block[ix.maxKeyLen : ix.maxKeyLen+8]))
		length := int32(binary.LittleEndian.Uint32(block[ix.maxKeyLen+8 : ix.maxKeyLen+12]))
		if err := ix.Insert(key, pos, length, true); err != nil {
			return err
		}
	}
	slog.Debug("index: loaded", slog.String("path", ix.path), slog.Int("max_key_len", ix.maxKeyLen))
	return nil
}

// Save truncates the index file and rewrites the header followed by every
// entry in list order (front to back).
func (ix *Index) Save() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	f, err := os.OpenFile(ix.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("index: save %s: %w", ix.path, err)
	}
	defer f.Close()

	hdr := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(ix.maxKeyLen))
	if ix.crashed {
		hdr[4] = 1
	}
	if _, err := f.Write(hdr); err != nil {
		return fmt.Errorf("index: write header %s: %w", ix.path, err)
	}

	blockSize := ix.maxKeyLen + 8 + 4
	block := make([]byte, blockSize)
	for cur := ix.head; cur != nil; cur = cur.next {
		copy(block[:ix.maxKeyLen], cur.key)
		binary.LittleEndian.PutUint64(block[ix.maxKeyLen:ix.maxKeyLen+8], uint64(cur.pos))
		binary.LittleEndian.PutUint32(block[ix.maxKeyLen+8:ix.maxKeyLen+12], uint32(cur.length))
		if _, err := f.Write(block); err != nil {
			return fmt.Errorf("index: write record %s: %w", ix.path, err)
		}
	}
	return nil
}

// Close discards the in-memory list. Callers that want durability must
// call Save first.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.head, ix.tail, ix.cursor = nil, nil, nil
	return nil
}

// MaxKeyLen returns the fixed key width this index was created with.
func (ix *Index) MaxKeyLen() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.maxKeyLen
}
