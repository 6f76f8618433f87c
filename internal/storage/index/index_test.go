package index

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestInsertKeepsSortedOrder(t *testing.T) {
	ix := &Index{maxKeyLen: 4}

	keys := []string{"cccc", "aaaa", "dddd", "bbbb"}
	for _, k := range keys {
		if err := ix.Insert([]byte(k), 0, 0, false); err != nil {
			t.Fatalf("Insert(%q) failed: %v", k, err)
		}
	}

	want := []string{"aaaa", "bbbb", "cccc", "dddd"}
	var got []string
	for cur := ix.head; cur != nil; cur = cur.next {
		got = append(got, string(cur.key))
	}
	if len(got) != len(want) {
		t.Fatalf("got %d nodes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInsertDuplicateRejectedWithoutAllowDupes(t *testing.T) {
	ix := &Index{maxKeyLen: 3}
	if err := ix.Insert([]byte("key"), 1, 10, false); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if err := ix.Insert([]byte("key"), 2, 10, false); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestInsertDuplicateAllowedPreservesInsertionOrder(t *testing.T) {
	ix := &Index{maxKeyLen: 3}
	if err := ix.Insert([]byte("key"), 1, 10, true); err != nil {
		t.Fatalf("Insert #1 failed: %v", err)
	}
	if err := ix.Insert([]byte("key"), 2, 10, true); err != nil {
		t.Fatalf("Insert #2 failed: %v", err)
	}
	if err := ix.Insert([]byte("key"), 3, 10, true); err != nil {
		t.Fatalf("Insert #3 failed: %v", err)
	}

	var positions []int64
	for cur := ix.head; cur != nil; cur = cur.next {
		positions = append(positions, cur.pos)
	}
	want := []int64{1, 2, 3}
	for i := range want {
		if positions[i] != want[i] {
			t.Errorf("position %d: got %d, want %d", i, positions[i], want[i])
		}
	}
}

func TestDeleteByKeyAndByPosition(t *testing.T) {
	ix := &Index{maxKeyLen: 3}
	if err := ix.Insert([]byte("dup"), 1, 10, true); err != nil {
		t.Fatalf("Insert #1 failed: %v", err)
	}
	if err := ix.Insert([]byte("dup"), 2, 10, true); err != nil {
		t.Fatalf("Insert #2 failed: %v", err)
	}

	if err := ix.Delete([]byte("dup"), 2, 10); err != nil {
		t.Fatalf("Delete by position failed: %v", err)
	}
	if ix.head == nil || ix.head.pos != 1 || ix.head.next != nil {
		t.Error("expected only pos=1 entry to remain after positional delete")
	}

	if err := ix.Delete([]byte("dup"), -1, 10); err != nil {
		t.Fatalf("Delete by key failed: %v", err)
	}
	if ix.head != nil {
		t.Error("expected list to be empty after deleting the remaining entry")
	}
}

func TestDeleteNotFound(t *testing.T) {
	ix := &Index{maxKeyLen: 3}
	if err := ix.Insert([]byte("abc"), 1, 10, false); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := ix.Delete([]byte("xyz"), -1, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMovesNodeToNewSortedPosition(t *testing.T) {
	ix := &Index{maxKeyLen: 3}
	if err := ix.Insert([]byte("aaa"), 1, 10, false); err != nil {
		t.Fatalf("Insert(aaa) failed: %v", err)
	}
	if err := ix.Insert([]byte("ccc"), 2, 10, false); err != nil {
		t.Fatalf("Insert(ccc) failed: %v", err)
	}

	if err := ix.Update([]byte("zzz"), 1, 10); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	var keys []string
	for cur := ix.head; cur != nil; cur = cur.next {
		keys = append(keys, string(cur.key))
	}
	want := []string{"ccc", "zzz"}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestSeekFirstLastNext(t *testing.T) {
	ix := &Index{maxKeyLen: 1}
	for _, k := range []string{"b", "a", "c"} {
		if err := ix.Insert([]byte(k), int64(k[0]), 1, false); err != nil {
			t.Fatalf("Insert(%q) failed: %v", k, err)
		}
	}

	key, pos, _, ok := ix.First()
	if !ok || string(bytes.TrimRight(key, "\x00")) != "a" {
		t.Errorf("First: got key=%q ok=%v, want a/true", key, ok)
	}
	if pos != int64('a') {
		t.Errorf("First: got pos=%d, want %d", pos, int64('a'))
	}

	_, _, _, ok = ix.Next() // returns "a", advances cursor to "b"
	key, _, _, ok = ix.Next() // returns "b", advances cursor to "c"
	key, _, _, ok = ix.Next() // returns "c"
	if !ok || string(bytes.TrimRight(key, "\x00")) != "c" {
		t.Errorf("third Next: got key=%q ok=%v, want c/true", key, ok)
	}

	key, _, _, ok = ix.Last()
	if !ok || string(bytes.TrimRight(key, "\x00")) != "c" {
		t.Errorf("Last: got key=%q ok=%v, want c/true", key, ok)
	}

	if !ix.Seek([]byte("b"), 1) {
		t.Fatalf("Seek(b): got false, want true")
	}
	key, _, _, ok = ix.Next() // returns "b", the sought node
	if !ok || string(bytes.TrimRight(key, "\x00")) != "b" {
		t.Errorf("Next after Seek: got key=%q ok=%v, want b/true", key, ok)
	}
}

func TestSeekMissingKey(t *testing.T) {
	ix := &Index{maxKeyLen: 1}
	if err := ix.Insert([]byte("m"), 0, 1, false); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if ix.Seek([]byte("z"), 1) {
		t.Error("expected Seek to fail for a key not present")
	}
	if ix.GetIndexPos([]byte("z"), 1) != -1 {
		t.Error("expected GetIndexPos to return -1 for a missing key")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.sdi")

	ix, err := Create(path, 4)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i, k := range []string{"ccc", "aaa", "bbb"} {
		if err := ix.Insert([]byte(k), int64(i), 3, false); err != nil {
			t.Fatalf("Insert(%q) failed: %v", k, err)
		}
	}
	if err := ix.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if loaded.MaxKeyLen() != 4 {
		t.Errorf("MaxKeyLen: got %d, want 4", loaded.MaxKeyLen())
	}

	var got []string
	for cur := loaded.head; cur != nil; cur = cur.next {
		got = append(got, string(bytes.TrimRight(cur.key, "\x00")))
	}
	want := []string{"aaa", "bbb", "ccc"}
	if len(got) != len(want) {
		t.Fatalf("got %d entries after reload, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
