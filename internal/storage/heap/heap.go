// Package heap implements the append-oriented, soft-delete record store
// that backs every Spartan table: a ".sde" file of length-prefixed rows
// behind a small header, grounded on _examples/original_source's
// Ch10/stage_one/spartan_data.cc. Positional reads skip deleted rows by
// following the record's own length forward, never seeking through a
// free-list.
package heap

import (
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

const (
	headerSize       = 1 + 4 + 4 // crashed bool, n_live int32, n_deleted int32
	recordHeaderSize = 1 + 4     // deleted byte, len int32
)

// ErrRecordNotFound is returned by UpdateRow/DeleteRow when no row matches
// old by byte-equality and no explicit position was given.
var ErrRecordNotFound = errors.New("heap: record not found")

// RowSize returns the on-disk size of a record of the given payload length.
func RowSize(length int) int64 {
	return int64(length) + recordHeaderSize
}

// File is one open heap file. All mutating operations take File.mu, which
// also protects the shared file cursor used by ReadRow during a scan;
// concurrent scans from distinct goroutines against the same *File are
// therefore serialized, matching the source's single active cursor.
type File struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	crashed  bool
	nLive    int32
	nDeleted int32
}

// Create truncates or creates the file at path and writes a fresh header.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("heap: create %s: %w", path, err)
	}
	h := &File{f: f, path: path}
	if err := h.writeHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return h, nil
}

// Open opens an existing heap file, or creates one if create is true and
// the file does not yet exist.
func Open(path string, create bool) (*File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("heap: open %s: %w", path, err)
	}
	h := &File{f: f, path: path}
	if err := h.readHeader(); err != nil {
		if errors.Is(err, io.EOF) {
			// Freshly created empty file: initialize the header.
			if werr := h.writeHeader(); werr != nil {
				_ = f.Close()
				return nil, werr
			}
			return h, nil
		}
		_ = f.Close()
		return nil, err
	}
	return h, nil
}

func (h *File) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := h.f.ReadAt(buf, 0); err != nil {
		return err
	}
	h.crashed = buf[0] != 0
	h.nLive = int32(binary.LittleEndian.Uint32(buf[1:5]))
	h.nDeleted = int32(binary.LittleEndian.Uint32(buf[5:9]))
	return nil
}

func (h *File) writeHeader() error {
	buf := make([]byte, headerSize)
	if h.crashed {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], uint32(h.nLive))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(h.nDeleted))
	_, err := h.f.WriteAt(buf, 0)
	return err
}

// NLive returns the number of non-deleted rows recorded in the header.
func (h *File) NLive() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nLive
}

// NDeleted returns the number of soft-deleted rows recorded in the header.
func (h *File) NDeleted() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nDeleted
}

// Crashed reports the advisory crashed flag read at open time.
func (h *File) Crashed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.crashed
}

// MarkCrashed sets the advisory crashed flag and persists the header. The
// executor never consults this flag; it exists for external tooling (see
// internal/storage/table's fsnotify watcher).
func (h *File) MarkCrashed(crashed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.crashed = crashed
	return h.writeHeader()
}

// WriteRow appends buf as a new live record and returns its byte offset.
func (h *File) WriteRow(buf []byte) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pos, err := h.f.Seek(0, io.SeekEnd)
	if err != nil {
		return -1, fmt.Errorf("heap: seek end of %s: %w", h.path, err)
	}

	rec := make([]byte, recordHeaderSize+len(buf))
	rec[0] = 0 // not deleted
	binary.LittleEndian.PutUint32(rec[1:5], uint32(len(buf)))
	copy(rec[5:], buf)
	if _, err := h.f.WriteAt(rec, pos); err != nil {
		return -1, fmt.Errorf("heap: write row at %d in %s: %w", pos, h.path, err)
	}

	h.nLive++
	if err := h.writeHeader(); err != nil {
		return -1, err
	}
	obs.Metrics.HeapWrites.Add(context.Background(), 1)
	slog.Debug("heap: wrote row", slog.String("path", h.path), slog.Int64("pos", pos), slog.Int("len", len(buf)))
	return pos, nil
}

// findByValue scans from just past the header looking for a live record
// whose payload byte-equals old. Returns the record's offset, or -1 if not
// found.
func (h *File) findByValue(old []byte, length int) (int64, error) {
	cur := int64(headerSize)
	cmp := make([]byte, length)
	for {
		n, err := h.readRowLocked(cmp, cur)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return -1, nil
			}
			return -1, err
		}
		if equalBytes(old, cmp) {
			return cur, nil
		}
		cur = n
	}
}

func equalBytes(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UpdateRow overwrites the record matching old (or at pos, if pos >= 0)
// with new, keeping the same length. pos == -1 triggers a byte-equality
// scan. Returns ErrRecordNotFound if scanning finds no match.
func (h *File) UpdateRow(old, newRow []byte, length int, pos int64) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if pos == 0 {
		pos = headerSize
	}
	if pos == -1 {
		found, err := h.findByValue(old, length)
		if err != nil {
			return -1, err
		}
		if found == -1 {
			return -1, ErrRecordNotFound
		}
		pos = found
	}

	rec := make([]byte, recordHeaderSize+length)
	rec[0] = 0
	binary.LittleEndian.PutUint32(rec[1:5], uint32(length))
	copy(rec[5:], newRow)
	if _, err := h.f.WriteAt(rec, pos); err != nil {
		return -1, fmt.Errorf("heap: update row at %d in %s: %w", pos, h.path, err)
	}
	return pos, nil
}

// DeleteRow soft-deletes the record matching old (or at pos, if pos >= 0).
// pos == -1 triggers a byte-equality scan. Returns ErrRecordNotFound if
// scanning finds no match.
func (h *File) DeleteRow(old []byte, length int, pos int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if pos == 0 {
		pos = headerSize
	}
	if pos == -1 {
		found, err := h.findByValue(old, length)
		if err != nil {
			return err
		}
		if found == -1 {
			return ErrRecordNotFound
		}
		pos = found
	}

	if _, err := h.f.WriteAt([]byte{1}, pos); err != nil {
		return fmt.Errorf("heap: delete row at %d in %s: %w", pos, h.path, err)
	}
	h.nLive--
	h.nDeleted++
	return h.writeHeader()
}

// ReadRow reads the live record at or after pos into buf (truncating to
// len(buf) bytes if the stored record is longer) and returns the file
// offset just past it, so the caller can pass that offset back in as the
// next scan position. pos <= 0 means "first live record after the
// header". Returns io.EOF once no further record exists.
func (h *File) ReadRow(buf []byte, pos int64) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readRowLocked(buf, pos)
}

func (h *File) readRowLocked(buf []byte, pos int64) (int64, error) {
	if pos <= 0 {
		pos = headerSize
	}
	for {
		hdr := make([]byte, recordHeaderSize)
		n, err := h.f.ReadAt(hdr, pos)
		if err != nil {
			if errors.Is(err, io.EOF) && n == 0 {
				return -1, io.EOF
			}
			if n < recordHeaderSize {
				return -1, io.EOF
			}
		}
		deleted := hdr[0]
		recLen := int(binary.LittleEndian.Uint32(hdr[1:5]))
		payloadAt := pos + recordHeaderSize
		if deleted == 0 {
			readLen := len(buf)
			if recLen < readLen {
				readLen = recLen
			}
			if readLen > 0 {
				if _, err := h.f.ReadAt(buf[:readLen], payloadAt); err != nil && !errors.Is(err, io.EOF) {
					return -1, fmt.Errorf("heap: read payload at %d in %s: %w", payloadAt, h.path, err)
				}
			}
			obs.Metrics.HeapReads.Add(context.Background(), 1)
			return payloadAt + int64(recLen), nil
		}
		// Skip the deleted record and keep scanning forward.
		pos = payloadAt + int64(recLen)
	}
}

// Truncate discards all rows and resets the header to empty.
func (h *File) Truncate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.f.Truncate(0); err != nil {
		return fmt.Errorf("heap: truncate %s: %w", h.path, err)
	}
	h.nLive, h.nDeleted, h.crashed = 0, 0, false
	return h.writeHeader()
}

// Close closes the underlying file handle.
func (h *File) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Close()
}

// Path returns the heap file's path on disk.
func (h *File) Path() string { return h.path }
