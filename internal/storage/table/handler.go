package table

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dbxp/spartan/internal/catalog"
	"github.com/dbxp/spartan/internal/lockfile"
	"github.com/dbxp/spartan/internal/obs"
	"github.com/dbxp/spartan/internal/storage/heap"
)

// ErrWrongCommand is returned by the declared-but-unimplemented
// index-backed access methods (index_read_map, index_next, index_prev,
// index_first, index_last), per spec.md §4.3.
var ErrWrongCommand = errors.New("table: wrong command")

// ErrTableLocked is returned when StoreLock cannot be promoted because
// another handler already holds an incompatible lock.
var ErrTableLocked = errors.New("table: locked by another handler")

// Handler exposes the uniform relational-row API spec.md §4.3 describes
// to the query executor. Multiple Handlers can point at the same Share;
// each Handler keeps its own scan cursor (current_position), matching the
// source's one-cursor-per-open-handle model.
type Handler struct {
	share *Share
	table catalog.Table

	currentPosition int64
	records         int64
	refLength       int
}

// Open resolves share's heap file and binds a fresh handler to it,
// mirroring spec.md's open(name, mode, test_if_locked) — the share is
// assumed already opened via OpenShare; this just registers a new
// reference and handler-local cursor state.
func Open(share *Share, tbl catalog.Table) *Handler {
	share.Acquire()
	return &Handler{share: share, table: tbl, refLength: 8}
}

// Close releases the handler's reference on its share.
func (h *Handler) Close() error {
	return h.share.Release()
}

// WriteRow atomically appends buf to the heap file. Per spec.md §4.3's
// open question, a failed append is reported via a real error
// here rather than the source's "returns success regardless of I/O
// outcome" behavior — SPEC_FULL.md decision 2 treats that as a bug to fix,
// not reproduce.
func (h *Handler) WriteRow(ctx context.Context, buf []byte) error {
	ctx, span := obs.StartSpan(ctx, "table.write_row", obs.TableAttr(h.table.Name))
	defer span.End()
	_, err := h.share.heap.WriteRow(buf)
	if err != nil {
		return fmt.Errorf("table: write_row %s: %w", h.table.Name, err)
	}
	return nil
}

// UpdateRow overwrites the slot immediately before current_position — the
// last row returned by RndNext — with newRow, per spec.md §4.3. Valid only
// immediately after RndNext; an interleaved RndPos invalidates the
// offset, matching spec.md §9 item 3's documented (not "fixed") contract.
func (h *Handler) UpdateRow(ctx context.Context, old, newRow []byte) error {
	offset := h.currentPosition - heap.RowSize(len(newRow))
	if offset < 0 {
		offset = 0
	}
	if _, err := h.share.heap.UpdateRow(old, newRow, len(newRow), offset); err != nil {
		return fmt.Errorf("table: update_row %s: %w", h.table.Name, err)
	}
	return nil
}

// DeleteRow soft-deletes the slot immediately before current_position, per
// spec.md §4.3. If current_position is still 0 (no row read since RndInit)
// there is no such slot and it deletes nothing.
func (h *Handler) DeleteRow(ctx context.Context, buf []byte) error {
	if h.currentPosition == 0 {
		return nil
	}
	offset := h.currentPosition - heap.RowSize(len(buf))
	if offset < 0 {
		offset = 0
	}
	if err := h.share.heap.DeleteRow(buf, len(buf), offset); err != nil {
		return fmt.Errorf("table: delete_row %s: %w", h.table.Name, err)
	}
	return nil
}

// RndInit resets the scan cursor to the start of the heap file, per
// spec.md §4.3.
func (h *Handler) RndInit(ctx context.Context, scan bool) error {
	h.currentPosition = 0
	h.records = 0
	return nil
}

// RndNext reads the next live row into buf, advancing current_position to
// the file cursor on success, per spec.md §4.3. Returns io.EOF once the
// heap file is exhausted.
func (h *Handler) RndNext(ctx context.Context, buf []byte) error {
	next, err := h.share.heap.ReadRow(buf, h.currentPosition)
	if err != nil {
		return err
	}
	h.currentPosition = next
	h.records++
	return nil
}

// Position serializes current_position (after RndNext, the offset just past
// the row it returned) into an opaque ref of RefLength() bytes so the SQL
// layer can later replay RndPos, per spec.md §4.3.
func (h *Handler) Position(record []byte) []byte {
	ref := make([]byte, h.refLength)
	binary.LittleEndian.PutUint64(ref, uint64(h.currentPosition))
	return ref
}

// RndPos decodes pos (as produced by Position), seeks, and reads one row,
// per spec.md §4.3.
func (h *Handler) RndPos(ctx context.Context, buf, pos []byte) error {
	if len(pos) < 8 {
		return fmt.Errorf("table: rnd_pos %s: short ref", h.table.Name)
	}
	offset := int64(binary.LittleEndian.Uint64(pos))
	next, err := h.share.heap.ReadRow(buf, offset)
	if err != nil {
		return err
	}
	h.currentPosition = next
	return nil
}

// RefLength returns the byte width of the opaque ref Position produces.
func (h *Handler) RefLength() int { return h.refLength }

// RowLength returns the fixed payload width of this table's records,
// satisfying internal/query/plan.Scanner.
func (h *Handler) RowLength() int { return h.table.RowLength }

// ScanInit/ScanNext/ScanClose adapt Handler to internal/query/plan.Scanner
// for the executor's leaf pulls.
func (h *Handler) ScanInit(ctx context.Context) error { return h.RndInit(ctx, true) }

func (h *Handler) ScanNext(ctx context.Context, buf []byte) error {
	err := h.RndNext(ctx, buf)
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return err
}

func (h *Handler) ScanClose(ctx context.Context) error { return nil }

// Extra is a no-op hint sink, per spec.md §4.3.
func (h *Handler) Extra(hint string) error { return nil }

// ExternalLock is a no-op, per spec.md §4.3.
func (h *Handler) ExternalLock(ctx context.Context, lockType int) error { return nil }

// StoreLock promotes the share's lock from UNLOCK to hint, per spec.md
// §4.3 (SUPPLEMENTED FEATURES item 2 gives this an actual effect on
// internal/lockfile instead of leaving it a stub).
func (h *Handler) StoreLock(ctx context.Context, hint LockHint) error {
	if err := h.share.StoreLock(ctx, hint); err != nil {
		if errors.Is(err, lockfile.ErrLockBusy) {
			return ErrTableLocked
		}
		return err
	}
	return nil
}

// Truncate empties the table's heap file and indexes, per spec.md §4.3's
// delete_all_rows/truncate.
func (h *Handler) Truncate(ctx context.Context) error {
	return h.share.Truncate()
}

// IndexReadMap, IndexNext, IndexPrev, IndexFirst and IndexLast are
// declared but unimplemented, per spec.md §4.3: "must report wrong
// command."
func (h *Handler) IndexReadMap(ctx context.Context, buf, key []byte) error { return ErrWrongCommand }
func (h *Handler) IndexNext(ctx context.Context, buf []byte) error        { return ErrWrongCommand }
func (h *Handler) IndexPrev(ctx context.Context, buf []byte) error        { return ErrWrongCommand }
func (h *Handler) IndexFirst(ctx context.Context, buf []byte) error       { return ErrWrongCommand }
func (h *Handler) IndexLast(ctx context.Context, buf []byte) error        { return ErrWrongCommand }

// Info is spec.md §4.3's statistics contract: records clamped to >= 2 so
// the planner never specializes on a single row.
type Info struct {
	Records int64
}

// Info computes the table's statistics estimate.
func (h *Handler) Info(ctx context.Context) Info {
	return Info{Records: recordsEstimate(h.share.heap.NLive(), int64(h.table.RowLength))}
}

// RecordsInRange returns a fixed small estimate to bias the optimizer
// toward index use, per spec.md §4.3 (kept a stub since no cost stage
// reads it — SPEC_FULL.md decision 7).
func (h *Handler) RecordsInRange(ctx context.Context) int64 { return 10 }

