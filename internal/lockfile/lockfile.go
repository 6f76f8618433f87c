// Package lockfile provides advisory file locks used to serialize access to
// a table's heap and index files across processes.
package lockfile

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")

// Mode selects the kind of advisory lock to take on a share's files.
type Mode int

const (
	// Shared allows any number of concurrent readers.
	Shared Mode = iota
	// Exclusive excludes all other readers and writers.
	Exclusive
)

// Lock is a held advisory lock on a single file. Release is idempotent.
type Lock struct {
	file *os.File
	mode Mode
}

// Acquire opens path (creating it if necessary) and takes a non-blocking
// lock of the given mode, retrying with backoff until timeout elapses.
func Acquire(ctx context.Context, path string, mode Mode, timeout time.Duration) (*Lock, error) {
	// #nosec G304 - path is derived from the table share's own data directory
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	lockFn := flockShared
	if mode == Exclusive {
		lockFn = flockExclusive
	}

	if err := lockFn(f); err == nil {
		return &Lock{file: f, mode: mode}, nil
	} else if !errors.Is(err, ErrLockBusy) {
		_ = f.Close()
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 100 * time.Millisecond

	err = backoff.Retry(func() error {
		if err := lockFn(f); err != nil {
			if errors.Is(err, ErrLockBusy) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, cctx))
	if err != nil {
		_ = f.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockBusy
		}
		return nil, err
	}

	return &Lock{file: f, mode: mode}, nil
}

// Release unlocks and closes the underlying file. Safe to call on a nil Lock
// or to call more than once.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = flockUnlock(l.file)
	_ = l.file.Close()
	l.file = nil
}

// Mode reports the mode this lock was acquired with.
func (l *Lock) Mode() Mode {
	if l == nil {
		return Shared
	}
	return l.mode
}
