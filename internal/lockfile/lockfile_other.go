//go:build !unix

package lockfile

import "os"

// Non-unix platforms get a no-op lock; the table share mutex still
// serializes in-process access.
func flockShared(f *os.File) error    { return nil }
func flockExclusive(f *os.File) error { return nil }
func flockUnlock(f *os.File) error    { return nil }
