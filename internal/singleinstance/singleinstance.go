// Package singleinstance keeps one eventhub process per data directory.
//
// The lock is an advisory lock on a file in the data directory, so two
// servers pointed at different directories may run side by side while two
// syncs writing the same databases may not.
package singleinstance

import (
	"fmt"
	"os"
)

// AcquireLock takes an exclusive lock on the file at path, creating it if
// needed.
//
// Returns:
//   - release: unlocks and closes the file (use with defer)
//   - ok: false if another process holds the lock
//   - err: error if the file could not be opened or locked
//
// Usage:
//
//	release, ok, err := singleinstance.AcquireLock(paths.Lock())
//	if err != nil { return err }
//	if !ok { return errors.New("already running") }
//	defer release()
func AcquireLock(path string) (release func(), ok bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, false, fmt.Errorf("open lock file: %w", err)
	}

	ok, err = tryLock(f)
	if err != nil || !ok {
		f.Close()
		return nil, ok, err
	}

	// Best effort; the pid is informational only.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}

	return func() {
		unlock(f)
		f.Close()
	}, true, nil
}
