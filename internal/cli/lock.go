package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/graaaaa/eventhub/internal/config"
	"github.com/graaaaa/eventhub/internal/singleinstance"
)

// ErrAlreadyRunning is returned when another process holds the data directory.
var ErrAlreadyRunning = errors.New("another eventhub process is using the data directory")

// lockDataDir creates the data directory and takes its lock.
func lockDataDir(paths config.Paths) (release func(), err error) {
	if err := os.MkdirAll(paths.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir %q: %w", paths.Dir, err)
	}
	release, ok, err := singleinstance.AcquireLock(paths.Lock())
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, paths.Lock())
	}
	return release, nil
}
