package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile is created in the asset root while a run is in progress.
const LockFile = ".setu.lock"

// ErrLocked is returned when another run holds the asset root.
var ErrLocked = errors.New("asset root is locked by another run")

func acquireLock(assetsRoot string) (*flock.Flock, error) {
	if err := os.MkdirAll(assetsRoot, 0755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}

	lock := flock.New(filepath.Join(assetsRoot, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lock.Path())
	}
	return lock, nil
}
