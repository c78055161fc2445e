// Package archive moves a compiled asset root out of the way so that the
// next build starts from an empty synthesis cache.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"codeberg.org/snonux/setu/internal/pipeline"
)

// ErrNotExist is returned when there is nothing to archive.
var ErrNotExist = errors.New("asset root does not exist")

// ArchiveAssets moves assetsRoot to <parent>/archive/<name>-<timestamp> and
// returns the new location. It refuses while a build holds the root.
func ArchiveAssets(assetsRoot string, now time.Time) (string, error) {
	assetsRoot = filepath.Clean(assetsRoot)
	info, err := os.Stat(assetsRoot)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotExist, assetsRoot)
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("asset root is not a directory: %s", assetsRoot)
	}

	lock := flock.New(filepath.Join(assetsRoot, pipeline.LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return "", pipeline.ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	archiveDir := filepath.Join(filepath.Dir(assetsRoot), "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := filepath.Base(assetsRoot)
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("%s-%s", name, now.Format("20060102-150405")))
	if _, err := os.Stat(archivePath); err == nil {
		archivePath = filepath.Join(archiveDir, fmt.Sprintf("%s-%s", name, now.Format("20060102-150405.000000000")))
	}
	if _, err := os.Stat(archivePath); err == nil {
		return "", fmt.Errorf("archive already exists: %s", archivePath)
	}

	if err := os.Rename(assetsRoot, archivePath); err != nil {
		return "", fmt.Errorf("failed to archive asset root: %w", err)
	}
	return archivePath, nil
}
