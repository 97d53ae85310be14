package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/radiocast/backend/internal/pkg/logger"
)

var transientPatterns = []string{segmentGlob, playlistGlob}

// CleanTransientFiles deletes HLS segments and playlists in dir. The recorded
// file is never touched. A failed removal is logged and the sweep continues;
// all failures are returned joined.
func CleanTransientFiles(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}

	removed := 0
	var errs []error
	for _, pattern := range transientPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				logger.Warn().
					Err(err).
					Str("path", path).
					Msg("Failed to remove transient file")
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
				continue
			}
			removed++
		}
	}

	cleanupRemovals.Add(float64(removed))
	return removed, errors.Join(errs...)
}

// SweepRoot clears transient files left under every job directory of root,
// typically by a previous run that did not shut down cleanly.
func SweepRoot(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	total := 0
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := CleanTransientFiles(filepath.Join(root, entry.Name()))
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
