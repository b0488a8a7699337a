package track

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"

	"github.com/hpungsan/stravagpx/internal/errors"
)

// Ext is the extension of exported track files.
const Ext = ".gpx"

// WriteFile writes t as a GPX document to path.
// The document is streamed into a temp file next to path and renamed into place
// only after it has been fully written and synced, so a failed write never leaves
// a file at path. Failures are returned as WRITE_FAILED errors.
func WriteFile(path, name string, t *Track) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewWriteFailed(path, fmt.Errorf("generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return errors.NewWriteFailed(path, err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := Write(file, name, t.Points()); err != nil {
		return errors.NewWriteFailed(path, err)
	}

	if err := file.Sync(); err != nil {
		return errors.NewWriteFailed(path, err)
	}

	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewWriteFailed(path, fmt.Errorf("close: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewWriteFailed(path, fmt.Errorf("destination is a symlink"))
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewWriteFailed(path, fmt.Errorf("destination already exists"))
			}
		}
		return errors.NewWriteFailed(path, fmt.Errorf("finalize: %w", err))
	}

	success = true
	return nil
}
