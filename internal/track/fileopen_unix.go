//go:build !windows

package track

import (
	stderrors "errors"
	"fmt"
	"os"
	"syscall"
)

// openFileNoFollow opens a file for writing with O_NOFOLLOW so a symlink planted at
// the temp path cannot redirect the write. O_CLOEXEC prevents FD leaks across exec.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, fmt.Errorf("cannot write to symlink %s", path)
		}
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}
