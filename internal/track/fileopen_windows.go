//go:build windows

package track

import "os"

// openFileNoFollow opens a file for writing.
// O_NOFOLLOW is not available on Windows, and creating symlinks there needs privileges.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
