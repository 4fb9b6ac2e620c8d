//go:build linux || darwin || freebsd

package internal

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ModTime returns the last modification time of path, with the nanosecond precision of the file system.
func ModTime(path string) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return time.Unix(st.Mtim.Unix()), nil
}
