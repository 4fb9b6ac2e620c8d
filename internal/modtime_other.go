//go:build !linux && !darwin && !freebsd

package internal

import (
	"os"
	"time"
)

// ModTime returns the last modification time of path.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
