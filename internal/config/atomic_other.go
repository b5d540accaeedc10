//go:build !windows

package config

import "os"

// replaceFile renames src over dst, which POSIX rename does atomically.
func replaceFile(src, dst string) error {
	return os.Rename(src, dst)
}
