//go:build linux || darwin

package service

import "golang.org/x/sys/unix"

func diskUsage(path string) (total, free int64, ok bool) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0, false
	}
	bsize := int64(fs.Bsize)
	return int64(fs.Blocks) * bsize, int64(fs.Bavail) * bsize, true
}
