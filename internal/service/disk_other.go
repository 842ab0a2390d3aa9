//go:build !linux && !darwin

package service

func diskUsage(string) (total, free int64, ok bool) {
	return 0, 0, false
}
