//go:build linux

package godf

import (
	"golang.org/x/sys/unix"
)

// totalSystemMemory returns total system memory in bytes
func totalSystemMemory() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return defaultSystemMemory
	}
	return uint64(si.Totalram) * uint64(si.Unit)
}
