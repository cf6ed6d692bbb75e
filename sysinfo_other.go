//go:build !linux

package godf

// totalSystemMemory returns total system memory in bytes
func totalSystemMemory() uint64 {
	return defaultSystemMemory
}
