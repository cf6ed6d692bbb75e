package godf

import (
	"fmt"
	"runtime"
)

// Backend abstracts the accelerator runtime: allocation, transfer, and
// stream creation. Two implementations share this contract: the pooled
// CPU backend below (always available) and any accelerator backend a
// build supplies. Manager code never touches device memory except
// through a Backend.
type Backend interface {
	// Name returns the backend name ("cpu", "cuda", ...)
	Name() string

	// NumDevices returns the number of devices this backend drives
	NumDevices() int

	// Properties returns the properties of one device
	Properties(device int) (DeviceProps, error)

	// Alloc allocates size bytes of device memory on the given device
	Alloc(device int, size int) (DevicePtr, error)

	// Free releases device memory allocated by Alloc
	Free(device int, ptr DevicePtr) error

	// Memcpy copies size bytes between host and device memory.
	// Supported operand types are DevicePtr, []byte, []float64 and
	// []int32.
	Memcpy(dst, src interface{}, size int, kind MemcpyKind) error

	// NewStream creates an ordered execution stream on the given device
	NewStream(device int) *Stream
}

// DeviceProps describes one device
type DeviceProps struct {
	ID       int    `json:"id"`
	Backend  string `json:"backend"`
	Name     string `json:"name"`
	TotalMem uint64 `json:"total_mem"`
	NumCores int    `json:"num_cores"`
}

// cpuBackend executes on the host CPU. It presents a configurable number
// of virtual devices so the multi-device partitioning behaves identically
// with and without accelerators; each virtual device owns its own memory
// pool and stream namespace.
type cpuBackend struct {
	pools []*MemoryPool
}

// newCPUBackend creates a CPU backend with the given number of virtual
// devices (minimum one).
func newCPUBackend(numDevices int) *cpuBackend {
	if numDevices < 1 {
		numDevices = 1
	}
	pools := make([]*MemoryPool, numDevices)
	for i := range pools {
		pools[i] = NewMemoryPool()
	}
	return &cpuBackend{pools: pools}
}

func (b *cpuBackend) Name() string {
	return "cpu"
}

func (b *cpuBackend) NumDevices() int {
	return len(b.pools)
}

func (b *cpuBackend) Properties(device int) (DeviceProps, error) {
	if device < 0 || device >= len(b.pools) {
		return DeviceProps{}, NewDeviceError("Properties", device)
	}
	return DeviceProps{
		ID:       device,
		Backend:  b.Name(),
		Name:     fmt.Sprintf("CPU (virtual device %d)", device),
		TotalMem: totalSystemMemory(),
		NumCores: runtime.NumCPU(),
	}, nil
}

func (b *cpuBackend) Alloc(device int, size int) (DevicePtr, error) {
	if device < 0 || device >= len(b.pools) {
		return DevicePtr{}, NewDeviceError("Alloc", device)
	}
	return b.pools[device].Allocate(size)
}

func (b *cpuBackend) Free(device int, ptr DevicePtr) error {
	if device < 0 || device >= len(b.pools) {
		return NewDeviceError("Free", device)
	}
	return b.pools[device].Free(ptr)
}

func (b *cpuBackend) NewStream(device int) *Stream {
	return newStream(device)
}
