package godf

import (
	"fmt"
)

// BufferName names one of the per-device scratch buffers. Buffers grow
// on demand and are never shrunk, so repeated calls of similar size pay
// no allocation churn.
type BufferName int

const (
	BufRho    BufferName = iota // density residual (nset x naux)
	BufVJ                       // Coulomb accumulator, triangular packed
	BufVK                       // exchange accumulator, dense
	BufTmp1                     // generic temporary
	BufTmp2                     // generic temporary
	BufTmp3                     // generic temporary
	BufDMS                      // dense density-matrix staging
	BufDMTril                   // triangular-packed density staging
	BufERI                      // integral-block staging (cache disabled path)
	BufMO                       // MO-coefficient staging
	BufUCAS                     // active-space rotation staging
	BufUMat                     // full rotation-matrix staging
	BufH2eff                    // transformed-integral staging/accumulator
	numBuffers
)

// String returns the buffer name for diagnostics
func (b BufferName) String() string {
	names := [...]string{
		"rho", "vj", "vk", "tmp1", "tmp2", "tmp3",
		"dms", "dmtril", "eri", "mo", "ucas", "umat", "h2eff",
	}
	if int(b) < len(names) {
		return names[b]
	}
	return fmt.Sprintf("buffer(%d)", int(b))
}

type scratch struct {
	ptr   DevicePtr
	elems int // current capacity in float64 elements
}

// DeviceState holds everything one device owns: scratch buffers, the
// packing-table cache, the ERI block cache partition, the streaming
// context and the execution stream. All state is exclusively owned by
// its device; nothing here is shared across devices.
type DeviceState struct {
	id      int
	backend Backend
	stream  *Stream

	buffers [numBuffers]scratch
	pumap   *tableCache
	eri     *eriCache

	// streaming geometry set by InitStreaming
	jk *jkContext

	// transformed-integral resident operand (see h2eff.go)
	h2eff *h2effEntry

	// explicit staleness signal for the active source
	sourceChanged bool
}

func newDeviceState(id int, backend Backend, cfg Config, enabled *cacheToggle) *DeviceState {
	return &DeviceState{
		id:      id,
		backend: backend,
		stream:  backend.NewStream(id),
		pumap:   newTableCache(id, backend),
		eri:     newERICache(id, backend, cfg, enabled),
	}
}

// EnsureCapacity grows the named buffer to hold at least elems float64
// values and returns its device pointer. The buffer is never shrunk.
// Growing reallocates; previously written contents are not carried over.
// Callers must not request growth of a buffer whose prior contents are
// still in flight on the stream.
func (dd *DeviceState) EnsureCapacity(name BufferName, elems int) (DevicePtr, error) {
	if name < 0 || name >= numBuffers {
		return DevicePtr{}, NewInvalidArgError("EnsureCapacity",
			fmt.Sprintf("unknown buffer %d", int(name)))
	}
	if elems <= 0 {
		return DevicePtr{}, NewInvalidArgError("EnsureCapacity",
			fmt.Sprintf("buffer %s: size must be positive, got %d", name, elems))
	}

	s := &dd.buffers[name]
	if elems <= s.elems {
		return s.ptr, nil
	}

	if !s.ptr.IsNil() {
		old := s.ptr
		// The entry must not describe freed memory while the new
		// allocation is pending; a failed Alloc would otherwise leave a
		// stale pointer that later requests hand back.
		*s = scratch{}
		if err := dd.backend.Free(dd.id, old); err != nil {
			return DevicePtr{}, err
		}
	}
	ptr, err := dd.backend.Alloc(dd.id, elems*8)
	if err != nil {
		return DevicePtr{}, NewMemoryError("EnsureCapacity",
			fmt.Sprintf("buffer %s: cannot grow to %d elements on device %d",
				name, elems, dd.id), err)
	}
	s.ptr = ptr
	s.elems = elems
	return ptr, nil
}

// BufferLen returns the current capacity of the named buffer in float64
// elements (0 if never sized).
func (dd *DeviceState) BufferLen(name BufferName) int {
	if name < 0 || name >= numBuffers {
		return 0
	}
	return dd.buffers[name].elems
}

// zero schedules zero-fill of the first elems values of a device region
// on the stream.
func (dd *DeviceState) zero(ptr DevicePtr, elems int) {
	dd.stream.Submit(func() {
		v := ptr.Float64()[:elems]
		for i := range v {
			v[i] = 0
		}
	})
}

// free releases all device resources. Called from Manager.Close after
// the stream has drained.
func (dd *DeviceState) free() {
	for i := range dd.buffers {
		if !dd.buffers[i].ptr.IsNil() {
			_ = dd.backend.Free(dd.id, dd.buffers[i].ptr)
			dd.buffers[i] = scratch{}
		}
	}
	dd.pumap.free()
	dd.eri.free()
	if dd.h2eff != nil && !dd.h2eff.ptr.IsNil() {
		_ = dd.backend.Free(dd.id, dd.h2eff.ptr)
		dd.h2eff = nil
	}
}
