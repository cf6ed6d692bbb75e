package godf

import (
	"math/rand"
	"testing"
	"unsafe"
)

func TestMemoryPoolAllocate(t *testing.T) {
	mp := NewMemoryPool()

	for _, size := range []int{8, 100, 4096, 1 << 20} {
		ptr, err := mp.Allocate(size)
		if err != nil {
			t.Fatalf("Allocate(%d) failed: %v", size, err)
		}
		if ptr.Size() != size {
			t.Errorf("size %d, want %d", ptr.Size(), size)
		}
		if uintptr(unsafe.Pointer(&ptr.Byte()[0]))%MemoryAlignment != 0 {
			t.Errorf("allocation of %d bytes not %d-aligned", size, MemoryAlignment)
		}

		// Write through the view, read back.
		b := ptr.Byte()
		b[0], b[size-1] = 0xAB, 0xCD
		if b[0] != 0xAB || b[size-1] != 0xCD {
			t.Error("memory not writable")
		}
		if err := mp.Free(ptr); err != nil {
			t.Fatalf("Free failed: %v", err)
		}
	}
}

func TestMemoryPoolReuse(t *testing.T) {
	mp := NewMemoryPool()

	ptr, err := mp.Allocate(1024)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	first := uintptr(unsafe.Pointer(&ptr.Byte()[0]))
	if err := mp.Free(ptr); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	// A smaller request must come out of the free list.
	ptr2, err := mp.Allocate(512)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if uintptr(unsafe.Pointer(&ptr2.Byte()[0])) != first {
		t.Error("free block not reused")
	}
}

func TestMemoryPoolErrors(t *testing.T) {
	mp := NewMemoryPool()

	if _, err := mp.Allocate(0); err != ErrInvalidSize {
		t.Errorf("Allocate(0): expected ErrInvalidSize, got %v", err)
	}
	if _, err := mp.Allocate(-8); err != ErrInvalidSize {
		t.Errorf("Allocate(-8): expected ErrInvalidSize, got %v", err)
	}

	ptr, _ := mp.Allocate(64)
	if err := mp.Free(ptr); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := mp.Free(ptr); err != ErrDoubleFree {
		t.Errorf("expected ErrDoubleFree, got %v", err)
	}

	// Freeing the zero pointer is a no-op.
	if err := mp.Free(DevicePtr{}); err != nil {
		t.Errorf("Free(nil) returned %v", err)
	}
}

func TestMemoryPoolStats(t *testing.T) {
	mp := NewMemoryPool()

	p1, _ := mp.Allocate(1000)
	p2, _ := mp.Allocate(2000)
	allocated, peak := mp.GetStats()
	if allocated <= 0 || peak < allocated {
		t.Errorf("stats inconsistent: allocated=%d peak=%d", allocated, peak)
	}

	mp.Free(p1)
	mp.Free(p2)
	allocated2, peak2 := mp.GetStats()
	if allocated2 != 0 {
		t.Errorf("allocated=%d after freeing everything", allocated2)
	}
	if peak2 != peak {
		t.Errorf("peak moved from %d to %d on free", peak, peak2)
	}
}

func TestMemcpyDirections(t *testing.T) {
	const n = 500
	rng := rand.New(rand.NewSource(60))
	b := newCPUBackend(1)

	hSrc := randSlice(rng, n)
	hDst := make([]float64, n)

	dSrc, err := b.Alloc(0, n*8)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	dDst, err := b.Alloc(0, n*8)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	defer b.Free(0, dSrc)
	defer b.Free(0, dDst)

	if err := b.Memcpy(dSrc, hSrc, n*8, MemcpyHostToDevice); err != nil {
		t.Fatalf("H2D failed: %v", err)
	}
	if err := b.Memcpy(dDst, dSrc, n*8, MemcpyDeviceToDevice); err != nil {
		t.Fatalf("D2D failed: %v", err)
	}
	if err := b.Memcpy(hDst, dDst, n*8, MemcpyDeviceToHost); err != nil {
		t.Fatalf("D2H failed: %v", err)
	}
	for i := range hSrc {
		if hSrc[i] != hDst[i] {
			t.Fatalf("round trip broke element %d: %g vs %g", i, hDst[i], hSrc[i])
		}
	}

	if err := b.Memcpy("bogus", hSrc, 8, MemcpyHostToHost); !IsInvalidArgError(err) {
		t.Errorf("expected invalid-arg error for bad operand, got %v", err)
	}
}

func TestDevicePtrViews(t *testing.T) {
	var nilPtr DevicePtr
	if !nilPtr.IsNil() {
		t.Error("zero DevicePtr not nil")
	}
	if nilPtr.Float64() != nil || nilPtr.Int32() != nil || nilPtr.Byte() != nil {
		t.Error("nil pointer produced a view")
	}

	mp := NewMemoryPool()
	ptr, _ := mp.Allocate(64)
	if got := len(ptr.Float64()); got != 8 {
		t.Errorf("Float64 view has %d elements, want 8", got)
	}
	if got := len(ptr.Int32()); got != 16 {
		t.Errorf("Int32 view has %d elements, want 16", got)
	}
	if got := len(ptr.Byte()); got != 64 {
		t.Errorf("Byte view has %d elements, want 64", got)
	}
}
