package godf

import (
	"testing"
)

// Buffers grow on demand and never shrink.
func TestBufferGrowOnly(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	dd := m.devices[0]

	if _, err := dd.EnsureCapacity(BufTmp1, 1000); err != nil {
		t.Fatalf("initial sizing failed: %v", err)
	}
	if got := dd.BufferLen(BufTmp1); got != 1000 {
		t.Fatalf("capacity %d, want 1000", got)
	}

	// A smaller request keeps the existing allocation.
	p1, _ := dd.EnsureCapacity(BufTmp1, 10)
	if dd.BufferLen(BufTmp1) != 1000 {
		t.Errorf("buffer shrank to %d", dd.BufferLen(BufTmp1))
	}
	p2, _ := dd.EnsureCapacity(BufTmp1, 1000)
	if p1.Float64()[0] != p2.Float64()[0] {
		// same region: writing through one must be visible through the other
		p1.Float64()[0] = 7
		if p2.Float64()[0] != 7 {
			t.Error("smaller request moved the buffer")
		}
	}

	// A larger request regrows.
	if _, err := dd.EnsureCapacity(BufTmp1, 5000); err != nil {
		t.Fatalf("growth failed: %v", err)
	}
	if got := dd.BufferLen(BufTmp1); got != 5000 {
		t.Errorf("capacity %d after growth, want 5000", got)
	}
}

func TestBufferValidation(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	dd := m.devices[0]

	if _, err := dd.EnsureCapacity(BufferName(99), 10); !IsInvalidArgError(err) {
		t.Errorf("unknown buffer: expected invalid-arg error, got %v", err)
	}
	if _, err := dd.EnsureCapacity(BufTmp1, 0); !IsInvalidArgError(err) {
		t.Errorf("zero size: expected invalid-arg error, got %v", err)
	}
	if _, err := dd.EnsureCapacity(BufTmp1, -5); !IsInvalidArgError(err) {
		t.Errorf("negative size: expected invalid-arg error, got %v", err)
	}
	if got := dd.BufferLen(BufferName(99)); got != 0 {
		t.Errorf("unknown buffer reports capacity %d", got)
	}
}

func TestBufferNames(t *testing.T) {
	named := map[BufferName]string{
		BufRho:    "rho",
		BufVJ:     "vj",
		BufVK:     "vk",
		BufDMTril: "dmtril",
		BufH2eff:  "h2eff",
	}
	for b, want := range named {
		if got := b.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(b), got, want)
		}
	}
	if got := BufferName(42).String(); got != "buffer(42)" {
		t.Errorf("out-of-range name = %q", got)
	}
}

// zero runs on the stream; synchronize before reading.
func TestDeviceZero(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	dd := m.devices[0]

	ptr, err := dd.EnsureCapacity(BufTmp2, 64)
	if err != nil {
		t.Fatalf("sizing failed: %v", err)
	}
	v := ptr.Float64()[:64]
	for i := range v {
		v[i] = float64(i + 1)
	}
	dd.zero(ptr, 64)
	dd.stream.Synchronize()
	for i, x := range v {
		if x != 0 {
			t.Fatalf("element %d not zeroed: %g", i, x)
		}
	}
}

// flakyBackend fails a set number of Alloc calls and then delegates.
type flakyBackend struct {
	Backend
	failAllocs int
}

func (b *flakyBackend) Alloc(device, size int) (DevicePtr, error) {
	if b.failAllocs > 0 {
		b.failAllocs--
		return DevicePtr{}, NewMemoryError("Alloc", "injected allocation failure", nil)
	}
	return b.Backend.Alloc(device, size)
}

// A failed grow must not leave the entry describing freed memory.
func TestBufferGrowFailure(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	dd := m.devices[0]

	if _, err := dd.EnsureCapacity(BufTmp1, 100); err != nil {
		t.Fatalf("initial sizing failed: %v", err)
	}
	dd.backend = &flakyBackend{Backend: dd.backend, failAllocs: 1}

	if _, err := dd.EnsureCapacity(BufTmp1, 200); !IsMemoryError(err) {
		t.Fatalf("grow with failing allocator: err = %v, want memory error", err)
	}
	if got := dd.BufferLen(BufTmp1); got != 0 {
		t.Fatalf("capacity %d after failed grow, want 0", got)
	}

	// The next request must come from a live allocation, not the freed
	// block the pool may hand to someone else.
	p, err := dd.EnsureCapacity(BufTmp1, 100)
	if err != nil {
		t.Fatalf("sizing after failed grow: %v", err)
	}
	fresh, err := dd.backend.Alloc(dd.id, 100*8)
	if err != nil {
		t.Fatalf("fresh allocation failed: %v", err)
	}
	p.Float64()[0] = 1
	fresh.Float64()[0] = 2
	if p.Float64()[0] != 1 {
		t.Error("buffer aliases a fresh allocation")
	}
}
