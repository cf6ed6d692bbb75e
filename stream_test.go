package godf

import (
	"sync/atomic"
	"testing"
)

// Tasks on one stream run in submission order.
func TestStreamOrdering(t *testing.T) {
	s := newStream(0)
	defer s.Destroy()

	const n = 1000
	var order []int
	for i := 0; i < n; i++ {
		i := i
		s.Submit(func() { order = append(order, i) })
	}
	s.Synchronize()

	if len(order) != n {
		t.Fatalf("ran %d tasks, want %d", len(order), n)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

// Synchronize returns only after everything submitted before it is done.
func TestStreamSynchronize(t *testing.T) {
	s := newStream(0)
	defer s.Destroy()

	var done atomic.Int64
	for i := 0; i < 100; i++ {
		s.Submit(func() { done.Add(1) })
	}
	s.Synchronize()
	if got := done.Load(); got != 100 {
		t.Errorf("%d tasks complete after Synchronize, want 100", got)
	}

	// An idle stream synchronizes immediately.
	s.Synchronize()
}

func TestStreamDevice(t *testing.T) {
	s := newStream(3)
	defer s.Destroy()
	if s.Device() != 3 {
		t.Errorf("Device() = %d, want 3", s.Device())
	}
}

// Destroy drains pending work before tearing the stream down.
func TestStreamDestroyDrains(t *testing.T) {
	s := newStream(0)
	var done atomic.Int64
	for i := 0; i < 50; i++ {
		s.Submit(func() { done.Add(1) })
	}
	s.Destroy()
	if got := done.Load(); got != 50 {
		t.Errorf("%d tasks complete after Destroy, want 50", got)
	}
}
