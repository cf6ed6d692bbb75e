package godf

import (
	"sync"
	"sync/atomic"
)

var streamSeq int32

// Stream represents an ordered sequence of operations on one device.
// Operations submitted to a stream execute in submission order; streams
// on different devices execute independently. A Stream is driven by a
// single worker goroutine, matching the one-logical-submission-thread
// model of the device layer.
type Stream struct {
	id     int
	device int
	tasks  chan func()
	done   chan struct{}
	wg     sync.WaitGroup
}

func newStream(device int) *Stream {
	s := &Stream{
		id:     int(atomic.AddInt32(&streamSeq, 1)),
		device: device,
		tasks:  make(chan func(), 1024),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s
}

// worker processes tasks for a stream
func (s *Stream) worker() {
	for task := range s.tasks {
		task()
		s.wg.Done()
	}
	close(s.done)
}

// Submit adds a task to the stream
func (s *Stream) Submit(task func()) {
	s.wg.Add(1)
	s.tasks <- task
}

// Synchronize waits for all submitted tasks to complete
func (s *Stream) Synchronize() {
	s.wg.Wait()
}

// Destroy drains the stream and stops its worker. The stream must not
// be used afterwards.
func (s *Stream) Destroy() {
	s.wg.Wait()
	close(s.tasks)
	<-s.done
}

// Device returns the id of the device this stream executes on
func (s *Stream) Device() int {
	return s.device
}
