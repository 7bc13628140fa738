// Package dispatch provides a serial execution queue: submitted functions run
// one at a time, in submission order, on a single worker goroutine. It is the
// building block for the cache's serialized disk I/O context and for ordered
// asynchronous callback delivery.
package dispatch

import "sync"

// defaultBuffer bounds how many pending jobs a queue holds before Async
// applies backpressure to submitters.
const defaultBuffer = 128

// Queue runs submitted functions serially on one goroutine.
type Queue struct {
	mu     sync.RWMutex
	jobs   chan func()
	closed bool
	done   sync.WaitGroup
}

// New creates a queue and starts its worker goroutine.
func New() *Queue {
	q := &Queue{jobs: make(chan func(), defaultBuffer)}
	q.done.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.done.Done()
	for fn := range q.jobs {
		fn()
	}
}

// Async submits fn for execution after all previously submitted functions.
// It never runs fn on the caller's goroutine while the queue is open. After
// Close, fn still runs, but on its own goroutine with no ordering guarantee.
func (q *Queue) Async(fn func()) {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		go fn()
		return
	}
	q.jobs <- fn
	q.mu.RUnlock()
}

// Sync submits fn and blocks until it has run. Calling Sync from inside a
// queued function deadlocks, as with any serial executor.
func (q *Queue) Sync(fn func()) {
	ch := make(chan struct{})
	q.Async(func() {
		defer close(ch)
		fn()
	})
	<-ch
}

// Close drains pending jobs and stops the worker. It is safe to call once;
// submissions after Close degrade to unordered goroutines.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.done.Wait()
}
