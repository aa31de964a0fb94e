package coordinator

import (
	"sync"
)

// funcQueue is an unbounded FIFO of closures. push never blocks, so it may be
// called from inside the goroutine draining the queue.
type funcQueue struct {
	mx     sync.Mutex
	items  []func()
	signal chan struct{}
	closed bool
}

func newFuncQueue() *funcQueue {
	return &funcQueue{signal: make(chan struct{}, 1)}
}

func (q *funcQueue) push(fn func()) bool {
	q.mx.Lock()
	if q.closed {
		q.mx.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mx.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// drain returns all queued closures in push order.
func (q *funcQueue) drain() []func() {
	q.mx.Lock()
	items := q.items
	q.items = nil
	q.mx.Unlock()
	return items
}

func (q *funcQueue) close() {
	q.mx.Lock()
	q.closed = true
	q.items = nil
	q.mx.Unlock()
}

// run executes queued closures until done is closed.
func (q *funcQueue) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-q.signal:
			for _, fn := range q.drain() {
				fn()
			}
		}
	}
}
