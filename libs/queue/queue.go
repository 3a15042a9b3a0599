// Package queue provides the unbounded FIFO used to connect pipeline stages.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// Queue is an unbounded multiple-producer, multiple-consumer FIFO. Values
// sent to the queue are buffered by a pump goroutine until a consumer reads
// them from Out, so a slow consumer costs memory, never a blocked producer.
//
// The pump exits when the context passed to New is canceled (buffered
// values are discarded) or when the queue is closed and fully drained.
type Queue[T any] struct {
	input  chan T
	output chan T
	done   <-chan struct{}

	mtx    sync.RWMutex
	closed bool

	pending int64 // atomic
}

// New creates a queue and starts its pump.
func New[T any](ctx context.Context) *Queue[T] {
	q := &Queue[T]{
		input:  make(chan T),
		output: make(chan T),
		done:   ctx.Done(),
	}

	go q.run()
	return q
}

// Send enqueues v. It only waits for the pump to take the value, which it
// always does promptly. Send returns false if the queue was closed or its
// context canceled, in which case v is discarded.
func (q *Queue[T]) Send(v T) bool {
	q.mtx.RLock()
	defer q.mtx.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.input <- v:
		return true
	case <-q.done:
		return false
	}
}

// Out returns the channel consumers receive from. It is closed once the
// queue is closed and every buffered value has been delivered, or when the
// queue's context is canceled.
func (q *Queue[T]) Out() <-chan T { return q.output }

// Close stops accepting new values. Values already sent are still delivered.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.input)
}

// Len returns the number of values buffered in the queue.
func (q *Queue[T]) Len() int {
	return int(atomic.LoadInt64(&q.pending))
}

func (q *Queue[T]) run() {
	defer close(q.output)

	var (
		buf   []T
		input = q.input
	)

	for {
		var (
			output chan<- T
			next   T
		)
		if len(buf) > 0 {
			output = q.output
			next = buf[0]
		} else if input == nil {
			// closed and drained
			return
		}

		select {
		case <-q.done:
			return

		case v, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			buf = append(buf, v)
			atomic.AddInt64(&q.pending, 1)

		case output <- next:
			var zero T
			buf[0] = zero
			buf = buf[1:]
			atomic.AddInt64(&q.pending, -1)
		}
	}
}
