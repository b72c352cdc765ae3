package session

import (
	"context"
	"sync"
	"time"
)

// chunkQueue is the bounded, ordered buffer of audio chunks awaiting
// dispatch. One producer (the gateway handler) pushes, one consumer (the
// session's dispatcher worker) pops, so FIFO channel order is dispatch order.
type chunkQueue struct {
	ch   chan AudioChunk
	wait time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newChunkQueue(size int, wait time.Duration) *chunkQueue {
	if size <= 0 {
		size = 100
	}
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &chunkQueue{
		ch:   make(chan AudioChunk, size),
		wait: wait,
		done: make(chan struct{}),
	}
}

// push enqueues a chunk, waiting up to the bounded backpressure window when
// the queue is full. Returns ErrQueueFull on timeout and
// ErrInvalidSessionState once the queue is closed.
func (q *chunkQueue) push(chunk AudioChunk) error {
	select {
	case <-q.done:
		return ErrInvalidSessionState
	default:
	}

	select {
	case q.ch <- chunk:
		return nil
	default:
	}

	timer := time.NewTimer(q.wait)
	defer timer.Stop()
	select {
	case q.ch <- chunk:
		return nil
	case <-q.done:
		return ErrInvalidSessionState
	case <-timer.C:
		return ErrQueueFull
	}
}

// pop dequeues the oldest chunk, blocking until one arrives, the queue is
// closed and drained (ok=false), or ctx is cancelled. Chunks already buffered
// when the queue closes are still delivered.
func (q *chunkQueue) pop(ctx context.Context) (AudioChunk, bool, error) {
	select {
	case chunk := <-q.ch:
		return chunk, true, nil
	default:
	}

	select {
	case chunk := <-q.ch:
		return chunk, true, nil
	case <-q.done:
		select {
		case chunk := <-q.ch:
			return chunk, true, nil
		default:
			return AudioChunk{}, false, nil
		}
	case <-ctx.Done():
		return AudioChunk{}, false, ctx.Err()
	}
}

// draining reports whether the queue has been closed.
func (q *chunkQueue) draining() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// close stops accepting new chunks. Idempotent.
func (q *chunkQueue) close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *chunkQueue) depth() int {
	return len(q.ch)
}
