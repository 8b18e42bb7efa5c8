package recorder

import (
	"context"
	"sync"
)

// streamQueue runs tasks for the same stream one at a time, in the order they
// were queued. Tasks for different streams run concurrently.
type streamQueue struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

func newStreamQueue() *streamQueue {
	return &streamQueue{queues: make(map[string][]func())}
}

// enqueue schedules fn after every task already queued for stream.
func (q *streamQueue) enqueue(stream string, fn func()) {
	q.wg.Add(1)
	q.mu.Lock()
	pending, running := q.queues[stream]
	q.queues[stream] = append(pending, fn)
	q.mu.Unlock()
	if !running {
		go q.drain(stream)
	}
}

// drain owns stream until its queue is empty. The map entry exists exactly
// while a drain goroutine is running for it.
func (q *streamQueue) drain(stream string) {
	for {
		q.mu.Lock()
		pending := q.queues[stream]
		if len(pending) == 0 {
			delete(q.queues, stream)
			q.mu.Unlock()
			return
		}
		fn := pending[0]
		q.queues[stream] = pending[1:]
		q.mu.Unlock()

		fn()
		q.wg.Done()
	}
}

// wait blocks until every queued task has run or ctx is done.
func (q *streamQueue) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
