package recorder

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestStreamQueue_order_per_stream(t *testing.T) {
	q := newStreamQueue()

	var mu sync.Mutex
	got := map[string][]int{}
	for i := 0; i < 50; i++ {
		for _, stream := range []string{"a", "b"} {
			i, stream := i, stream
			q.enqueue(stream, func() {
				if i%10 == 0 {
					time.Sleep(time.Millisecond)
				}
				mu.Lock()
				got[stream] = append(got[stream], i)
				mu.Unlock()
			})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	for _, stream := range []string{"a", "b"} {
		if len(got[stream]) != 50 {
			t.Fatalf("stream %s ran %d tasks, want 50", stream, len(got[stream]))
		}
		for i, v := range got[stream] {
			if v != i {
				t.Fatalf("stream %s ran task %d at position %d", stream, v, i)
			}
		}
	}
}

func TestStreamQueue_streams_independent(t *testing.T) {
	q := newStreamQueue()
	release := make(chan struct{})
	q.enqueue("slow", func() { <-release })

	ran := make(chan string, 1)
	q.enqueue("fast", func() { ran <- "fast" })

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("a blocked stream should not hold up another")
	}
	close(release)
	if err := q.wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStreamQueue_wait_timeout(t *testing.T) {
	q := newStreamQueue()
	release := make(chan struct{})
	q.enqueue("s", func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.wait(ctx); err == nil {
		t.Error("expected timeout while a task is running")
	}
	close(release)
	if err := q.wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The queue is reusable after it drains.
	done := make(chan struct{})
	q.enqueue("s"+strconv.Itoa(1), func() { close(done) })
	<-done
}
