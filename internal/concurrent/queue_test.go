package concurrent

import (
	"errors"
	"sync"
	"testing"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

func TestQueueCapacityZeroAlwaysFull(t *testing.T) {
	q := NewQueue[int](0)
	if err := q.TryEnqueue(1); !errors.Is(err, pbserrors.QueueFull) {
		t.Fatalf("expected QueueFull, got %v", err)
	}
}

func TestQueueFIFOSingleProducer(t *testing.T) {
	q := NewQueue[int](8)
	for i := 0; i < 5; i++ {
		if err := q.TryEnqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		v, err := q.TryDequeue()
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if v != i {
			t.Fatalf("expected FIFO order: got %d, want %d", v, i)
		}
	}
}

func TestQueueFullAndEmpty(t *testing.T) {
	q := NewQueue[int](2)
	if err := q.TryEnqueue(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.TryEnqueue(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.TryEnqueue(3); !errors.Is(err, pbserrors.QueueFull) {
		t.Fatalf("expected QueueFull, got %v", err)
	}
	if _, err := q.TryDequeue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.TryDequeue(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.TryDequeue(); !errors.Is(err, pbserrors.QueueEmpty) {
		t.Fatalf("expected QueueEmpty, got %v", err)
	}
}

func TestQueueConcurrentProducersConsumersNoLoss(t *testing.T) {
	const n = 2000
	q := NewQueue[int](n)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(start int) {
			defer wg.Done()
			for i := start; i < n; i += 4 {
				for q.TryEnqueue(i) != nil {
				}
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		v, err := q.TryDequeue()
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct values, got %d", n, len(seen))
	}
}
