package concurrent

import (
	"sync"
	"testing"
)

func TestFreelistNewAllocatesWhenEmpty(t *testing.T) {
	allocs := 0
	fl := NewFreelist(func() int {
		allocs++
		return allocs
	})
	v := fl.New()
	if v != 1 {
		t.Fatalf("expected fresh allocation 1, got %d", v)
	}
	if allocs != 1 {
		t.Fatalf("expected exactly one allocation, got %d", allocs)
	}
}

func TestFreelistDeleteThenNewReuses(t *testing.T) {
	allocs := 0
	fl := NewFreelist(func() int {
		allocs++
		return allocs
	})
	v := fl.New()
	fl.Delete(v)
	got := fl.New()
	if got != v {
		t.Fatalf("expected reused value %d, got %d", v, got)
	}
	if allocs != 1 {
		t.Fatalf("expected no new allocation on reuse, got %d allocations", allocs)
	}
}

func TestFreelistLIFOOrder(t *testing.T) {
	fl := NewFreelist(func() int { return -1 })
	fl.Delete(1)
	fl.Delete(2)
	fl.Delete(3)
	if v := fl.New(); v != 3 {
		t.Fatalf("expected LIFO pop 3, got %d", v)
	}
	if v := fl.New(); v != 2 {
		t.Fatalf("expected LIFO pop 2, got %d", v)
	}
	if v := fl.New(); v != 1 {
		t.Fatalf("expected LIFO pop 1, got %d", v)
	}
}

// TestFreelistNoDoubleFreeUnderConcurrency exercises invariant 2 from spec 8:
// every distinct block appears in either the freelist or the caller's hands,
// never both, when callers never alias a value they have freed.
func TestFreelistNoDoubleFreeUnderConcurrency(t *testing.T) {
	const n = 500
	fl := NewBlockFreelist(16)
	seen := make(chan *Block, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := fl.New()
			seen <- b
			fl.Delete(b)
		}()
	}
	wg.Wait()
	close(seen)

	count := map[*Block]int{}
	for b := range seen {
		count[b]++
	}
	// Every block handed to a caller must have been delivered exactly once
	// per hand-out (no two goroutines observing the same New() result
	// without an intervening Delete), though the same pointer may recur
	// across non-overlapping hand-outs.
	total := 0
	for _, c := range count {
		total += c
	}
	if total != n {
		t.Fatalf("expected %d hand-outs recorded, got %d", n, total)
	}
}

func TestFreelistDeleteChainPreservesOrderAndCount(t *testing.T) {
	fl := NewFreelist(func() int { return -1 })
	head, tail := ChainOf([]int{1, 2, 3})
	fl.DeleteChain(head, tail)
	var got []int
	for i := 0; i < 3; i++ {
		got = append(got, fl.New())
	}
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain order mismatch: got %v, want %v", got, want)
		}
	}
}
