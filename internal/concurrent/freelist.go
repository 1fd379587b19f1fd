package concurrent

import "sync/atomic"

// node links a freed value into the freelist's LIFO chain.
type node[T any] struct {
	value T
	next  *node[T]
}

// Freelist is an unbounded, lock-free LIFO stack of reusable values, per spec
// 4.3. The zero value is not usable; construct with NewFreelist.
//
// Grounded on core/connection_pool.go's pool-as-stack discipline (push/pop a
// free slot rather than allocate), generalized here from a mutex-guarded
// slice to a CAS loop to satisfy the lock-free requirement spec 4.3 names
// for this component.
type Freelist[T any] struct {
	head atomic.Pointer[node[T]]
	new  func() T
}

// NewFreelist constructs an empty Freelist. newFn is called by New whenever
// the freelist has no reusable slot; it must return a fresh, usable T.
func NewFreelist[T any](newFn func() T) *Freelist[T] {
	return &Freelist[T]{new: newFn}
}

// New returns a popped, previously-freed value if one is available, or a
// freshly allocated value otherwise.
func (f *Freelist[T]) New() T {
	for {
		old := f.head.Load()
		if old == nil {
			return f.new()
		}
		if f.head.CompareAndSwap(old, old.next) {
			old.next = nil
			return old.value
		}
	}
}

// Delete pushes value onto the head of the freelist, retrying the CAS loop
// until it succeeds.
func (f *Freelist[T]) Delete(value T) {
	n := &node[T]{value: value}
	for {
		old := f.head.Load()
		n.next = old
		if f.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// DeleteChain splices an entire caller-built chain of nodes onto the
// freelist head in one CAS, so concurrent DeleteChain calls from multiple
// goroutines combine into a single list that preserves each chain's internal
// order and contains every node exactly once. head is the first node of the
// chain; tail must be its last node (the one whose next pointer will be
// spliced onto the freelist's prior head).
func (f *Freelist[T]) DeleteChain(head, tail *node[T]) {
	for {
		old := f.head.Load()
		tail.next = old
		if f.head.CompareAndSwap(old, head) {
			return
		}
	}
}

// ChainOf builds a freelist-internal node chain from values, in order, for
// use with DeleteChain. It returns the chain's head and tail nodes.
func ChainOf[T any](values []T) (head, tail *node[T]) {
	for i := len(values) - 1; i >= 0; i-- {
		n := &node[T]{value: values[i], next: head}
		head = n
		if tail == nil {
			tail = n
		}
	}
	return head, tail
}
