package concurrent

// DefaultBlockCapacity is the production block size used by Buffer when no
// override is supplied, per spec 3 ("capacity is a compile-time constant
// (production: 64 KiB)").
const DefaultBlockCapacity = 64 * 1024

// Block is a fixed-capacity byte array with a next link, used to build
// singly-linked chains handed back to a Freelist, per spec 3.
type Block struct {
	data []byte
	next *Block
}

func newBlock(capacity int) *Block {
	return &Block{data: make([]byte, capacity)}
}

// ScatterEntry is one contiguous span of a Buffer's underlying Block data,
// returned by Reserve/ReserveAtLeast/Peek so callers can do scatter-gather
// I/O without requiring a single contiguous allocation.
type ScatterEntry struct {
	Data []byte
}

// Len returns the total byte length across a scatter list.
func ScatterLen(entries []ScatterEntry) int {
	n := 0
	for _, e := range entries {
		n += len(e.Data)
	}
	return n
}

// Buffer is an ordered chain of Blocks acting as a producer-consumer sliding
// window, per spec 3/4.3. The zero value is not usable; construct with
// NewBuffer.
//
// Not safe for concurrent use: per spec 5 ("Shared resource policy"), a
// Buffer is owned by exactly one goroutine at a time, typically the request
// handler accumulating a body.
type Buffer struct {
	freelist *Freelist[*Block]
	blockCap int

	blocks []*Block

	headIdx, headOff int // position of the first unread byte
	tailIdx, tailOff int // position of the first uncommitted byte
}

// NewBuffer constructs an empty Buffer backed by freelist, whose blocks are
// blockCap bytes each.
func NewBuffer(freelist *Freelist[*Block], blockCap int) *Buffer {
	return &Buffer{freelist: freelist, blockCap: blockCap}
}

// NewBlockFreelist constructs a Freelist of *Block of the given per-block
// capacity, suitable for sharing across many Buffers.
func NewBlockFreelist(blockCap int) *Freelist[*Block] {
	return NewFreelist(func() *Block { return newBlock(blockCap) })
}

// availableAfterTail returns the number of uncommitted bytes currently
// allocated from the tail cursor to the end of the block chain.
func (b *Buffer) availableAfterTail() int {
	if len(b.blocks) == 0 {
		return 0
	}
	return (b.blockCap - b.tailOff) + b.blockCap*(len(b.blocks)-1-b.tailIdx)
}

// growTailTo appends freelist-sourced blocks until availableAfterTail() >= n.
func (b *Buffer) growTailTo(n int) {
	for b.availableAfterTail() < n {
		nb := b.freelist.New()
		nb.next = nil
		if len(b.blocks) > 0 {
			b.blocks[len(b.blocks)-1].next = nb
		}
		b.blocks = append(b.blocks, nb)
	}
}

// Reserve grows the tail chain until at least n uncommitted bytes are
// available and returns a scatter list covering exactly the first n bytes
// of that space, per spec 4.3.
func (b *Buffer) Reserve(n int) []ScatterEntry {
	if n <= 0 {
		return nil
	}
	b.growTailTo(n)

	var out []ScatterEntry
	idx, off := b.tailIdx, b.tailOff
	remain := n
	for remain > 0 {
		take := b.blockCap - off
		if take > remain {
			take = remain
		}
		out = append(out, ScatterEntry{Data: b.blocks[idx].data[off : off+take]})
		remain -= take
		idx++
		off = 0
	}
	return out
}

// ReserveAtLeast returns whole blocks only: the returned length is always a
// multiple of the block capacity and at least n, per spec 4.3. A partial tail
// block's remaining space is not reused by this call, so every returned
// entry starts at a fresh block boundary.
func (b *Buffer) ReserveAtLeast(n int) []ScatterEntry {
	if n <= 0 {
		return nil
	}
	// Skip any partial space in the current tail block: reservation starts
	// at the next full block boundary.
	startIdx := b.tailIdx
	if b.tailOff != 0 {
		startIdx++
	}
	blocksNeeded := (n + b.blockCap - 1) / b.blockCap
	for len(b.blocks) < startIdx+blocksNeeded {
		nb := b.freelist.New()
		nb.next = nil
		if len(b.blocks) > 0 {
			b.blocks[len(b.blocks)-1].next = nb
		}
		b.blocks = append(b.blocks, nb)
	}
	out := make([]ScatterEntry, 0, blocksNeeded)
	for i := 0; i < blocksNeeded; i++ {
		out = append(out, ScatterEntry{Data: b.blocks[startIdx+i].data})
	}
	return out
}

// Commit advances the tail cursor by n bytes. n must not exceed the
// outstanding reservation; the contract is caller-enforced per spec 4.3.
func (b *Buffer) Commit(n int) {
	remain := n
	for remain > 0 {
		take := b.blockCap - b.tailOff
		if take > remain {
			take = remain
		}
		b.tailOff += take
		remain -= take
		if b.tailOff == b.blockCap {
			b.tailIdx++
			b.tailOff = 0
		}
	}
}

// DataSize returns tail - head: the number of committed, undrained bytes.
func (b *Buffer) DataSize() int {
	if len(b.blocks) == 0 {
		return 0
	}
	return (b.tailIdx-b.headIdx)*b.blockCap + b.tailOff - b.headOff
}

// Peek returns the scatter list covering all currently committed bytes
// [head, tail), per spec 4.3.
func (b *Buffer) Peek() []ScatterEntry {
	if len(b.blocks) == 0 {
		return nil
	}
	if b.headIdx == b.tailIdx {
		return []ScatterEntry{{Data: b.blocks[b.headIdx].data[b.headOff:b.tailOff]}}
	}
	out := []ScatterEntry{{Data: b.blocks[b.headIdx].data[b.headOff:b.blockCap]}}
	for i := b.headIdx + 1; i < b.tailIdx; i++ {
		out = append(out, ScatterEntry{Data: b.blocks[i].data[:b.blockCap]})
	}
	out = append(out, ScatterEntry{Data: b.blocks[b.tailIdx].data[:b.tailOff]})
	return out
}

// Drain advances the head cursor by n bytes, returning every Block now fully
// below head to the free-list, per spec 4.3.
func (b *Buffer) Drain(n int) {
	remain := n
	for remain > 0 {
		take := b.blockCap - b.headOff
		if take > remain {
			take = remain
		}
		b.headOff += take
		remain -= take
		if b.headOff == b.blockCap {
			b.headIdx++
			b.headOff = 0
		}
	}

	if b.headIdx == 0 {
		return
	}
	drained := b.blocks[:b.headIdx]
	if len(drained) == 1 {
		b.freelist.Delete(drained[0])
	} else if len(drained) > 1 {
		head, tail := ChainOf(drained)
		b.freelist.DeleteChain(head, tail)
	}
	b.blocks = append([]*Block(nil), b.blocks[b.headIdx:]...)
	b.tailIdx -= b.headIdx
	b.headIdx = 0
}
