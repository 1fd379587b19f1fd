package concurrent

import "testing"

// TestBufferScatterAcrossBlocks64Byte is seed scenario S6 from spec 8: with a
// 64-byte block capacity, Reserve(65) must scatter across two blocks (64 +
// 1), and after Commit(64) and Drain(64) the first block is recycled and
// Peek reports a single zero-length entry.
func TestBufferScatterAcrossBlocks64Byte(t *testing.T) {
	fl := NewBlockFreelist(64)
	buf := NewBuffer(fl, 64)

	entries := buf.Reserve(65)
	if len(entries) != 2 {
		t.Fatalf("expected 2 scatter entries, got %d", len(entries))
	}
	if len(entries[0].Data) != 64 || len(entries[1].Data) != 1 {
		t.Fatalf("expected lengths [64 1], got [%d %d]", len(entries[0].Data), len(entries[1].Data))
	}

	buf.Commit(64)
	buf.Drain(64)

	peeked := buf.Peek()
	if len(peeked) != 1 {
		t.Fatalf("expected 1 entry after drain, got %d", len(peeked))
	}
	if len(peeked[0].Data) != 0 {
		t.Fatalf("expected zero-length entry, got length %d", len(peeked[0].Data))
	}
}

func TestBufferCommitPeekDrainRoundTrip(t *testing.T) {
	fl := NewBlockFreelist(8)
	buf := NewBuffer(fl, 8)

	payload := []byte("hello, scatter-gather buffer!")
	entries := buf.Reserve(len(payload))
	off := 0
	for _, e := range entries {
		off += copy(e.Data, payload[off:])
	}
	buf.Commit(len(payload))

	if got := buf.DataSize(); got != len(payload) {
		t.Fatalf("expected data size %d, got %d", len(payload), got)
	}

	peeked := buf.Peek()
	var gathered []byte
	for _, e := range peeked {
		gathered = append(gathered, e.Data...)
	}
	if string(gathered) != string(payload) {
		t.Fatalf("gathered bytes mismatch: got %q, want %q", gathered, payload)
	}

	buf.Drain(len(payload))
	if got := buf.DataSize(); got != 0 {
		t.Fatalf("expected data size 0 after full drain, got %d", got)
	}
}

// TestBufferInvariantCommitMinusDrainEqualsDataSize exercises invariant 1
// from spec 8 across a sequence of partial reserves/commits/drains.
func TestBufferInvariantCommitMinusDrainEqualsDataSize(t *testing.T) {
	fl := NewBlockFreelist(4)
	buf := NewBuffer(fl, 4)

	committed, drained := 0, 0
	steps := []struct {
		reserve, commit, drain int
	}{
		{reserve: 3, commit: 2, drain: 0},
		{reserve: 5, commit: 4, drain: 3},
		{reserve: 2, commit: 2, drain: 5},
	}
	for _, s := range steps {
		buf.Reserve(s.reserve)
		buf.Commit(s.commit)
		committed += s.commit
		buf.Drain(s.drain)
		drained += s.drain

		if got, want := buf.DataSize(), committed-drained; got != want {
			t.Fatalf("data size invariant violated: got %d, want %d (committed=%d drained=%d)",
				got, want, committed, drained)
		}
		peeked := ScatterLen(buf.Peek())
		if peeked != buf.DataSize() {
			t.Fatalf("Peek length %d does not match DataSize %d", peeked, buf.DataSize())
		}
	}
}

func TestReserveAtLeastReturnsWholeBlocks(t *testing.T) {
	fl := NewBlockFreelist(16)
	buf := NewBuffer(fl, 16)

	entries := buf.ReserveAtLeast(17)
	total := ScatterLen(entries)
	if total%16 != 0 {
		t.Fatalf("expected multiple of block capacity, got %d", total)
	}
	if total < 17 {
		t.Fatalf("expected at least 17 bytes, got %d", total)
	}
	for _, e := range entries {
		if len(e.Data) != 16 {
			t.Fatalf("expected whole-block entries of length 16, got %d", len(e.Data))
		}
	}
}
