package httpserver

import (
	"io"
	"net/http"

	"github.com/privacysandbox/pbs/internal/concurrent"
)

// sharedBlockFreelist backs every request's body-accumulation Buffer, so
// blocks are recycled across requests instead of allocated per request.
var sharedBlockFreelist = concurrent.NewBlockFreelist(concurrent.DefaultBlockCapacity)

// Body is an accumulated request body. Callers must call Close once they are
// done reading, which drains the underlying Buffer and returns its blocks to
// the shared free-list for reuse by later requests.
type Body struct {
	*scatterReader
	buf *concurrent.Buffer
}

// Close returns this body's blocks to the shared free-list. It must not be
// called until the caller has finished reading (e.g. the JSON decode has
// completed), since the blocks are recycled and may be reused by a
// concurrent request immediately after.
func (b *Body) Close() {
	b.buf.Drain(b.buf.DataSize())
}

// ReadBody accumulates r.Body into a scatter Buffer (spec section 4.3) so a
// large upload never requires one contiguous allocation, then returns a Body
// gathering the committed bytes in order for the caller's JSON decoder.
func ReadBody(r *http.Request) (*Body, error) {
	buf := concurrent.NewBuffer(sharedBlockFreelist, concurrent.DefaultBlockCapacity)

	const chunk = 32 * 1024
	for {
		scatter := buf.Reserve(chunk)
		committed, done, err := fillScatter(r.Body, scatter)
		buf.Commit(committed)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	return &Body{scatterReader: &scatterReader{entries: buf.Peek()}, buf: buf}, nil
}

// fillScatter reads from body into each span of scatter in turn (each span
// is already contiguous, being a slice of one of the Buffer's blocks), so
// the accumulated bytes land directly in the Buffer's backing storage.
// It reports how many bytes were committed and whether the body is
// exhausted.
func fillScatter(body io.Reader, scatter []concurrent.ScatterEntry) (committed int, done bool, err error) {
	for _, e := range scatter {
		n, rerr := io.ReadFull(body, e.Data)
		committed += n
		if rerr != nil {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return committed, true, nil
			}
			return committed, false, rerr
		}
	}
	return committed, false, nil
}

// scatterReader presents a scatter list as a single io.Reader without
// concatenating it up front.
type scatterReader struct {
	entries []concurrent.ScatterEntry
	idx     int
	off     int
}

func (s *scatterReader) Read(p []byte) (int, error) {
	for s.idx < len(s.entries) && s.off >= len(s.entries[s.idx].Data) {
		s.idx++
		s.off = 0
	}
	if s.idx >= len(s.entries) {
		return 0, io.EOF
	}
	n := copy(p, s.entries[s.idx].Data[s.off:])
	s.off += n
	return n, nil
}
