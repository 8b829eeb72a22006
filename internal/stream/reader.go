// Package stream provides the buffered stream primitives the proxy pumps
// are built on: a pull-based reader exposing an explicit byte window, and
// a push-based writer with an explicit flush boundary.
package stream

import "io"

// defaultBufSize is the initial window capacity. The window grows beyond
// this when a caller asks Extend to buffer more than fits.
const defaultBufSize = 4096

// Reader buffers bytes pulled from an underlying source and exposes them
// as a window of not-yet-consumed bytes. Callers grow the window with
// Extend and commit consumed bytes with Release; released bytes are never
// visible again.
type Reader struct {
	src   io.Reader
	buf   []byte
	start int // window begins at buf[start]
	end   int // window ends at buf[end]
}

// NewReader returns a Reader pulling from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, defaultBufSize)}
}

// Window returns the current unconsumed bytes. The slice is only valid
// until the next call to Extend or Release.
func (r *Reader) Window() []byte {
	return r.buf[r.start:r.end]
}

// Extend pulls more bytes from the source into the window, blocking until
// at least min bytes were added (any positive amount when min is 0). It
// returns the number of bytes added; 0 means end-of-stream. Read errors
// are treated as end-of-stream: the peer closing the connection and the
// connection failing look the same to the consumer.
func (r *Reader) Extend(min int) int {
	if min < 1 {
		min = 1
	}
	added := 0
	for added < min {
		if r.end == len(r.buf) {
			r.grow()
		}
		n, err := r.src.Read(r.buf[r.end:])
		r.end += n
		added += n
		if err != nil {
			break
		}
	}
	return added
}

// Release commits n consumed bytes, sliding the window forward. It panics
// if n exceeds the window length, since that is always a caller bug.
func (r *Reader) Release(n int) {
	if n < 0 || n > r.end-r.start {
		panic("stream: Release beyond window")
	}
	r.start += n
	if r.start == r.end {
		r.start, r.end = 0, 0
	}
}

// grow makes room at the tail of buf, first by compacting released bytes
// to the front, then by doubling the buffer.
func (r *Reader) grow() {
	if r.start > 0 {
		copy(r.buf, r.buf[r.start:r.end])
		r.end -= r.start
		r.start = 0
		return
	}
	next := make([]byte, 2*len(r.buf))
	copy(next, r.buf[:r.end])
	r.buf = next
}
