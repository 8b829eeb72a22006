package stream

import (
	"bufio"
	"io"
)

// Writer buffers output bytes and delivers them to the underlying sink on
// Flush. Writes are batched on purpose: the proxy must not produce
// one-byte network writes, and Flush is the explicit delivery boundary
// the relay uses to separate interactive traffic from buffered messages.
// A Writer spills to the sink on its own only when its buffer fills.
type Writer interface {
	io.Writer
	Flush() error
}

// NewWriter returns a Writer buffering writes to w.
func NewWriter(w io.Writer) Writer {
	return bufio.NewWriter(w)
}
