// Package rewrite implements the client-to-server relay engine. It forwards
// the NNTP command stream byte for byte, except that inside a POST message
// it rewrites the first Content-Type header line to inject a markup
// parameter ahead of the original value.
package rewrite

import (
	"bytes"
	"io"
	"log/slog"

	"nntp-markup-proxy/internal/metrics"
	"nntp-markup-proxy/internal/stream"
)

// rewrittenName replaces the matched header name; the rest of the original
// line, leading whitespace and value included, follows it unchanged.
const rewrittenName = "Content-Type: markup=markdown;"

type state int

const (
	awaitingCommand state = iota
	inHeaders
	inBody
)

// Rewriter relays one connection direction (client to upstream server),
// one logical line at a time. It owns its reader and writer for the
// lifetime of the connection; there is no terminal state, the machine
// loops until the client stream ends.
type Rewriter struct {
	r       *stream.Reader
	w       stream.Writer
	logger  *slog.Logger
	metrics *metrics.Metrics

	state state
}

// New creates a Rewriter relaying from r to w.
// The metrics parameter is optional; pass nil to disable metrics recording.
func New(r *stream.Reader, w stream.Writer, logger *slog.Logger, m *metrics.Metrics) *Rewriter {
	return &Rewriter{
		r:       r,
		w:       w,
		logger:  logger.With("component", "rewriter"),
		metrics: m,
	}
}

// Run relays lines until the client stream ends or a write fails. A clean
// end-of-stream returns nil, also when it cuts a message short: whatever
// partial line is still buffered is forwarded and flushed, and the
// truncated message simply stands as sent.
func (rw *Rewriter) Run() error {
	for {
		line, complete := rw.nextLine()
		if !complete {
			if len(line) > 0 {
				if _, err := rw.w.Write(line); err != nil {
					return err
				}
				rw.r.Release(len(line))
			}
			return rw.w.Flush()
		}

		var err error
		switch rw.state {
		case awaitingCommand:
			err = rw.relayCommand(line)
		case inHeaders:
			err = rw.relayHeader(line)
		case inBody:
			err = rw.relayBody(line)
		}
		rw.r.Release(len(line))
		if err != nil {
			return err
		}
	}
}

// nextLine grows the read window until it holds a full line (through LF).
// complete is false when the stream ended first; the returned fragment is
// then whatever remained in the window, possibly empty.
func (rw *Rewriter) nextLine() (line []byte, complete bool) {
	scanned := 0
	for {
		win := rw.r.Window()
		if i := bytes.IndexByte(win[scanned:], '\n'); i >= 0 {
			return win[:scanned+i+1], true
		}
		scanned = len(win)
		if rw.r.Extend(0) == 0 {
			return win, false
		}
	}
}

func (rw *Rewriter) relayCommand(line []byte) error {
	if _, err := rw.w.Write(line); err != nil {
		return err
	}
	if isPostCommand(line) {
		rw.state = inHeaders
	}
	// Command traffic is interactive request/response; deliver it before
	// reading on instead of letting it sit in the buffer.
	return rw.w.Flush()
}

func (rw *Rewriter) relayHeader(line []byte) error {
	if hasContentTypeName(line) {
		if _, err := io.WriteString(rw.w, rewrittenName); err != nil {
			return err
		}
		if _, err := rw.w.Write(line[len(contentTypeName):]); err != nil {
			return err
		}
		// Only the first occurrence is rewritten; everything after it,
		// remaining headers included, relays as opaque body lines.
		rw.state = inBody
		rw.logger.Debug("content-type header rewritten")
		if rw.metrics != nil {
			rw.metrics.HeadersRewritten.Inc()
		}
		return nil
	}

	if _, err := rw.w.Write(line); err != nil {
		return err
	}
	if isHeaderEnd(line) {
		rw.state = inBody
	}
	return nil
}

func (rw *Rewriter) relayBody(line []byte) error {
	if _, err := rw.w.Write(line); err != nil {
		return err
	}
	if !isTerminator(line) {
		return nil
	}

	// Message complete: deliver it upstream as one unit.
	rw.state = awaitingCommand
	if rw.metrics != nil {
		rw.metrics.MessagesTotal.Inc()
	}
	return rw.w.Flush()
}
