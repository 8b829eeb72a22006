// Package proxy implements the connection manager: it accepts NNTP client
// connections, dials the fixed upstream server, and binds one relay pump
// to each direction of the resulting connection pair.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"nntp-markup-proxy/internal/config"
	"nntp-markup-proxy/internal/metrics"
	"nntp-markup-proxy/internal/rewrite"
	"nntp-markup-proxy/internal/stream"
)

// Server accepts client connections and relays each one to the fixed
// upstream. Connection pairs are fully independent of each other; the two
// pumps of a pair each own one direction and never touch the other.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	mu     sync.Mutex
	ln     net.Listener
	closed bool

	wg     sync.WaitGroup
	active atomic.Int64
}

// New creates a Server.
// The metrics parameter is optional; pass nil to disable metrics recording.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.With("component", "proxy"),
		metrics: m,
	}
	if cfg.Server.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit.ConnectionsPerSecond), 1)
	}
	return s
}

// Serve accepts connections on ln until the listener is closed. Transient
// accept errors are logged and the loop continues; listener closure ends
// the loop with a nil error.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(context.Background()); err != nil {
				return err
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept", "err", err)
			continue
		}

		if s.metrics != nil {
			s.metrics.ConnectionsTotal.Inc()
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Shutdown closes the listener and waits for in-flight connection pairs to
// drain, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveConnections returns the number of connection pairs currently relayed.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// handle dials the upstream for one accepted client and runs the two pumps
// until both directions have ended. A failed dial drops the client; the
// accept loop is unaffected.
func (s *Server) handle(clientConn net.Conn) {
	defer s.wg.Done()

	logger := s.logger.With("client", clientConn.RemoteAddr().String())

	upstreamAddr := s.cfg.Upstream.Addr()
	upstreamConn, err := net.DialTimeout("tcp", upstreamAddr, s.cfg.Upstream.DialTimeout())
	if err != nil {
		logger.Error("upstream dial failed", "upstream", upstreamAddr, "err", err)
		if s.metrics != nil {
			s.metrics.DialFailures.Inc()
		}
		_ = clientConn.Close()
		return
	}

	logger.Info("connected", "upstream", upstreamAddr)
	s.active.Add(1)
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		s.pumpDownstream(clientConn, upstreamConn, logger)
	}()
	go func() {
		defer pumps.Done()
		s.pumpUpstream(clientConn, upstreamConn, logger)
	}()
	pumps.Wait()

	_ = clientConn.Close()
	_ = upstreamConn.Close()

	s.active.Add(-1)
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
	logger.Info("disconnected")
}

// pumpDownstream relays client bytes to the upstream through the rewrite
// engine, then half-closes the upstream write side so the server sees
// end-of-stream while its responses can still drain.
func (s *Server) pumpDownstream(clientConn, upstreamConn net.Conn, logger *slog.Logger) {
	defer closeWrite(upstreamConn)

	var sink io.Writer = upstreamConn
	if s.metrics != nil {
		sink = &countingWriter{
			w:       sink,
			counter: s.metrics.BytesForwarded.WithLabelValues(metrics.DirectionDownstream),
		}
	}

	rw := rewrite.New(stream.NewReader(clientConn), stream.NewWriter(sink), logger, s.metrics)
	if err := rw.Run(); err != nil {
		logger.Error("downstream pump", "err", err)
	}
}

// pumpUpstream copies server bytes back to the client with no inspection.
func (s *Server) pumpUpstream(clientConn, upstreamConn net.Conn, logger *slog.Logger) {
	defer closeWrite(clientConn)

	n, err := io.Copy(clientConn, upstreamConn)
	if s.metrics != nil {
		s.metrics.BytesForwarded.WithLabelValues(metrics.DirectionUpstream).Add(float64(n))
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Error("upstream pump", "err", err)
	}
}

// closeWrite half-closes a pump's write direction so the peer observes
// end-of-stream without cutting off the sibling pump's direction.
func closeWrite(conn net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		_ = wc.CloseWrite()
		return
	}
	_ = conn.Close()
}

// countingWriter adds every written byte count to a Prometheus counter.
type countingWriter struct {
	w       io.Writer
	counter prometheus.Counter
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.counter.Add(float64(n))
	return n, err
}
