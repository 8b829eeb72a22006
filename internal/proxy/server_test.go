package proxy

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"nntp-markup-proxy/internal/config"
	"nntp-markup-proxy/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startUpstream runs a fake NNTP server that greets each connection and
// then collects everything the proxy forwards until end-of-stream.
func startUpstream(t *testing.T) (addr string, received chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	received = make(chan []byte, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				if _, err := conn.Write([]byte("200 ready\r\n")); err != nil {
					return
				}
				data, _ := io.ReadAll(conn)
				received <- data
			}(conn)
		}
	}()
	return ln.Addr().String(), received
}

// startProxy runs a Server relaying to upstreamAddr and returns its listen address.
func startProxy(t *testing.T, upstreamAddr string, m *metrics.Metrics) string {
	t.Helper()
	host, portStr, err := net.SplitHostPort(upstreamAddr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{Host: host, Port: port, DialTimeoutSeconds: 5},
	}
	s := New(cfg, testLogger(), m)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return ln.Addr().String()
}

func dialProxy(t *testing.T, addr string) *net.TCPConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { _ = conn.Close() })
	return conn.(*net.TCPConn)
}

func waitReceived(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case data := <-ch:
		return string(data)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for upstream to receive relayed bytes")
		return ""
	}
}

func TestRelay_RewritesPostMessage(t *testing.T) {
	upstreamAddr, received := startUpstream(t)
	proxyAddr := startProxy(t, upstreamAddr, nil)

	client := dialProxy(t, proxyAddr)

	// The upstream greeting must come back through the untouched direction.
	greeting, err := bufio.NewReader(client).ReadString('\n')
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if greeting != "200 ready\r\n" {
		t.Errorf("greeting = %q, want %q", greeting, "200 ready\r\n")
	}

	input := "POST article\r\n" +
		"Subject: test\r\nContent-Type: text/plain\r\n\r\nhello\r\n.\r\n"
	if _, err := client.Write([]byte(input)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := client.CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}

	want := "POST article\r\n" +
		"Subject: test\r\nContent-Type: markup=markdown; text/plain\r\n\r\nhello\r\n.\r\n"
	if got := waitReceived(t, received); got != want {
		t.Errorf("upstream received %q, want %q", got, want)
	}
}

func TestRelay_NonPostTrafficIsIdentity(t *testing.T) {
	upstreamAddr, received := startUpstream(t)
	proxyAddr := startProxy(t, upstreamAddr, nil)

	client := dialProxy(t, proxyAddr)

	input := "MODE READER\r\nLIST\r\nQUIT\r\n"
	if _, err := client.Write([]byte(input)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := client.CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}

	if got := waitReceived(t, received); got != input {
		t.Errorf("upstream received %q, want identity %q", got, input)
	}
}

func TestRelay_UpstreamCloseReachesClient(t *testing.T) {
	upstreamAddr, _ := startUpstream(t)
	proxyAddr := startProxy(t, upstreamAddr, nil)

	client := dialProxy(t, proxyAddr)
	if err := client.CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}

	// Upstream sends the greeting and closes once it sees end-of-stream;
	// the client must observe the greeting and then end-of-stream.
	data, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "200 ready\r\n" {
		t.Errorf("client received %q, want %q", string(data), "200 ready\r\n")
	}
}

func TestRelay_DialFailureDropsClient(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := ln.Addr().String()
	_ = ln.Close()

	m := metrics.New()
	proxyAddr := startProxy(t, deadAddr, m)

	client := dialProxy(t, proxyAddr)

	buf := make([]byte, 1)
	if _, err := client.Read(buf); err == nil {
		t.Error("expected the proxy to drop the client after a failed upstream dial")
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "nntp_proxy_upstream_dial_failures_total" {
			if v := f.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Errorf("dial failures = %v, want 1", v)
			}
			found = true
		}
	}
	if !found {
		t.Error("expected nntp_proxy_upstream_dial_failures_total to be gathered")
	}
}

func TestServer_ShutdownStopsAccepting(t *testing.T) {
	upstreamAddr, _ := startUpstream(t)

	host, portStr, _ := net.SplitHostPort(upstreamAddr)
	port, _ := strconv.Atoi(portStr)
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{Host: host, Port: port, DialTimeoutSeconds: 5},
	}
	s := New(cfg, testLogger(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() after shutdown = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Shutdown")
	}

	if _, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second); err == nil {
		t.Error("expected dial to fail after shutdown closed the listener")
	}
}
