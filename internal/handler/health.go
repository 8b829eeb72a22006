// Package handler serves the HTTP admin endpoints: health, status and
// Prometheus metrics. The admin surface is separate from the NNTP relay
// listener and carries none of the relayed traffic.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"nntp-markup-proxy/internal/config"
	"nntp-markup-proxy/internal/proxy"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	server  *proxy.Server
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, srv *proxy.Server, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, server: srv, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"version":            string(h.version),
		"listen_addr":        h.cfg.Server.Addr(),
		"upstream_addr":      h.cfg.Upstream.Addr(),
		"active_connections": h.server.ActiveConnections(),
	})
}
