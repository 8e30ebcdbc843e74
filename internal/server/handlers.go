package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/wsrelay/internal/metrics"
	"github.com/pscheid92/wsrelay/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket is the upgrade endpoint shared by the primary and
// loopback listeners of a group.
func (g *Group) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	if !g.rateLimiter.Allow(ip) {
		metrics.ConnectionsRejected.WithLabelValues(g.protocol, "rate").Inc()
		return c.String(http.StatusTooManyRequests, "connection rate exceeded")
	}
	if !g.globalLimiter.Acquire() {
		metrics.ConnectionsRejected.WithLabelValues(g.protocol, "global_limit").Inc()
		return c.String(http.StatusServiceUnavailable, "connection limit reached")
	}
	if !g.ipLimiter.Acquire(ip) {
		g.globalLimiter.Release()
		metrics.ConnectionsRejected.WithLabelValues(g.protocol, "ip_limit").Inc()
		return c.String(http.StatusServiceUnavailable, "per-ip connection limit reached")
	}
	release := func() {
		g.ipLimiter.Release(ip)
		g.globalLimiter.Release()
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		release()
		slog.Warn("WebSocket upgrade failed", "protocol", g.protocol, "remote_addr", c.Request().RemoteAddr, "error", err)
		return nil
	}

	// Oversized frames make the transport drop the connection with 1009.
	conn.SetReadLimit(g.maxPayload)

	remoteAddr := conn.RemoteAddr().String()
	if err := g.hub.Register(conn, remoteAddr); err != nil {
		conn.Close()
		release()
		return nil
	}
	slog.Info("Client connected", "protocol", g.protocol, "remote_addr", remoteAddr)

	g.readPump(conn, remoteAddr)
	release()
	return nil
}

// readPump blocks until the connection dies. Incoming application-layer
// probes are acknowledged and swallowed; every other payload is relayed.
func (g *Group) readPump(conn *websocket.Conn, remoteAddr string) {
	defer g.hub.Deregister(conn)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				slog.Info("Client disconnected",
					"protocol", g.protocol, "remote_addr", remoteAddr,
					"code", closeErr.Code, "reason", closeErr.Text)
			} else {
				slog.Warn("Client connection error",
					"protocol", g.protocol, "remote_addr", remoteAddr, "error", err)
			}
			return
		}

		if relay.IsProbe(payload) {
			g.hub.Acknowledge(conn)
			continue
		}
		g.hub.Broadcast(conn, payload)
	}
}
