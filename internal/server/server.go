package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pscheid92/wsrelay/internal/config"
	"github.com/pscheid92/wsrelay/internal/relay"
)

// GroupConfig describes one protocol's listener group.
type GroupConfig struct {
	Protocol          string // "plain" or "tls"
	Host              string
	Port              int
	TLS               *tls.Config // nil for the plaintext group
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	MaxPayload        int64
	Limits            config.Limits
	Clock             clockwork.Clock
}

// Group is one running listener group: the bound listener(s), the shared
// upgrade router, and the hub owning this protocol's connection registry.
type Group struct {
	protocol      string
	hub           *relay.Hub
	echo          *echo.Echo
	primary       *http.Server
	primaryAddr   string
	loopback      *http.Server
	loopbackAddr  string
	globalLimiter *GlobalConnectionLimiter
	ipLimiter     *IPConnectionLimiter
	rateLimiter   *ConnectionRateLimiter
	maxPayload    int64
	clock         clockwork.Clock
	startTime     time.Time
}

// StartGroup binds the configured address and, when it is neither wildcard
// nor loopback, a second listener on 127.0.0.1 with the same port. A
// primary bind failure fails the group; a loopback bind failure only costs
// the local fallback and is logged as a warning.
func StartGroup(cfg GroupConfig) (*Group, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	g := &Group{
		protocol:      cfg.Protocol,
		hub:           relay.NewHub(cfg.Protocol, cfg.HeartbeatInterval, cfg.HeartbeatTimeout, clock),
		echo:          e,
		globalLimiter: NewGlobalConnectionLimiter(int64(cfg.Limits.MaxConnections)),
		ipLimiter:     NewIPConnectionLimiter(cfg.Limits.MaxConnectionsPerIP),
		rateLimiter:   NewConnectionRateLimiter(cfg.Limits.ConnectionRate, cfg.Limits.ConnectionBurst),
		maxPayload:    cfg.MaxPayload,
		clock:         clock,
		startTime:     clock.Now(),
	}
	g.registerRoutes()

	primaryLn, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		g.hub.Stop()
		return nil, fmt.Errorf("failed to bind %s listener on %s:%d: %w", cfg.Protocol, cfg.Host, cfg.Port, err)
	}
	if cfg.TLS != nil {
		primaryLn = tls.NewListener(primaryLn, cfg.TLS)
	}
	g.primaryAddr = primaryLn.Addr().String()
	g.primary = &http.Server{Handler: e}
	go g.serve(g.primary, primaryLn, "primary")

	if needsLoopbackFallback(cfg.Host) {
		loopbackLn, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port)))
		if err != nil {
			slog.Warn("Loopback fallback bind failed, continuing without local fallback",
				"protocol", cfg.Protocol, "port", cfg.Port, "error", err)
		} else {
			if cfg.TLS != nil {
				loopbackLn = tls.NewListener(loopbackLn, cfg.TLS)
			}
			g.loopbackAddr = loopbackLn.Addr().String()
			g.loopback = &http.Server{Handler: e}
			go g.serve(g.loopback, loopbackLn, "loopback")
		}
	}

	slog.Info("Listener group started",
		"protocol", g.protocol, "addr", g.primaryAddr, "loopback_addr", g.loopbackAddr)
	return g, nil
}

func (g *Group) registerRoutes() {
	g.echo.GET("/", g.handleWebSocket)
	g.echo.GET("/healthz", g.handleHealth)
	g.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (g *Group) serve(srv *http.Server, ln net.Listener, label string) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Listener terminated unexpectedly",
			"protocol", g.protocol, "listener", label, "error", err)
	}
}

// needsLoopbackFallback reports whether a second 127.0.0.1 listener should
// be bound alongside host. Hostnames other than localhost cannot be judged
// without resolving, so they get the fallback; if they resolved to loopback
// anyway, that bind fails with address-in-use and degrades to a warning.
func needsLoopbackFallback(host string) bool {
	if host == "" || host == "localhost" {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return true
	}
	return !ip.IsUnspecified() && !ip.IsLoopback()
}

// Shutdown stops the group: heartbeat sweeps end and every registered
// connection is force-closed first, then the listeners stop accepting.
func (g *Group) Shutdown(ctx context.Context) error {
	g.hub.Stop()

	var errs []error
	if err := g.primary.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("primary listener: %w", err))
	}
	if g.loopback != nil {
		if err := g.loopback.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("loopback listener: %w", err))
		}
	}

	slog.Info("Listener group stopped", "protocol", g.protocol)
	return errors.Join(errs...)
}

// Protocol returns the group's protocol label.
func (g *Group) Protocol() string {
	return g.protocol
}

// Addr returns the primary listener's bound address.
func (g *Group) Addr() string {
	return g.primaryAddr
}

// LoopbackAddr returns the fallback listener's bound address, empty when no
// fallback is active.
func (g *Group) LoopbackAddr() string {
	return g.loopbackAddr
}

// ConnectionCount returns how many connections the group currently tracks.
func (g *Group) ConnectionCount() int {
	return g.hub.Len()
}
