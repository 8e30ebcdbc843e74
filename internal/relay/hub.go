package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/wsrelay/internal/metrics"
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	remoteAddr   string
	errorChannel chan error
}

type deregisterCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type markAliveCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type acknowledgeCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type broadcastCmd struct {
	baseHubCmd
	sender       *websocket.Conn
	payload      []byte
	replyChannel chan BroadcastResult
}

type lenCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// BroadcastResult summarizes one fan-out pass.
type BroadcastResult struct {
	Forwarded int
	Online    int
}

// Hub owns one listener group's connection registry. It doubles as the
// heartbeat manager: every interval tick it sweeps the registry, evicting
// connections whose last probe stood unacknowledged for timeout or longer,
// and probing the rest.
type Hub struct {
	protocol string
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	clients  map[*websocket.Conn]*client
	interval time.Duration
	timeout  time.Duration
	stopped  chan struct{}
}

// NewHub creates a hub for one protocol group and starts its run loop,
// including the heartbeat ticker.
func NewHub(protocol string, interval, timeout time.Duration, clock clockwork.Clock) *Hub {
	h := &Hub{
		protocol: protocol,
		cmdCh:    make(chan hubCmd, 256),
		clock:    clock,
		clients:  make(map[*websocket.Conn]*client),
		interval: interval,
		timeout:  timeout,
		stopped:  make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a connection to the registry, alive and freshly stamped.
func (h *Hub) Register(connection *websocket.Conn, remoteAddr string) error {
	errCh := make(chan error, 1)
	if !h.send(registerCmd{connection: connection, remoteAddr: remoteAddr, errorChannel: errCh}) {
		return ErrHubStopped
	}
	return <-errCh
}

// Deregister removes a connection from the registry and stops its writer.
// Idempotent: deregistering an unknown connection is a no-op.
func (h *Hub) Deregister(connection *websocket.Conn) {
	h.send(deregisterCmd{connection: connection})
}

// MarkAlive resets a connection's liveness. Called from the low-level pong
// handler; also valid any time an application-layer acknowledgment arrives.
func (h *Hub) MarkAlive(connection *websocket.Conn) {
	h.send(markAliveCmd{connection: connection})
}

// Acknowledge handles an application-layer probe: resets liveness and
// queues the reserved pong reply to the sender only.
func (h *Hub) Acknowledge(connection *websocket.Conn) {
	h.send(acknowledgeCmd{connection: connection})
}

// Broadcast relays payload to every registered connection except sender
// and reports how many recipients it reached out of how many were online.
func (h *Hub) Broadcast(sender *websocket.Conn, payload []byte) BroadcastResult {
	replyCh := make(chan BroadcastResult, 1)
	if !h.send(broadcastCmd{sender: sender, payload: payload, replyChannel: replyCh}) {
		return BroadcastResult{}
	}
	select {
	case result := <-replyCh:
		return result
	case <-h.stopped:
		return BroadcastResult{}
	}
}

// Len returns the current registry size.
func (h *Hub) Len() int {
	replyCh := make(chan int, 1)
	if !h.send(lenCmd{replyChannel: replyCh}) {
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-h.stopped:
		return 0
	}
}

// Stop cancels the heartbeat ticker, force-closes every registered
// connection, and clears the registry without emitting further events.
func (h *Hub) Stop() {
	h.send(stopCmd{})
	<-h.stopped
}

func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) run() {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case deregisterCmd:
				h.handleDeregister(c.connection)
			case markAliveCmd:
				h.handleMarkAlive(c.connection)
			case acknowledgeCmd:
				h.handleAcknowledge(c.connection)
			case broadcastCmd:
				c.replyChannel <- h.handleBroadcast(c.sender, c.payload)
			case lenCmd:
				c.replyChannel <- len(h.clients)
			case stopCmd:
				h.handleStop()
				return
			}
		case <-ticker.Chan():
			h.sweep()
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	// The low-level pong handler is installed here so either acknowledgment
	// path resets liveness through the hub.
	c.connection.SetPongHandler(func(string) error {
		h.MarkAlive(c.connection)
		return nil
	})
	h.clients[c.connection] = newClient(c.connection, c.remoteAddr, h.clock)
	metrics.ConnectionsCurrent.WithLabelValues(h.protocol).Inc()
	metrics.ConnectionsTotal.WithLabelValues(h.protocol).Inc()
	c.errorChannel <- nil
}

func (h *Hub) handleDeregister(connection *websocket.Conn) {
	cl, exists := h.clients[connection]
	if !exists {
		return
	}
	cl.stop()
	delete(h.clients, connection)
	metrics.ConnectionsCurrent.WithLabelValues(h.protocol).Dec()
}

func (h *Hub) handleMarkAlive(connection *websocket.Conn) {
	if cl, exists := h.clients[connection]; exists {
		cl.alive = true
	}
}

func (h *Hub) handleAcknowledge(connection *websocket.Conn) {
	cl, exists := h.clients[connection]
	if !exists {
		return
	}
	cl.alive = true
	cl.enqueue(PongMessage)
}

// handleBroadcast is one atomic fan-out pass: normalize once, skip the
// sender, isolate per-recipient failures.
func (h *Hub) handleBroadcast(sender *websocket.Conn, payload []byte) BroadcastResult {
	normalized := normalize(payload)
	result := BroadcastResult{Online: len(h.clients)}

	var senderAddr string
	if cl, exists := h.clients[sender]; exists {
		senderAddr = cl.remoteAddr
	}

	for connection, cl := range h.clients {
		if connection == sender {
			continue
		}
		if !cl.enqueue(normalized) {
			slog.Error("Failed to queue relayed message",
				"protocol", h.protocol, "remote_addr", cl.remoteAddr, "connection_id", cl.id)
			metrics.SendFailures.WithLabelValues(h.protocol).Inc()
			continue
		}
		result.Forwarded++
	}

	slog.Info("Message relayed",
		"protocol", h.protocol,
		"sender", senderAddr,
		"forwarded", result.Forwarded,
		"online", result.Online,
		"preview", preview(normalized))
	metrics.MessagesRelayed.WithLabelValues(h.protocol).Inc()
	metrics.RelayRecipients.Observe(float64(result.Forwarded))
	return result
}

// sweep runs the two-phase heartbeat pass: connections whose pending probe
// stood unacknowledged for a full timeout are zombies and get cut; everyone
// else is marked pending and probed again.
func (h *Hub) sweep() {
	now := h.clock.Now()
	for connection, cl := range h.clients {
		if !cl.alive && now.Sub(cl.lastProbe) >= h.timeout {
			slog.Warn("Evicting zombie connection",
				"protocol", h.protocol,
				"remote_addr", cl.remoteAddr,
				"connection_id", cl.id,
				"elapsed_seconds", now.Sub(cl.lastProbe).Seconds())
			cl.stop()
			delete(h.clients, connection)
			metrics.ConnectionsCurrent.WithLabelValues(h.protocol).Dec()
			metrics.Evictions.WithLabelValues(h.protocol).Inc()
			continue
		}

		// The timestamp freezes on the alive-to-pending transition: while a
		// probe stands unacknowledged, later ticks re-probe but must not
		// restart the timeout clock.
		if cl.alive {
			cl.lastProbe = now
		}
		cl.alive = false
		if err := cl.ping(); err != nil {
			// Not grounds for eviction by itself: if the connection is
			// truly dead the timeout check catches it on a later tick.
			slog.Error("Heartbeat probe send failed",
				"protocol", h.protocol, "remote_addr", cl.remoteAddr, "error", err)
			metrics.ProbeSendFailures.WithLabelValues(h.protocol).Inc()
		}
	}
}

func (h *Hub) handleStop() {
	for connection, cl := range h.clients {
		cl.stop()
		delete(h.clients, connection)
		metrics.ConnectionsCurrent.WithLabelValues(h.protocol).Dec()
	}
	close(h.stopped)
}
