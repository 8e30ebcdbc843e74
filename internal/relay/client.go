package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/wsrelay/internal/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 16
)

// client is one registered connection. The liveness fields (alive,
// lastProbe) are owned by the hub goroutine and must not be touched from
// anywhere else; the writer goroutine only drains sendChannel.
type client struct {
	id          uuid.UUID
	remoteAddr  string
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once

	alive     bool
	lastProbe time.Time
}

func newClient(connection *websocket.Conn, remoteAddr string, clock clockwork.Clock) *client {
	c := &client{
		id:          uuid.New(),
		remoteAddr:  remoteAddr,
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		alive:       true,
		lastProbe:   clock.Now(),
	}
	go c.run()
	return c
}

func (c *client) run() {
	for {
		select {
		case msg := <-c.sendChannel:
			start := c.clock.Now()
			c.connection.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.MessageSendDuration.Observe(c.clock.Since(start).Seconds())
		case <-c.doneChannel:
			return
		}
	}
}

// enqueue hands msg to the writer without blocking. A full buffer or a
// stopped writer counts as a failed send.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.doneChannel:
		return false
	default:
	}
	select {
	case c.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// ping writes a low-level probe control frame. Safe to call from the hub
// goroutine while the writer is active: gorilla's WriteControl may run
// concurrently with WriteMessage.
func (c *client) ping() error {
	deadline := c.clock.Now().Add(writeDeadline)
	return c.connection.WriteControl(websocket.PingMessage, nil, deadline)
}

// stop terminates the writer and abruptly closes the transport, without a
// close handshake. Close errors are swallowed: termination is best-effort
// cleanup of a connection that may already be gone.
func (c *client) stop() {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		_ = c.connection.Close()
	})
}
