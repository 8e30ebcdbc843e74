package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/wsrelay/internal/metrics"
)

// testConnPair upgrades one live websocket and hands back both ends,
// without registering anything anywhere.
func testConnPair(t *testing.T) (clientSide, serverSide *ws.Conn) {
	t.Helper()

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	serverConns := make(chan *ws.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(server.Close)

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case serverSide = <-serverConns:
		return conn, serverSide
	case <-time.After(2 * time.Second):
		t.Fatal("server never produced a connection")
		return nil, nil
	}
}

func TestEnqueueFailsWhenBufferFull(t *testing.T) {
	// No writer goroutine draining, so the buffer fills and stays full.
	c := &client{
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}

	for i := 0; i < messageBufferSize; i++ {
		require.True(t, c.enqueue([]byte("payload")))
	}
	assert.False(t, c.enqueue([]byte("payload")))
}

func TestEnqueueFailsAfterStop(t *testing.T) {
	c := &client{
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	close(c.doneChannel)

	assert.False(t, c.enqueue([]byte("payload")))
}

func TestBroadcastIsolatesFailedRecipient(t *testing.T) {
	// Drive the fan-out pass directly, single-threaded like the run loop.
	h := &Hub{
		protocol: "plain",
		cmdCh:    make(chan hubCmd, 256),
		clock:    clockwork.NewRealClock(),
		clients:  make(map[*ws.Conn]*client),
		stopped:  make(chan struct{}),
	}
	register := func() (clientSide, serverSide *ws.Conn) {
		cc, sc := testConnPair(t)
		h.handleRegister(registerCmd{
			connection:   sc,
			remoteAddr:   sc.RemoteAddr().String(),
			errorChannel: make(chan error, 1),
		})
		return cc, sc
	}

	_, serverA := register()
	_, serverB := register()
	connC, _ := register()
	t.Cleanup(func() {
		for _, cl := range h.clients {
			cl.stop()
		}
	})

	// B's writer is gone, so enqueueing to it must fail.
	h.clients[serverB].stop()

	failuresBefore := testutil.ToFloat64(metrics.SendFailures.WithLabelValues("plain"))
	result := h.handleBroadcast(serverA, []byte(`{"text":"hi"}`))

	assert.Equal(t, 1, result.Forwarded)
	assert.Equal(t, 3, result.Online)
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(metrics.SendFailures.WithLabelValues("plain")))

	// The healthy recipient still gets the message.
	assert.JSONEq(t, `{"text":"hi"}`, string(readMessage(t, connC)))
}
