// SPDX-License-Identifier: ice License 1.0

package relay

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/ice-blockchain/permafrost/model"
)

// Connection is a client-side relay connection. One read loop per
// connection, writes are serialized with a mutex, and every inbound frame is
// parsed once and handed to the listener together with the raw bytes.
type Connection struct {
	url       string
	listener  Listener
	stats     *Stats
	writeMx   sync.Mutex
	conn      net.Conn
	connected atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewConnection(url string, listener Listener, stats *Stats) *Connection {
	return &Connection{url: url, listener: listener, stats: stats}
}

func (c *Connection) URL() string {
	return c.url
}

func (c *Connection) IsConnected() bool {
	return c.connected.Load()
}

// Connect dials the relay and starts the read loop. The listener's
// OnConnecting fires before the dial so callers can reset per-connection
// state (auth, pending subscriptions) ahead of any traffic.
func (c *Connection) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	c.listener.OnConnecting(c)
	readCtx, cancel := context.WithCancel(ctx)
	conn, _, _, err := ws.Dial(readCtx, c.url)
	if err != nil {
		cancel()

		return errors.Wrapf(err, "failed to dial relay %v", c.url)
	}
	c.writeMx.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	c.writeMx.Unlock()
	c.connected.Store(true)
	go c.read(c.done)

	return nil
}

// SendIfConnected marshals and writes the envelope, silently dropping it when
// the connection is down. Callers that need delivery guarantees must resend
// after reconnect, the transport never queues.
func (c *Connection) SendIfConnected(envelope model.Envelope) {
	if !c.connected.Load() {
		return
	}
	data, err := envelope.MarshalJSON()
	if err != nil {
		log.Printf("ERROR:%v", errors.Wrapf(err, "failed to serialize %+v into json", envelope))

		return
	}
	c.writeMx.Lock()
	conn := c.conn
	if conn != nil {
		err = wsutil.WriteClientText(conn, data)
	}
	c.writeMx.Unlock()
	if err != nil {
		log.Printf("WARN: failed to write to relay %v: %v", c.url, err)

		return
	}
	if c.stats != nil {
		c.stats.MessageSent(c.url)
	}
}

// Disconnect closes the connection and waits for the read loop to drain.
// Safe to call twice.
func (c *Connection) Disconnect() {
	c.writeMx.Lock()
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn, c.cancel, c.done = nil, nil, nil
	c.writeMx.Unlock()
	if conn == nil {
		return
	}
	cancel()
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("WARN: failed to close connection to relay %v: %v", c.url, err)
	}
	<-done
}

func (c *Connection) read(done chan struct{}) {
	defer close(done)
	for {
		c.writeMx.Lock()
		conn := c.conn
		c.writeMx.Unlock()
		if conn == nil {
			break
		}
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			closed := new(wsutil.ClosedError)
			if errors.As(err, closed) {
				if closed.Code != ws.StatusNormalClosure &&
					closed.Code != ws.StatusGoingAway &&
					closed.Code != ws.StatusAbnormalClosure &&
					closed.Code != ws.StatusNoStatusRcvd {
					log.Printf("WARN: relay %v closed with unexpected code %v", c.url, closed.Code)
				}
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("WARN: relay %v read failed: %v", c.url, err)
			}

			break
		}
		if len(data) == 0 {
			continue
		}
		c.listener.OnIncomingMessage(c, data, model.ParseRelayMessage(data))
	}
	c.connected.Store(false)
	c.listener.OnDisconnected(c)
}
