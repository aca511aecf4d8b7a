package collab

// websocket.go implements the streaming transport.
//
// The channel owns its connection lifecycle: it dials in the background,
// re-dials with exponential backoff after any failure, replays the connect
// handshake on every (re)connection, and flushes messages queued while
// offline. Send never blocks on the network state; an offline send is
// queued, not dropped.

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsInitialBackoff = time.Second
	wsMaxBackoff     = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

// WebSocketChannel is the persistent-stream Channel implementation.
type WebSocketChannel struct {
	url     string
	user    User
	tableID string
	dialer  *websocket.Dialer
	log     *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	queue    []Message
	handlers []func(Message)
	closed   bool

	// gorilla/websocket supports at most one concurrent writer per
	// connection; wmu serializes Send against the connect handshake and
	// queue flush in run.
	wmu sync.Mutex

	done chan struct{}
}

// DialWebSocket starts a channel that connects to url in the background.
// A nil logger uses slog.Default.
func DialWebSocket(url string, user User, tableID string, log *slog.Logger) *WebSocketChannel {
	if log == nil {
		log = slog.Default()
	}
	c := &WebSocketChannel{
		url:     url,
		user:    user,
		tableID: tableID,
		dialer:  websocket.DefaultDialer,
		log:     log,
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Send writes the message if the stream is open, otherwise queues it for
// the next successful connection.
func (c *WebSocketChannel) Send(msg Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ChannelError{Op: "send", Err: errClosed}
	}
	conn := c.conn
	if conn == nil {
		c.queue = append(c.queue, msg)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.write(conn, msg); err != nil {
		c.mu.Lock()
		c.queue = append(c.queue, msg)
		c.mu.Unlock()
		c.dropConn(conn)
		return &ChannelError{Op: "send", Err: err}
	}
	return nil
}

// OnMessage registers a receive handler. Handlers run on the read
// goroutine.
func (c *WebSocketChannel) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// Close stops reconnecting and closes the stream.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// run is the connection loop: dial, handshake, flush queue, read until
// failure, back off, repeat.
func (c *WebSocketChannel) run() {
	backoff := wsInitialBackoff
	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.log.Warn("collab websocket dial failed",
				"url", c.url, "retry_in", backoff, "error", err)
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > wsMaxBackoff {
				backoff = wsMaxBackoff
			}
			continue
		}
		backoff = wsInitialBackoff

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		pending := c.queue
		c.queue = nil
		c.mu.Unlock()

		// Handshake, then replay anything queued while offline.
		handshake := Message{Type: TypeConnect, User: c.user, TableID: c.tableID, Timestamp: time.Now()}
		if err := c.write(conn, handshake); err != nil {
			c.requeue(pending)
			c.dropConn(conn)
			continue
		}
		failed := false
		for i, msg := range pending {
			if err := c.write(conn, msg); err != nil {
				c.requeue(pending[i:])
				c.dropConn(conn)
				failed = true
				break
			}
		}
		if failed {
			continue
		}

		c.log.Info("collab websocket connected", "url", c.url, "flushed", len(pending))
		c.readLoop(conn)
	}
}

func (c *WebSocketChannel) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("collab websocket read failed", "error", err)
			}
			c.dropConn(conn)
			return
		}

		c.mu.Lock()
		handlers := make([]func(Message), len(c.handlers))
		copy(handlers, c.handlers)
		c.mu.Unlock()
		for _, fn := range handlers {
			fn(msg)
		}
	}
}

// write performs one serialized JSON write with a deadline.
func (c *WebSocketChannel) write(conn *websocket.Conn, msg any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}

// requeue puts unsent messages back at the front of the queue.
func (c *WebSocketChannel) requeue(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	c.queue = append(append([]Message(nil), msgs...), c.queue...)
	c.mu.Unlock()
}

func (c *WebSocketChannel) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}
