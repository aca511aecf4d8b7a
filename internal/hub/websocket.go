package hub

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tablekit/tablekit/collab"
	"github.com/tablekit/tablekit/internal/logging"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 64
)

// client is one websocket connection.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan collab.Message
	user    collab.User
	tableID string
}

// handleWebSocket upgrades the connection and runs the read loop. The
// first message is expected to be the connect handshake carrying the
// user identity and table id.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  s.hub,
		conn: conn,
		send: make(chan collab.Message, sendQueueSize),
	}
	s.hub.register(c)
	go c.writeLoop(s.cfg.Hub.PingInterval)
	c.readLoop(log)
}

// checkOrigin enforces the configured origin allowlist. An empty list
// allows everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Hub.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, a := range allowed {
		if origin == a {
			return true
		}
	}
	return false
}

func (c *client) readLoop(log *slog.Logger) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		if c.user.ID != "" {
			c.hub.Publish([]collab.Message{{
				Type: collab.TypeUserDisconnected, User: c.user, TableID: c.tableID,
			}}, c)
		}
	}()

	for {
		var msg collab.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "user", c.user.ID, "error", err)
			}
			return
		}

		if msg.Type == collab.TypeConnect {
			c.user = msg.User
			c.tableID = msg.TableID
			log.Info("client connected", "user", c.user.ID, "table", c.tableID)
			// Announce to everyone else.
			c.hub.Publish([]collab.Message{{
				Type: collab.TypeUserConnected, User: c.user, TableID: c.tableID, Timestamp: msg.Timestamp,
			}}, c)
			continue
		}
		if msg.User.ID == "" {
			msg.User = c.user
		}
		if msg.TableID == "" {
			msg.TableID = c.tableID
		}
		c.hub.Publish([]collab.Message{msg}, c)
	}
}

func (c *client) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// enqueue hands messages to the write loop. Messages are dropped when
// the client cannot keep up; a stalled client must not block the hub.
func (c *client) enqueue(msgs []collab.Message) {
	for _, msg := range msgs {
		select {
		case c.send <- msg:
		default:
			return
		}
	}
}

// close drops the connection; the read and write loops exit on their
// next I/O.
func (c *client) close() {
	c.conn.Close()
}
