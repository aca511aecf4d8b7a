package collab

// controller.go coordinates inbound and outbound collaboration traffic for
// one table instance. It is transport-agnostic: everything network-shaped
// is behind the Channel interface.

import (
	"log/slog"
	"sync"
	"time"
)

// Mode selects the collaboration transport.
type Mode string

const (
	ModeWebSocket Mode = "websocket"
	ModePolling   Mode = "polling"
	ModeLocal     Mode = "local"
)

const (
	// DefaultPresenceTTL is how long a disconnected user stays on the
	// roster before the janitor removes the entry.
	DefaultPresenceTTL = 30 * time.Second
	// DefaultCursorTTL is how long a remote cursor indicator lives
	// without an update.
	DefaultCursorTTL = 5 * time.Second

	janitorInterval = time.Second
)

// Presence is one roster entry.
type Presence struct {
	User      User
	Connected bool
	LastSeen  time.Time
}

// Cursor is an ephemeral remote-cursor indicator.
type Cursor struct {
	User     User
	RowIndex int
	Field    string
	Seen     time.Time
}

// ApplyFunc applies a remote cell change to the owning table.
type ApplyFunc func(msg Message)

// Config wires a Controller.
type Config struct {
	User    User
	TableID string
	Channel Channel
	// Apply receives remote cell changes that survived echo suppression.
	// Remote row ids come from the sender, so the applier resolves the
	// local row and records the version itself.
	Apply ApplyFunc
	// History enables per-cell versioning when non-nil.
	History *History

	PresenceTTL time.Duration
	CursorTTL   time.Duration
	Logger      *slog.Logger
}

// Controller applies remote changes, tracks presence and cursors, and
// publishes local edits.
type Controller struct {
	user        User
	tableID     string
	ch          Channel
	apply       ApplyFunc
	history     *History
	presenceTTL time.Duration
	cursorTTL   time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	roster  map[string]*Presence
	cursors map[string]Cursor
	closed  bool

	done chan struct{}
}

// NewController starts a controller on the given channel and announces the
// local user.
func NewController(cfg Config) *Controller {
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = DefaultPresenceTTL
	}
	if cfg.CursorTTL <= 0 {
		cfg.CursorTTL = DefaultCursorTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{
		user:        cfg.User,
		tableID:     cfg.TableID,
		ch:          cfg.Channel,
		apply:       cfg.Apply,
		history:     cfg.History,
		presenceTTL: cfg.PresenceTTL,
		cursorTTL:   cfg.CursorTTL,
		log:         cfg.Logger,
		roster:      make(map[string]*Presence),
		cursors:     make(map[string]Cursor),
		done:        make(chan struct{}),
	}

	c.ch.OnMessage(c.HandleMessage)
	go c.janitor()

	if err := c.ch.Send(Message{
		Type: TypeUserConnected, User: c.user, TableID: c.tableID, Timestamp: time.Now(),
	}); err != nil {
		c.log.Warn("collab announce failed", "error", err)
	}
	return c
}

// HandleMessage processes one inbound message.
func (c *Controller) HandleMessage(msg Message) {
	switch msg.Type {
	case TypeCellChange:
		// Echo suppression: a change that originated here was already
		// applied locally.
		if msg.User.ID == c.user.ID {
			return
		}
		c.touch(msg.User)
		if c.apply != nil {
			c.apply(msg)
		}

	case TypeConnect, TypeUserConnected:
		if msg.User.ID == c.user.ID {
			return
		}
		c.mu.Lock()
		c.roster[msg.User.ID] = &Presence{User: msg.User, Connected: true, LastSeen: time.Now()}
		c.mu.Unlock()

	case TypeUserDisconnected:
		c.mu.Lock()
		if p, ok := c.roster[msg.User.ID]; ok {
			p.Connected = false
			p.LastSeen = time.Now()
		}
		c.mu.Unlock()

	case TypeCursor:
		if msg.User.ID == c.user.ID {
			return
		}
		c.mu.Lock()
		c.cursors[msg.User.ID] = Cursor{
			User: msg.User, RowIndex: msg.RowIndex, Field: msg.Field, Seen: time.Now(),
		}
		c.mu.Unlock()
		c.touch(msg.User)

	default:
		c.log.Warn("collab unknown message type", "type", string(msg.Type))
	}
}

// SendChange publishes a local cell edit.
func (c *Controller) SendChange(rowID string, rowIndex int, field string, value any) error {
	msg := Message{
		Type:      TypeCellChange,
		User:      c.user,
		TableID:   c.tableID,
		RowID:     rowID,
		RowIndex:  rowIndex,
		Field:     field,
		Value:     value,
		Timestamp: time.Now(),
	}
	return c.ch.Send(msg)
}

// SendCursor publishes the local cursor position.
func (c *Controller) SendCursor(rowIndex int, field string) error {
	return c.ch.Send(Message{
		Type: TypeCursor, User: c.user, TableID: c.tableID,
		RowIndex: rowIndex, Field: field, Timestamp: time.Now(),
	})
}

// RecordVersion appends a local edit to the cell's history.
func (c *Controller) RecordVersion(rowID, field string, value any, restored bool) {
	if c.history == nil || rowID == "" {
		return
	}
	c.history.Add(Key(rowID, field), Version{
		Value: value, Timestamp: time.Now(), User: c.user, Restored: restored,
	})
}

// Versions returns a cell's history, oldest first.
func (c *Controller) Versions(rowID, field string) []Version {
	if c.history == nil {
		return nil
	}
	return c.history.Get(Key(rowID, field))
}

// VersionAt returns one history entry by index.
func (c *Controller) VersionAt(rowID, field string, index int) (Version, bool) {
	if c.history == nil {
		return Version{}, false
	}
	return c.history.At(Key(rowID, field), index)
}

// Roster returns a snapshot of known collaborators.
func (c *Controller) Roster() []Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Presence, 0, len(c.roster))
	for _, p := range c.roster {
		out = append(out, *p)
	}
	return out
}

// Cursors returns the live remote cursors.
func (c *Controller) Cursors() []Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Cursor, 0, len(c.cursors))
	for _, cur := range c.cursors {
		out = append(out, cur)
	}
	return out
}

// User returns the local user identity.
func (c *Controller) User() User { return c.user }

// Close announces departure, stops the janitor, and closes the channel.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.ch.Send(Message{
		Type: TypeUserDisconnected, User: c.user, TableID: c.tableID, Timestamp: time.Now(),
	})
	close(c.done)
	if c.history != nil {
		c.history.Clear()
	}
	return c.ch.Close()
}

// touch refreshes the sender's roster entry.
func (c *Controller) touch(u User) {
	c.mu.Lock()
	if p, ok := c.roster[u.ID]; ok {
		p.LastSeen = time.Now()
		p.Connected = true
	} else {
		c.roster[u.ID] = &Presence{User: u, Connected: true, LastSeen: time.Now()}
	}
	c.mu.Unlock()
}

// janitor expires stale cursors and removes long-disconnected users.
func (c *Controller) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for id, cur := range c.cursors {
				if now.Sub(cur.Seen) > c.cursorTTL {
					delete(c.cursors, id)
				}
			}
			for id, p := range c.roster {
				if !p.Connected && now.Sub(p.LastSeen) > c.presenceTTL {
					delete(c.roster, id)
				}
			}
			c.mu.Unlock()
		}
	}
}
