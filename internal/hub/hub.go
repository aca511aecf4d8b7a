// Package hub implements the reference collaboration server: a websocket
// fan-out plus an HTTP polling fallback over a shared in-memory change
// log.
//
// The hub is deliberately dumb. It stamps, stores, and relays messages;
// conflict handling is the clients' last-write-wins policy.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tablekit/tablekit/collab"
	"github.com/tablekit/tablekit/internal/config"
)

const pruneInterval = time.Minute

// Hub holds the change log and the set of live websocket clients.
type Hub struct {
	cfg config.HubConfig
	log *slog.Logger

	mu      sync.Mutex
	changes []collab.Message
	clients map[*client]bool

	done chan struct{}
}

// New creates a hub and starts the retention pruner.
func New(cfg config.HubConfig, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		cfg:     cfg,
		log:     log,
		clients: make(map[*client]bool),
		done:    make(chan struct{}),
	}
	go h.pruneLoop()
	return h
}

// Publish stamps and stores cell changes, then relays every message to
// all live clients except the sender. Cursor traffic is relayed but not
// stored: it is ephemeral by definition, and polling clients get presence
// and changes only.
func (h *Hub) Publish(msgs []collab.Message, sender *client) {
	now := time.Now()
	h.mu.Lock()
	for i := range msgs {
		if msgs[i].Timestamp.IsZero() {
			msgs[i].Timestamp = now
		}
		if msgs[i].Type != collab.TypeCursor && msgs[i].Type != collab.TypeConnect {
			h.changes = append(h.changes, msgs[i])
		}
	}
	if over := len(h.changes) - h.cfg.MaxChanges; over > 0 {
		h.changes = append([]collab.Message(nil), h.changes[over:]...)
	}
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c != sender {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(msgs)
	}
}

// ChangesSince returns stored messages newer than since, optionally
// filtered by table.
func (h *Hub) ChangesSince(since time.Time, tableID string) []collab.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []collab.Message
	for _, msg := range h.changes {
		if !msg.Timestamp.After(since) {
			continue
		}
		if tableID != "" && msg.TableID != tableID {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the pruner and disconnects every client.
func (h *Hub) Close() {
	close(h.done)
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]bool)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// pruneLoop drops change entries past the retention window.
func (h *Hub) pruneLoop() {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case now := <-ticker.C:
			cutoff := now.Add(-h.cfg.ChangeRetention)
			h.mu.Lock()
			kept := h.changes[:0]
			for _, msg := range h.changes {
				if msg.Timestamp.After(cutoff) {
					kept = append(kept, msg)
				}
			}
			h.changes = kept
			h.mu.Unlock()
		}
	}
}
