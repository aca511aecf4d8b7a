package collab

// polling.go implements the HTTP fallback transport.
//
// Protocol: GET {url}/changes?since=<unix ms>&tableId=... returns
// {"changes": [...]}; POST {url}/changes with {"changes": [...], "user",
// "tableId"} publishes a batch. Outbound edits are queued and flushed on
// the next tick; a failed flush re-queues the whole batch (at-least-once,
// no dedup).

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// DefaultPollInterval is used when the configured interval is zero.
const DefaultPollInterval = 3 * time.Second

// PollingChannel is the polling Channel implementation.
type PollingChannel struct {
	baseURL  string
	user     User
	tableID  string
	interval time.Duration
	client   *http.Client
	log      *slog.Logger

	mu       sync.Mutex
	outbox   []Message
	handlers []func(Message)
	since    time.Time
	closed   bool

	done chan struct{}
}

type changesEnvelope struct {
	Changes []Message `json:"changes"`
}

type publishPayload struct {
	Changes []Message `json:"changes"`
	User    User      `json:"user"`
	TableID string    `json:"tableId"`
}

// NewPolling starts a channel that polls baseURL every interval.
// A nil logger uses slog.Default.
func NewPolling(baseURL string, user User, tableID string, interval time.Duration, log *slog.Logger) *PollingChannel {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	c := &PollingChannel{
		baseURL:  baseURL,
		user:     user,
		tableID:  tableID,
		interval: interval,
		client:   &http.Client{Timeout: interval},
		log:      log,
		since:    time.Now(),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// Send queues the message; it goes out on the next poll tick.
func (c *PollingChannel) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &ChannelError{Op: "send", Err: errClosed}
	}
	c.outbox = append(c.outbox, msg)
	return nil
}

// OnMessage registers a receive handler. Handlers run on the poll
// goroutine.
func (c *PollingChannel) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// Close stops the poll loop. Unflushed messages are discarded.
func (c *PollingChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	return nil
}

// Pending returns the number of queued outbound messages.
func (c *PollingChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbox)
}

func (c *PollingChannel) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick flushes the outbox, then pulls remote changes. Failures are logged
// and retried next tick.
func (c *PollingChannel) tick() {
	if err := c.flush(); err != nil {
		c.log.Warn("collab poll flush failed", "error", err)
	}
	if err := c.poll(); err != nil {
		c.log.Warn("collab poll failed", "error", err)
	}
}

// flush publishes queued changes. The batch is re-queued on failure so
// nothing is lost across outages.
func (c *PollingChannel) flush() error {
	c.mu.Lock()
	batch := c.outbox
	c.outbox = nil
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	body, err := json.Marshal(publishPayload{Changes: batch, User: c.user, TableID: c.tableID})
	if err != nil {
		return &ChannelError{Op: "flush", Err: err}
	}

	resp, err := c.client.Post(c.baseURL+"/changes", "application/json", bytes.NewReader(body))
	if err != nil {
		c.requeue(batch)
		return &ChannelError{Op: "flush", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		c.requeue(batch)
		return &ChannelError{Op: "flush", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}

// poll fetches changes since the last seen timestamp and dispatches them.
func (c *PollingChannel) poll() error {
	c.mu.Lock()
	since := c.since
	c.mu.Unlock()

	q := url.Values{}
	q.Set("since", strconv.FormatInt(since.UnixMilli(), 10))
	q.Set("tableId", c.tableID)

	resp, err := c.client.Get(c.baseURL + "/changes?" + q.Encode())
	if err != nil {
		return &ChannelError{Op: "poll", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ChannelError{Op: "poll", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var env changesEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &ChannelError{Op: "poll", Err: err}
	}

	c.mu.Lock()
	handlers := make([]func(Message), len(c.handlers))
	copy(handlers, c.handlers)
	latest := c.since
	for _, msg := range env.Changes {
		if msg.Timestamp.After(latest) {
			latest = msg.Timestamp
		}
	}
	c.since = latest
	c.mu.Unlock()

	for _, msg := range env.Changes {
		for _, fn := range handlers {
			fn(msg)
		}
	}
	return nil
}

func (c *PollingChannel) requeue(batch []Message) {
	c.mu.Lock()
	c.outbox = append(append([]Message(nil), batch...), c.outbox...)
	c.mu.Unlock()
}
