package collab

import (
	"sync"
)

// Channel is the transport capability the controller builds on: send a
// message, receive messages, close. Implementations exist for a persistent
// websocket stream, HTTP polling, and in-process delivery, which keeps the
// controller transport-agnostic and unit-testable without a socket.
type Channel interface {
	Send(msg Message) error
	OnMessage(fn func(Message))
	Close() error
}

// LocalBus fans messages out between channels in the same process. It
// backs the "local" collaboration mode and most tests.
type LocalBus struct {
	mu       sync.Mutex
	channels []*LocalChannel
}

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Channel attaches a new endpoint to the bus.
func (b *LocalBus) Channel() *LocalChannel {
	ch := &LocalChannel{bus: b}
	b.mu.Lock()
	b.channels = append(b.channels, ch)
	b.mu.Unlock()
	return ch
}

// broadcast delivers to every attached channel, including the sender:
// real servers echo too, and echo suppression lives in the controller.
func (b *LocalBus) broadcast(msg Message) {
	b.mu.Lock()
	targets := make([]*LocalChannel, len(b.channels))
	copy(targets, b.channels)
	b.mu.Unlock()

	for _, ch := range targets {
		ch.deliver(msg)
	}
}

// LocalChannel is an endpoint on a LocalBus.
type LocalChannel struct {
	bus *LocalBus

	mu       sync.Mutex
	handlers []func(Message)
	closed   bool
}

// Send broadcasts the message to every channel on the bus.
func (c *LocalChannel) Send(msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return &ChannelError{Op: "send", Err: errClosed}
	}
	c.bus.broadcast(msg)
	return nil
}

// OnMessage registers a receive handler.
func (c *LocalChannel) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// Close detaches the channel; subsequent sends fail and deliveries stop.
func (c *LocalChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *LocalChannel) deliver(msg Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	handlers := make([]func(Message), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(msg)
	}
}

var errClosed = errString("channel closed")

type errString string

func (e errString) Error() string { return string(e) }
