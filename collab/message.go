// Package collab synchronizes cell edits between table instances over an
// abstract message channel.
//
// Conflict handling is deliberately simple: last write observed wins, with
// echo suppression so a client never re-applies its own edits. There is no
// merging; a duplicate "set field to value" message is safe because it
// overwrites with the same value.
package collab

import (
	"time"
)

// User identifies a collaborator.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// MessageType tags the collaboration message variants.
type MessageType string

const (
	// TypeConnect is the handshake a client sends when joining.
	TypeConnect MessageType = "connect"
	// TypeCellChange carries one cell edit.
	TypeCellChange MessageType = "cell-change"
	// TypeUserConnected and TypeUserDisconnected maintain the presence
	// roster.
	TypeUserConnected    MessageType = "user-connected"
	TypeUserDisconnected MessageType = "user-disconnected"
	// TypeCursor is an ephemeral remote-cursor position.
	TypeCursor MessageType = "cursor-position"
)

// Message is the wire format shared by every transport.
type Message struct {
	Type    MessageType `json:"type"`
	User    User        `json:"user"`
	TableID string      `json:"tableId,omitempty"`

	// Cell addressing. RowID is the stable row identifier assigned at
	// ingestion; RowIndex is the display position, kept for peers that
	// only track indexes. Cursor messages reuse both plus Field.
	RowID    string `json:"rowId,omitempty"`
	RowIndex int    `json:"rowIndex"`
	Field    string `json:"field,omitempty"`
	Value    any    `json:"value,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChannelError reports a transport failure. Streaming channels respond by
// reconnecting with backoff; polling channels log and retry next tick.
// Queued outbound changes survive the failure either way.
type ChannelError struct {
	Op  string // "dial", "send", "poll", "flush"
	Err error
}

func (e *ChannelError) Error() string {
	return "collab " + e.Op + ": " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error { return e.Err }
