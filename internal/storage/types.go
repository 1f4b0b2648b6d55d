package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON document ({"completed":[...]}) replaced via temp file + rename
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one successful dispatch.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time `json:"at"`
	ItemID    uint32    `json:"item_id"`
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	Pinned    bool      `json:"pinned,omitempty"`
	QuizID    uint32    `json:"quiz_id,omitempty"`
}
