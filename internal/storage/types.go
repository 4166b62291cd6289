package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only, lost on exit
//   - "file": file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// CommandRecord is one journaled native call.
// Keep it compact and schema-stable.
type CommandRecord struct {
	At       time.Time `json:"at"`
	Name     string    `json:"name"`
	Query    bool      `json:"query,omitempty"`
	ArgsJSON string    `json:"args,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Well-known key/value namespaces.
const (
	NSTags     = "tags"
	NSTriggers = "triggers"
	NSState    = "state"
)
