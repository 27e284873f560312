package backplane

import (
	"context"
	"encoding/json"
)

// Scope selects the fan-out for a relayed event.
const (
	ScopeRoom = "room"
	ScopeAll  = "all"
)

// Event is the cross-process broadcast frame. Origin identifies the
// publishing process so subscribers can skip their own messages; Except
// carries connection ids to exclude, which are unique across processes.
type Event struct {
	Origin string          `json:"origin"`
	Scope  string          `json:"scope"`
	Room   string          `json:"room,omitempty"`
	Except []string        `json:"except,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Backplane relays room and global broadcasts between processes. Single
// process deployments run without one.
type Backplane interface {
	// Publish relays an event to peer processes. Best-effort: callers log
	// failures and carry on, local delivery has already happened.
	Publish(ctx context.Context, ev *Event) error
	// Subscribe blocks delivering peer events to handler until ctx is done.
	// Events published by this process are filtered out before handler runs.
	Subscribe(ctx context.Context, handler func(*Event)) error
	// Close tears down the underlying connections.
	Close() error
}
