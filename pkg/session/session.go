// Package session owns the single source of truth for how the user is
// connected. Exactly one Session is active at a time; it is replaced
// wholesale on every connect/disconnect, never mutated field by field.
package session

import (
	"tokentrackr/pkg/chain"
	"tokentrackr/pkg/models"
)

// Session is the current connection state and its derived capabilities.
// Address is present iff Mode != Disconnected; Client is present iff Address
// is present. Epoch increases on every transition; results computed under an
// older epoch must be discarded, not merged.
type Session struct {
	Mode    models.SessionMode
	Address string
	ChainID int64
	Epoch   uint64
	Client  chain.Client
}

// Connected reports whether the session has an active address.
func (s Session) Connected() bool {
	return s.Mode != models.Disconnected
}

// Event is broadcast to subscribers on every session transition. Any event is
// a cache-invalidation signal for balances, allowances and historical data.
type Event struct {
	Session Session
}

// Subscriber is a channel that receives session events.
type Subscriber chan Event
