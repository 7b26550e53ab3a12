package types

import (
	"time"

	"github.com/google/uuid"
)

// Envelope carries the two fields the relay reads out of a binary frame.
// ARCHITECTURAL DISCOVERY: The wire payload stays opaque beyond these fields;
// the relay forwards the original frame bytes and never re-encodes them.
type Envelope struct {
	SenderToken string
	RecipientID string
}

// Connection lifecycle event kinds recorded by the audit log.
const (
	EventConnected    = "connected"
	EventBound        = "bound"
	EventDisplaced    = "displaced"
	EventDisconnected = "disconnected"
)

// ConnectionEvent is one entry in the connection lifecycle audit trail.
// FUNCTIONAL DISCOVERY: Identity is a pointer because connect and disconnect
// events can occur before a connection ever announces an identity.
type ConnectionEvent struct {
	Kind       string     `json:"kind"`
	Handle     string     `json:"handle"`
	Identity   *uuid.UUID `json:"identity,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
