package interfaces

import "github.com/google/uuid"

// EventRecorder observes connection lifecycle transitions.
// FUNCTIONAL DISCOVERY: Record must never block and never fail the caller;
// the registry invokes it outside wire I/O and treats it as fire-and-forget.
type EventRecorder interface {
	Record(kind, handle string, identity *uuid.UUID)
}
