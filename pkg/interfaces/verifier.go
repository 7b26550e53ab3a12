package interfaces

import "github.com/google/uuid"

// TokenVerifier validates a signed identity token and returns the identity it
// was issued for. Verification is a single deterministic check per call: no
// retries, no I/O visible to the caller.
// ARCHITECTURAL DISCOVERY: Capability interface keeps the routing core free of
// any compile-time coupling to a specific cryptographic library.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}
