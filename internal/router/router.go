package router

import (
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"nanorelay/internal/websocket"
	"nanorelay/pkg/interfaces"
)

// Router classifies each inbound frame and either updates the identity
// binding or forwards the frame to its addressed recipient.
// ARCHITECTURAL DISCOVERY: Pure routing decisions only; the registry owns all
// shared state and the connection owns all wire I/O, so Route never blocks.
type Router struct {
	registry *websocket.Registry
	verifier interfaces.TokenVerifier
	decoder  interfaces.EnvelopeDecoder
}

// New creates a frame router with its capabilities injected.
func New(registry *websocket.Registry, verifier interfaces.TokenVerifier, decoder interfaces.EnvelopeDecoder) *Router {
	return &Router{
		registry: registry,
		verifier: verifier,
		decoder:  decoder,
	}
}

// Route dispatches one frame from sender's read pump.
// FUNCTIONAL DISCOVERY: Every rejection path is a silent drop. Invalid tokens,
// malformed envelopes and absent recipients are expected background noise on a
// public relay; responding or logging them at error level would leak
// verification details and flood the log during probes.
func (r *Router) Route(messageType int, data []byte, sender *websocket.Connection) {
	switch messageType {
	case gorilla.TextMessage:
		r.announce(data, sender)
	case gorilla.BinaryMessage:
		r.forward(data)
	default:
		// Control and unrecognized frames carry no routing state.
	}
}

// announce interprets the whole text payload as an identity token and binds
// the sender's connection to the identity it verifies to.
func (r *Router) announce(data []byte, sender *websocket.Connection) {
	identity, err := r.verifier.Verify(string(data))
	if err != nil {
		return
	}

	r.registry.Bind(identity, sender)
}

// forward verifies and routes a binary envelope to its recipient.
// The sender must prove possession of a currently valid token on every frame,
// but the verified identity is not checked against the envelope contents:
// the only authorization on this relay is "holds a valid token".
func (r *Router) forward(data []byte) {
	env, err := r.decoder.Decode(data)
	if err != nil {
		return
	}

	if _, err := r.verifier.Verify(env.SenderToken); err != nil {
		return
	}

	recipient, err := uuid.Parse(env.RecipientID)
	if err != nil {
		return
	}

	conn, ok := r.registry.Lookup(recipient)
	if !ok {
		return
	}

	// Enqueue failure means the recipient was displaced or disconnected
	// while this frame was in flight; that race is a drop, not an error.
	_ = conn.Enqueue(data)
}
