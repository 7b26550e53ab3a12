package interfaces

import "nanorelay/pkg/types"

// EnvelopeDecoder extracts the routed fields from a binary envelope frame.
// The decoder reads only what routing needs; every other field passes through
// the relay unexamined inside the original frame bytes.
type EnvelopeDecoder interface {
	Decode(data []byte) (*types.Envelope, error)
}
