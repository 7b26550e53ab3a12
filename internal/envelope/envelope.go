package envelope

import (
	"google.golang.org/protobuf/encoding/protowire"

	"nanorelay/pkg/types"
)

// Field numbers from envelope.proto.
const (
	fieldSenderToken = 1
	fieldRecipientID = 2
)

// Codec reads the routed fields out of a protobuf-encoded envelope.
// ARCHITECTURAL DISCOVERY: The relay forwards the original frame bytes, so
// the envelope is never materialized as a full message; a wire-level scan of
// the two routed fields leaves every other field untouched and unknown fields
// tolerated, exactly as pass-through requires.
type Codec struct{}

// Decode scans data for the sender token and recipient identity fields,
// skipping everything else. Malformed wire data returns an error; a missing
// field simply leaves its value empty, and verification or recipient parsing
// rejects the frame downstream.
func (Codec) Decode(data []byte) (*types.Envelope, error) {
	env := &types.Envelope{}

	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldSenderToken && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			env.SenderToken = string(v)
			b = b[m:]
		case num == fieldRecipientID && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			env.RecipientID = string(v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}

	return env, nil
}

// Encode builds a minimal envelope for clients and tests. The content field
// (3) is appended when non-empty; the relay itself never encodes envelopes.
func Encode(senderToken, recipientID, content string) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSenderToken, protowire.BytesType)
	b = protowire.AppendString(b, senderToken)
	b = protowire.AppendTag(b, fieldRecipientID, protowire.BytesType)
	b = protowire.AppendString(b, recipientID)
	if content != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, content)
	}
	return b
}
