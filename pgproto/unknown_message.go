package pgproto

import (
	"github.com/pgkit/pgsql/internal/pgio"
)

// UnknownMessage preserves a well-framed message whose tag this package
// does not recognize. Receiving one is not an error: newer servers may
// send message types this package predates, and the framing alone is
// enough to skip them safely. Body references the read buffer and is only
// valid until the next message is received.
type UnknownMessage struct {
	Tag  byte
	Body []byte
}

// Frontend identifies this message as sendable by a PostgreSQL frontend.
func (*UnknownMessage) Frontend() {}

// Backend identifies this message as sendable by the PostgreSQL backend.
func (*UnknownMessage) Backend() {}

func (dst *UnknownMessage) Decode(src []byte) error {
	dst.Body = src
	return nil
}

func (src *UnknownMessage) Encode(dst []byte) []byte {
	dst = append(dst, src.Tag)
	dst = pgio.AppendInt32(dst, int32(4+len(src.Body)))
	dst = append(dst, src.Body...)
	return dst
}
